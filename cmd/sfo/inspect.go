package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/stepwise/store"
)

func newInspectCmd() *cobra.Command {
	var (
		dir   string
		runID string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List checkpointed runs, or the rounds of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(store.DefaultConfig(dir))
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if runID == "" {
				runs, err := s.Runs()
				if err != nil {
					return err
				}
				for _, id := range runs {
					fmt.Fprintln(out, id)
				}
				return nil
			}

			rounds, err := s.Rounds(runID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROUND\tSIZE\tCANDIDATES\tBEST GAIN\tSELECTED")
			for _, r := range rounds {
				dims := make([]string, len(r.Selected))
				for i, g := range r.Selected {
					dims[i] = fmt.Sprint(g.Dimension)
				}
				fmt.Fprintf(tw, "%d\t%d\t%d\t%g\t%s\n", r.Round, r.ModelSize, r.Candidates, r.BestGain(), strings.Join(dims, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "checkpoint", "", "checkpoint database directory")
	cmd.Flags().StringVar(&runID, "run-id", "", "run to show (default: list runs)")
	_ = cmd.MarkFlagRequired("checkpoint")
	return cmd
}
