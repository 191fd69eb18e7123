package main

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/stepwise/core/model"
	"github.com/YuminosukeSato/stepwise/sfo"
)

func newRankCmd() *cobra.Command {
	var (
		candidatesPath string
		top            int
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print candidates in selection order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, candidatesPath)
			if err != nil {
				return err
			}
			defer in.Close()
			gains, err := sfo.ReadGains(in)
			if err != nil {
				return err
			}
			ranked := model.Rank(gains)
			if top > 0 {
				ranked = model.TopN(ranked, top)
			}
			return sfo.WriteGains(cmd.OutOrStdout(), ranked)
		},
	}
	cmd.Flags().StringVar(&candidatesPath, "candidates", "-", "candidate gains, one JSON object per line (- for stdin)")
	cmd.Flags().IntVarP(&top, "top", "n", 0, "print only the first n candidates (0: all)")
	return cmd
}
