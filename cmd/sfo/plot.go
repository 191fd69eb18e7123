package main

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/stepwise/report"
	"github.com/YuminosukeSato/stepwise/store"
)

func newPlotCmd() *cobra.Command {
	var (
		dir     string
		runID   string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Plot the selected gains of a checkpointed run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(store.DefaultConfig(dir))
			if err != nil {
				return err
			}
			defer s.Close()
			rounds, err := s.Rounds(runID)
			if err != nil {
				return err
			}
			return report.PlotGains(rounds, outPath)
		},
	}
	cmd.Flags().StringVar(&dir, "checkpoint", "", "checkpoint database directory")
	cmd.Flags().StringVar(&runID, "run-id", "", "run to plot")
	cmd.Flags().StringVarP(&outPath, "out", "o", "gains.png", "image file; the extension selects the format")
	_ = cmd.MarkFlagRequired("checkpoint")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}
