package main

import (
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/stepwise/core/model"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
	"github.com/YuminosukeSato/stepwise/sfo"
	"github.com/YuminosukeSato/stepwise/store"
)

type mergeOptions struct {
	modelPath      string
	candidatesPath string
	outPath        string
	add            int
	checkpointDir  string
	runID          string
	round          int
}

func newMergeCmd(global *globalOptions) *cobra.Command {
	opts := &mergeOptions{}
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge the best candidates of one round into the base model",
		Long: `Reads the base model (JSON, or an empty model when --model is omitted) and the
round's candidate gains (JSON lines), adds the top add_per_iteration candidates and
writes the new model as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, global, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.modelPath, "model", "", "base model JSON file (default: empty model)")
	f.StringVar(&opts.candidatesPath, "candidates", "-", "candidate gains, one JSON object per line (- for stdin)")
	f.StringVarP(&opts.outPath, "out", "o", "-", "output model file (- for stdout)")
	f.IntVar(&opts.add, "add", 1, "features added per round; overrides add_per_iteration from --config")
	f.StringVar(&opts.checkpointDir, "checkpoint", "", "checkpoint database directory")
	f.StringVar(&opts.runID, "run-id", "", "run identifier for the checkpoint (default: generated)")
	f.IntVar(&opts.round, "round", 0, "round number recorded in the checkpoint and metadata")
	return cmd
}

func runMerge(cmd *cobra.Command, global *globalOptions, opts *mergeOptions) error {
	cfg, err := loadConfig(cmd, global, opts.add)
	if err != nil {
		return err
	}

	base := model.NewIncrementalModel()
	if opts.modelPath != "" {
		in, err := openInput(cmd, opts.modelPath)
		if err != nil {
			return err
		}
		base, _, err = model.ReadJSON(in)
		in.Close()
		if err != nil {
			return err
		}
	}

	in, err := openInput(cmd, opts.candidatesPath)
	if err != nil {
		return err
	}
	candidates, err := sfo.ReadGains(in)
	in.Close()
	if err != nil {
		return err
	}

	merger, err := sfo.NewMerger(cfg)
	if err != nil {
		return err
	}
	out, err := merger.MergeRound(sfo.Round{Key: sfo.RoundKey, Model: base, Candidates: candidates})
	if err != nil {
		return sfoerrors.NewRoundError(opts.round, base.Size(), err)
	}

	if opts.runID == "" {
		opts.runID = uuid.NewString()
	}
	if opts.checkpointDir != "" {
		if err := saveCheckpoint(cmd, opts, len(candidates), out); err != nil {
			return err
		}
	}

	w, err := createOutput(cmd, opts.outPath)
	if err != nil {
		return err
	}
	return writeModel(w, out.Model, map[string]string{
		"run_id":            opts.runID,
		"round":             strconv.Itoa(opts.round),
		"add_per_iteration": strconv.Itoa(cfg.AddPerIteration),
	})
}

// writeModel writes m as JSON and closes w. A failed close is reported.
func writeModel(w io.WriteCloser, m *model.IncrementalModel, metadata map[string]string) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = sfoerrors.Wrap(cerr, "close output")
		}
	}()
	return model.WriteJSON(m, metadata, w)
}

func saveCheckpoint(cmd *cobra.Command, opts *mergeOptions, candidates int, out sfo.Output) error {
	s, err := store.Open(store.DefaultConfig(opts.checkpointDir))
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SaveRound(cmd.Context(), opts.runID, sfo.RoundSummary{
		Round:      opts.round,
		ModelSize:  out.Model.Size(),
		Candidates: candidates,
		Selected:   out.Selected,
	}, out.Model)
}
