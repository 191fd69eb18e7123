package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
	"github.com/YuminosukeSato/stepwise/pkg/log"
	"github.com/YuminosukeSato/stepwise/sfo"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "sfo",
		Short:         "Stepwise forward selection merge tool",
		Long:          `Merges per-round feature gain records into a logistic regression model, one round at a time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.jsonLogs, "json-logs", false, "emit JSON log lines instead of console output")

	root.AddCommand(
		newMergeCmd(opts),
		newRankCmd(),
		newInspectCmd(),
		newPlotCmd(),
	)
	return root
}

func setupLogging(w io.Writer, opts *globalOptions) error {
	level, ok := log.ParseLevel(opts.logLevel)
	if !ok {
		return sfoerrors.NewValidationError("log-level", "unknown level", opts.logLevel)
	}
	if !opts.jsonLogs {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.SetProvider(log.NewProvider(w, level))
	log.RouteWarnings(log.GetLoggerWithName("sfo.warnings"))
	return nil
}

// loadConfig reads --config if given and applies command-line overrides.
func loadConfig(cmd *cobra.Command, opts *globalOptions, add int) (sfo.Config, error) {
	cfg := sfo.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = sfo.LoadConfig(opts.configPath); err != nil {
			return sfo.Config{}, err
		}
	}
	if cmd.Flags().Changed("add") {
		cfg.AddPerIteration = add
	}
	return cfg, cfg.Validate()
}

// openInput opens path for reading; "-" is stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, sfoerrors.Wrapf(err, "open %s", path)
	}
	return f, nil
}

// createOutput opens path for writing; "" or "-" is stdout.
func createOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, sfoerrors.Wrapf(err, "create %s", path)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
