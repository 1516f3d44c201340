// Package cli implements the validator-atlas command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/validator-atlas/pkg/config"
	"github.com/Sternrassler/validator-atlas/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command.
type options struct {
	cfgPath     string
	isDebug     bool
	pretty      bool
	outputDir   string
	metricsAddr string

	// Set by the root PersistentPreRunE.
	cfg    *config.Config
	runID  string
	logger zerolog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "validator-atlas",
		Short: "Validator telemetry ETL",
		Long: `validator-atlas pulls validator listings from public chain APIs, enriches
each validator with detail and location lookups, checkpoints the results and
writes one canonical CSV per chain.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "config file (defaults are used when empty)")
	rootCmd.PersistentFlags().BoolVar(&opts.isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "human-readable console logs")
	rootCmd.PersistentFlags().StringVar(&opts.outputDir, "out", "", "output directory (overrides output_dir)")
	rootCmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newFetchCmd(opts),
		newMergeCmd(opts),
		newNormalizeCmd(opts),
		newChainsCmd(opts),
	)

	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func (o *options) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
	}
	if o.isDebug {
		cfg.Log.Level = string(logging.LevelDebug)
	}
	if o.pretty {
		cfg.Log.Pretty = true
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}

	o.cfg = cfg
	o.runID = logging.NewRunID()
	o.logger = logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
		RunID:  o.runID,
	})

	o.logger.Debug().
		Str("config", o.cfgPath).
		Str("output_dir", cfg.OutputDir).
		Msg("Configuration loaded")
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
