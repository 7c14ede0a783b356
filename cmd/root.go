package main

import (
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	dryRun  bool
	verbose bool
	workers int

	logger = zap.NewNop()
)

func buildRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pngdup [flags] <file.png>",
		Short: "Duplicate a PNG image into one copy per color suffix",
		Long: `pngdup writes copies of a PNG image next to the original, one per
color suffix. The copies are byte-for-byte identical; only the names differ.

  fish.png  ->  fish Blanco.png, fish Rojo.png, fish Azul.png, ...

Examples:
  # Preview the files that would be written
	  pngdup --dry-run ./assets/fish.png

  # Write the nine default color variants
	  pngdup ./assets/fish.png

  # Choose the suffixes
	  pngdup -c Red,Green,Blue ./assets/fish.png

  # Verify the copies and record them so they can be undone
	  pngdup --verify --journal ./assets/fish.png
	  pngdup undo ./assets

Safety:
  Existing files with a destination name are overwritten.
  Copies are only ever written into the directory of the source image.`,
		Args: cobra.ExactArgs(1),
		RunE: runDuplicate,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			l, err := newLogger(verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = logger.Sync()
		},
	}

	cmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without making changes")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().IntVar(&workers, "workers", runtime.NumCPU(), "Number of parallel workers for hashing")

	addDuplicateFlags(cmd)

	return cmd
}

// newLogger builds the diagnostics logger. Results go to stdout; the
// logger only writes to stderr.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}

	return cfg.Build()
}
