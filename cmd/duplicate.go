package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pngdup/pkg/config"
	"pngdup/pkg/duplicator"
	"pngdup/pkg/usecase"
)

var (
	colors       []string
	configPath   string
	verifyCopies bool
	journalRun   bool
	syncWrites   bool
)

func addDuplicateFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&colors, "colors", "c", duplicator.Defaults(), "Suffixes to append, one copy each")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file with suffixes and defaults")
	cmd.Flags().BoolVar(&verifyCopies, "verify", false, "Hash every copy and compare it with the source")
	cmd.Flags().BoolVar(&journalRun, "journal", false, "Record created files under .pngdup/ so they can be undone")
	cmd.Flags().BoolVar(&syncWrites, "sync", false, "Flush each copy to disk before reporting it")
}

// duplicateSettings is the merged view of built-in defaults, the config file
// and the flags the user actually set, in increasing precedence.
type duplicateSettings struct {
	suffixes []string
	verify   bool
	journal  bool
	sync     bool
	workers  int
}

func resolveDuplicateSettings(cmd *cobra.Command) (duplicateSettings, error) {
	settings := duplicateSettings{
		suffixes: duplicator.Defaults(),
		workers:  workers,
	}

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return duplicateSettings{}, err
		}

		if cfg.Suffixes != nil {
			settings.suffixes = cfg.Suffixes
		}
		settings.verify = cfg.Verify
		settings.journal = cfg.Journal
		settings.sync = cfg.Sync
		if cfg.Workers > 0 {
			settings.workers = cfg.Workers
		}
	}

	// Visit only walks flags set on the command line.
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "colors":
			settings.suffixes = colors
		case "verify":
			settings.verify = verifyCopies
		case "journal":
			settings.journal = journalRun
		case "sync":
			settings.sync = syncWrites
		case "workers":
			settings.workers = workers
		}
	})

	return settings, nil
}

func runDuplicate(cmd *cobra.Command, args []string) error {
	settings, err := resolveDuplicateSettings(cmd)
	if err != nil {
		return err
	}

	printDryRunBanner()

	progress := startProgress("copying")

	execution, err := newUseCaseService().RunDuplicate(usecase.DuplicateRequest{
		SourcePath: args[0],
		Suffixes:   settings.suffixes,
		DryRun:     dryRun,
		Verify:     settings.verify,
		Journal:    settings.journal,
		Sync:       settings.sync,
		Workers:    settings.workers,
		OnCopied:   printCopyOperation,
		OnProgress: func(stage string, processed, total int) {
			progress.Report(stage, processed, total)
		},
	})
	progress.Stop()

	if execution.Result.Source.Path == "" {
		// Validation failed before anything was planned.
		return err
	}

	fmt.Println()
	printCommandHeader("DUPLICATE", "Source:", execution.Result.Source.Path)

	lines := []string{
		fmt.Sprintf("Suffixes:     %d", len(settings.suffixes)),
		fmt.Sprintf("Created:      %d", execution.Result.CreatedCount),
		fmt.Sprintf("Overwritten:  %d", execution.Result.OverwrittenCount),
		fmt.Sprintf("Errors:       %d", execution.Result.ErrorCount),
		"Written:      " + formatBytes(execution.Result.BytesWritten),
	}
	if dryRun {
		lines = append(lines, fmt.Sprintf("Planned:      %d", execution.Result.SkippedCount))
	}
	if settings.verify && !dryRun {
		lines = append(lines, fmt.Sprintf("Verified:     %d", execution.VerifiedCount))
	}
	if execution.JournalPath != "" {
		lines = append(lines, "Journal:      "+execution.JournalPath)
	}
	if verbose {
		lines = append(lines, "Duration:     "+execution.Duration.String())
	}

	printSummary(lines...)
	printDryRunHint()

	return err
}

func printCopyOperation(op duplicator.CopyOperation) {
	switch {
	case op.Skipped:
		fmt.Printf("Would create: %s\n", op.Path)
	default:
		fmt.Printf("Created: %s\n", op.Path)
		if verbose && op.Overwrote {
			fmt.Println("   replaced an existing file")
		}
	}
}
