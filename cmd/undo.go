package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pngdup/pkg/usecase"
)

var undoRunID string

func buildUndoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo [path]",
		Short: "Remove the copies written by a journaled run",
		Long: `Removes the files a --journal run created, newest run first:
  - Copies are removed if their content is unchanged
  - Files the run replaced are moved back out of .pngdup/trash/
  - Copies edited since the run are kept, and so is what they replaced

The journal is marked as rolled back afterwards, so a run is undone once.

Examples:
  pngdup undo --dry-run ./assets       # Preview what would be removed
  pngdup undo ./assets                 # Undo the most recent run
  pngdup undo --run <run-id> ./assets  # Undo a specific run`,
		Args: cobra.ExactArgs(1),
		RunE: runUndo,
	}

	cmd.Flags().StringVar(&undoRunID, "run", "", "Undo a specific run by run ID")

	return cmd
}

func runUndo(_ *cobra.Command, args []string) error {
	printDryRunBanner()

	progress := startProgress("undoing")

	execution, err := newUseCaseService().RunUndo(usecase.UndoRequest{
		TargetDir: args[0],
		RunID:     undoRunID,
		DryRun:    dryRun,
		OnProgress: func(stage string, processed, total int) {
			progress.Report(stage, processed, total)
		},
	})
	progress.Stop()

	if err != nil {
		return err
	}

	printCommandHeader("UNDO", "Directory:", execution.RootDir)
	fmt.Printf("Journal: %s\n", execution.JournalPath)
	fmt.Printf("Run ID:  %s\n", execution.RunID)
	fmt.Println()

	printDetailedOperations(execution.Operations, printUndoOperation, func(op usecase.UndoOperation) bool {
		return op.Error != nil
	})

	printSummary(
		fmt.Sprintf("Removed:   %d", execution.RemovedCount),
		fmt.Sprintf("Restored:  %d", execution.RestoredCount),
		fmt.Sprintf("Skipped:   %d", execution.SkippedCount),
		fmt.Sprintf("Errors:    %d", execution.ErrorCount),
	)
	printDryRunHint()

	return nil
}

func printUndoOperation(op usecase.UndoOperation) {
	switch {
	case op.Error != nil:
		fmt.Printf("ERROR: [%s] %s: %v\n", op.EntryType, op.Path, op.Error)
	case op.Action == usecase.ActionSkip:
		fmt.Printf("SKIP: [%s] %s (%s)\n", op.EntryType, op.Path, op.SkipReason)
	case op.Action == usecase.ActionRemove:
		fmt.Printf("REMOVE: %s\n", op.Path)
	case op.Action == usecase.ActionRestore:
		fmt.Printf("RESTORE: %s\n", op.Path)
	}
}
