package usecase

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"pngdup/pkg/hasher"
	"pngdup/pkg/journal"
	"pngdup/pkg/metadata"
	"pngdup/pkg/progress"
	"pngdup/pkg/trash"
)

// Undo actions.
const (
	ActionRemove  = "remove"
	ActionRestore = "restore"
	ActionSkip    = "skip"
)

// UndoRequest contains inputs for the undo workflow.
type UndoRequest struct {
	TargetDir  string // directory of a journaled run, or a file inside it
	RunID      string // empty = most recent journal
	DryRun     bool
	OnProgress ProgressCallback
}

// UndoOperation describes a single undo step.
type UndoOperation struct {
	EntryType  string
	Path       string // journal-relative path the step acts on
	Action     string
	SkipReason string
	Error      error
}

// UndoExecution contains undo workflow outputs.
type UndoExecution struct {
	RootDir       string
	JournalPath   string
	RunID         string
	Operations    []UndoOperation
	RemovedCount  int
	RestoredCount int
	SkippedCount  int
	ErrorCount    int
	DryRun        bool
}

// RunUndo reverses a journaled run, newest entry first: copies are removed
// and the files they replaced are moved back out of the trash.
func (s *Service) RunUndo(req UndoRequest) (UndoExecution, error) {
	target, err := resolveWorkflowTarget(req.TargetDir)
	if err != nil {
		return UndoExecution{}, err
	}

	if _, err := metadata.Open(target.rootDir, target.validator); err != nil {
		if errors.Is(err, metadata.ErrNoMetadata) {
			return UndoExecution{}, fmt.Errorf("%w: %w", ErrNoJournal, err)
		}
		return UndoExecution{}, err
	}

	metaDir, lock, err := acquireWorkflowLock(target)
	if err != nil {
		return UndoExecution{}, err
	}
	defer lock.Close()

	runID, err := findRunID(metaDir, req.RunID)
	if err != nil {
		return UndoExecution{}, err
	}
	journalPath := metaDir.JournalPath(runID)

	reader := journal.NewReader(journalPath)
	if validateErr := reader.Validate(); errors.Is(validateErr, journal.ErrPartialWrite) {
		s.logger.Warn("journal has unconfirmed entries; only confirmed steps are undone",
			zap.String("journal", journalPath))
	}

	entries, err := reader.ConfirmedReverse()
	if err != nil {
		return UndoExecution{}, fmt.Errorf("read journal: %w", err)
	}

	execution := UndoExecution{
		RootDir:     target.rootDir,
		JournalPath: journalPath,
		RunID:       runID,
		DryRun:      req.DryRun,
	}

	u := newUndoer(target, trash.New(metaDir, runID, target.validator), entries, req.DryRun)

	for i, entry := range entries {
		op := u.undo(entry)
		execution.Operations = append(execution.Operations, op)

		switch {
		case op.Error != nil:
			execution.ErrorCount++
			s.logger.Debug("undo failed", zap.String("path", op.Path), zap.Error(op.Error))
		case op.Action == ActionSkip:
			execution.SkippedCount++
		case op.Action == ActionRemove:
			execution.RemovedCount++
		case op.Action == ActionRestore:
			execution.RestoredCount++
		}

		progress.EmitStage(req.OnProgress, "undoing", i+1, len(entries))
	}

	if req.DryRun {
		return execution, nil
	}

	if err := u.trasher.Cleanup(); err != nil {
		s.logger.Warn("could not remove trash directory", zap.Error(err))
	}

	if err := os.Rename(journalPath, metaDir.RolledBackPath(runID)); err != nil {
		return execution, fmt.Errorf("mark journal as rolled back: %w", err)
	}

	return execution, nil
}

func findRunID(metaDir *metadata.Dir, runID string) (string, error) {
	if runID != "" {
		if _, err := os.Stat(metaDir.JournalPath(runID)); err != nil {
			return "", fmt.Errorf("%w: run %q: %w", ErrNoJournal, runID, err)
		}
		return runID, nil
	}

	ids, err := metaDir.ActiveRunIDs()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: no active journals in %s", ErrNoJournal, metaDir.JournalDir())
	}

	return ids[len(ids)-1], nil
}

type undoer struct {
	target  workflowTarget
	trasher *trash.Trasher
	dryRun  bool

	// recoverable holds the paths whose state before the run is known:
	// absent (a create entry) or kept in the trash (a trash entry).
	recoverable map[string]bool
	// removed tracks paths a dry run pretends to have removed.
	removed map[string]bool
}

func newUndoer(target workflowTarget, trasher *trash.Trasher, entries []journal.Entry, dryRun bool) *undoer {
	u := &undoer{
		target:      target,
		trasher:     trasher,
		dryRun:      dryRun,
		recoverable: make(map[string]bool),
		removed:     make(map[string]bool),
	}

	for _, entry := range entries {
		switch entry.Type {
		case journal.TypeCreate:
			u.recoverable[entry.Dest] = true
		case journal.TypeTrash:
			u.recoverable[entry.Source] = true
		}
	}

	return u
}

func (u *undoer) undo(entry journal.Entry) UndoOperation {
	switch entry.Type {
	case journal.TypeCreate:
		return u.removeCopy(entry)
	case journal.TypeOverwrite:
		if !u.recoverable[entry.Dest] {
			return UndoOperation{
				EntryType:  entry.Type,
				Path:       entry.Dest,
				Action:     ActionSkip,
				SkipReason: "file existed before the run; previous content was not kept",
			}
		}
		return u.removeCopy(entry)
	case journal.TypeTrash:
		return u.restore(entry)
	default:
		return UndoOperation{
			EntryType:  entry.Type,
			Path:       entry.Dest,
			Action:     ActionSkip,
			SkipReason: fmt.Sprintf("unknown entry type %q", entry.Type),
		}
	}
}

// removeCopy removes a copy the run wrote, unless it changed since.
func (u *undoer) removeCopy(entry journal.Entry) UndoOperation {
	op := UndoOperation{
		EntryType: entry.Type,
		Path:      entry.Dest,
		Action:    ActionSkip,
	}

	absPath, err := u.target.validator.ResolveSafePath(u.target.rootDir, entry.Dest)
	if err != nil {
		op.Error = err
		return op
	}

	if _, err := os.Lstat(absPath); err != nil || u.removed[absPath] {
		op.SkipReason = "file no longer exists"
		return op
	}

	if reason, changed := contentChanged(absPath, entry.Hash); changed {
		op.SkipReason = reason
		return op
	}

	op.Action = ActionRemove
	if u.dryRun {
		u.removed[absPath] = true
		return op
	}

	if err := u.target.validator.SafeRemove(absPath); err != nil {
		op.Error = err
	}

	return op
}

// restore moves a trashed file back to where it was before the run.
func (u *undoer) restore(entry journal.Entry) UndoOperation {
	op := UndoOperation{
		EntryType: entry.Type,
		Path:      entry.Source,
		Action:    ActionSkip,
	}

	trashedPath, err := u.target.validator.ResolveSafePath(u.target.rootDir, entry.Dest)
	if err != nil {
		op.Error = err
		return op
	}
	originalPath, err := u.target.validator.ResolveSafePath(u.target.rootDir, entry.Source)
	if err != nil {
		op.Error = err
		return op
	}

	if _, err := os.Lstat(trashedPath); err != nil {
		op.SkipReason = "trashed file not found: " + entry.Dest
		return op
	}
	if _, err := os.Lstat(originalPath); err == nil && !u.removed[originalPath] {
		op.SkipReason = "a file is already at the original location"
		return op
	}

	op.Action = ActionRestore
	if u.dryRun {
		delete(u.removed, originalPath)
		return op
	}

	if err := u.trasher.Restore(trashedPath, originalPath); err != nil {
		op.Error = err
	}

	return op
}

// contentChanged reports whether the file at path no longer has expectedHash.
// Entries without a hash are not checked.
func contentChanged(path, expectedHash string) (reason string, changed bool) {
	if expectedHash == "" {
		return "", false
	}

	currentHash, err := hasher.New().ComputeHash(path)
	if err != nil {
		return "cannot verify content: " + err.Error(), true
	}
	if currentHash != expectedHash {
		return "content changed since it was created (hash mismatch)", true
	}

	return "", false
}
