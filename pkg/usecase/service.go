// Package usecase provides application-level orchestration for CLI workflows.
package usecase

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"pngdup/pkg/duplicator"
	"pngdup/pkg/filelock"
	"pngdup/pkg/hasher"
	"pngdup/pkg/journal"
	"pngdup/pkg/metadata"
	"pngdup/pkg/progress"
	"pngdup/pkg/safepath"
	"pngdup/pkg/trash"
)

const duplicateCommand = "duplicate"

var (
	// ErrVerifyMismatch indicates a copy whose content differs from the source.
	ErrVerifyMismatch = errors.New("copy does not match source")
	// ErrNoJournal indicates there is no journaled run to undo.
	ErrNoJournal = errors.New("no journal to undo")
)

// Options configures a Service.
type Options struct {
	Logger *zap.Logger
}

// ProgressCallback receives workflow stage progress updates.
type ProgressCallback func(stage string, processed, total int)

// Service orchestrates command workflows without Cobra dependencies.
type Service struct {
	logger *zap.Logger
}

// New creates a use-case service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{logger: logger}
}

// DuplicateRequest contains inputs for the duplicate workflow.
type DuplicateRequest struct {
	SourcePath string
	Suffixes   []string
	DryRun     bool
	Verify     bool // hash every copy against the source afterwards
	Journal    bool // record created files under .pngdup/ for undo
	Sync       bool
	Workers    int
	OnCopied   func(op duplicator.CopyOperation)
	OnProgress ProgressCallback
}

// DuplicateExecution contains duplicate workflow outputs.
type DuplicateExecution struct {
	RootDir       string
	Result        duplicator.Result
	Duration      time.Duration
	SourceHash    string
	VerifiedCount int
	RunID         string
	JournalPath   string
}

// RunDuplicate validates the request, writes the copies and then optionally
// verifies and journals them. Copies completed before a failure are still
// journaled; the execution is returned alongside the error.
func (s *Service) RunDuplicate(req DuplicateRequest) (DuplicateExecution, error) {
	startTime := time.Now()

	opts := duplicator.Options{
		DryRun:   req.DryRun,
		Sync:     req.Sync,
		Logger:   s.logger,
		OnCopied: req.OnCopied,
		OnProgress: func(processed, total int) {
			progress.EmitStage(req.OnProgress, "copying", processed, total)
		},
	}
	d := duplicator.New(opts)

	plan, err := d.Plan(req.SourcePath, req.Suffixes)
	if err != nil {
		return DuplicateExecution{}, err
	}

	execution := DuplicateExecution{RootDir: plan.Source.Dir}
	journaled := req.Journal && !req.DryRun

	var (
		target  workflowTarget
		metaDir *metadata.Dir
		runID   string
	)
	if journaled {
		target, err = resolveWorkflowTarget(plan.Source.Dir)
		if err != nil {
			return execution, err
		}

		var lock *filelock.Lock
		metaDir, lock, err = acquireWorkflowLock(target)
		if err != nil {
			return execution, err
		}
		defer lock.Close()

		// Files the run replaces are set aside so undo can bring them back.
		runID = metaDir.RunID(duplicateCommand)
		opts.Trasher = rootedTrasher{
			rootDir: target.rootDir,
			trasher: trash.New(metaDir, runID, target.validator),
		}
		d = duplicator.New(opts)
	}

	s.logger.Debug("duplicating",
		zap.String("source", plan.Source.Path),
		zap.Int("copies", len(plan.Destinations)),
		zap.Bool("dry_run", req.DryRun))

	result, copyErr := d.Execute(plan)
	execution.Result = result

	var hashes map[string]hasher.HashResult
	if (req.Verify || journaled) && len(result.Paths()) > 0 {
		hashes = s.hashOutputs(plan.Source, result, req.Workers, req.OnProgress)
		execution.SourceHash = hashes[plan.Source.ReadPath].Hash
	}

	if journaled {
		journalPath, journalErr := s.writeJournal(metaDir, runID, target.rootDir, plan.Source, result, hashes)
		if journalErr != nil {
			return execution, fmt.Errorf("failed to write operation journal: %w", journalErr)
		}
		if journalPath != "" {
			execution.RunID = runID
			execution.JournalPath = journalPath
		}
	}

	if copyErr != nil {
		execution.Duration = time.Since(startTime)
		return execution, copyErr
	}

	if req.Verify && len(result.Paths()) > 0 {
		verified, verifyErr := verifyOutputs(plan.Source, result, hashes)
		execution.VerifiedCount = verified
		if verifyErr != nil {
			execution.Duration = time.Since(startTime)
			return execution, verifyErr
		}
	}

	execution.Duration = time.Since(startTime)
	return execution, nil
}

// hashOutputs hashes the source and every distinct copy.
func (s *Service) hashOutputs(source duplicator.Source, result duplicator.Result, workers int, onProgress ProgressCallback) map[string]hasher.HashResult {
	paths := []string{source.ReadPath}
	seen := map[string]bool{source.ReadPath: true}
	for _, path := range result.Paths() {
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}

	h := hasher.New(hasher.WithWorkers(workers))
	s.logger.Debug("hashing outputs", zap.Int("files", len(paths)), zap.Int("workers", h.Workers()))

	hashes := make(map[string]hasher.HashResult, len(paths))
	for res := range h.HashFiles(paths) {
		hashes[res.Path] = res
		progress.EmitStage(onProgress, "hashing", len(hashes), len(paths))
	}

	return hashes
}

func verifyOutputs(source duplicator.Source, result duplicator.Result, hashes map[string]hasher.HashResult) (int, error) {
	sourceResult := hashes[source.ReadPath]
	if sourceResult.Error != nil {
		return 0, fmt.Errorf("hash source %s: %w", source.Path, sourceResult.Error)
	}

	verified := 0
	checked := make(map[string]bool)
	for _, path := range result.Paths() {
		if checked[path] {
			continue
		}
		checked[path] = true

		res := hashes[path]
		if res.Error != nil {
			return verified, fmt.Errorf("%w: %s: %w", ErrVerifyMismatch, path, res.Error)
		}
		if res.Hash != sourceResult.Hash {
			return verified, fmt.Errorf("%w: %s", ErrVerifyMismatch, path)
		}
		verified++
	}

	return verified, nil
}

// Workflow invariant: no path is mutated before validator approval.
type workflowTarget struct {
	rootDir   string
	validator *safepath.Validator
}

func resolveWorkflowTarget(dir string) (workflowTarget, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return workflowTarget{}, fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	validator, err := safepath.New(dir)
	if err != nil {
		return workflowTarget{}, fmt.Errorf("cannot create path validator: %w", err)
	}

	return workflowTarget{
		rootDir:   validator.Root(),
		validator: validator,
	}, nil
}

// acquireWorkflowLock initializes the metadata directory and takes the
// advisory lock that keeps concurrent journaled runs apart.
func acquireWorkflowLock(target workflowTarget) (*metadata.Dir, *filelock.Lock, error) {
	metaDir, err := metadata.Init(target.rootDir, target.validator)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize metadata for lock: %w", err)
	}

	lock, err := filelock.Acquire(metaDir.LockPath())
	if err != nil {
		return nil, nil, fmt.Errorf("another pngdup process is operating on this directory: %w", err)
	}

	return metaDir, lock, nil
}

// rootedTrasher hands the trash the symlink-resolved form of each
// destination, since the trash validator works on the resolved root.
type rootedTrasher struct {
	rootDir string
	trasher *trash.Trasher
}

func (r rootedTrasher) Trash(path string) (string, error) {
	return r.trasher.Trash(filepath.Join(r.rootDir, filepath.Base(path)))
}

// writeJournal records the run as confirmed entries in
// .pngdup/journal/<run-id>.jsonl. Nothing is written for a run that
// changed no files.
func (s *Service) writeJournal(metaDir *metadata.Dir, runID, rootDir string, source duplicator.Source, result duplicator.Result, hashes map[string]hasher.HashResult) (string, error) {
	entries := journalEntries(rootDir, source, result, hashes)
	if len(entries) == 0 {
		return "", nil
	}

	if err := metaDir.EnsureJournalDir(); err != nil {
		return "", fmt.Errorf("create journal directory: %w", err)
	}

	journalPath := metaDir.JournalPath(runID)

	writer, err := journal.NewWriter(journalPath)
	if err != nil {
		return "", fmt.Errorf("create journal writer: %w", err)
	}
	defer writer.Close()

	for i := range entries {
		if err := writer.LogConfirmed(entries[i]); err != nil {
			return journalPath, err
		}
	}

	s.logger.Debug("journal written", zap.String("path", journalPath), zap.Int("entries", len(entries)))

	return journalPath, nil
}

// journalEntries lists, in run order, a trash entry for every file set aside
// and a create or overwrite entry for every successful copy. Copy paths are
// relative to the source directory; trash paths to rootDir.
func journalEntries(rootDir string, source duplicator.Source, result duplicator.Result, hashes map[string]hasher.HashResult) []journal.Entry {
	var entries []journal.Entry
	for _, op := range result.Operations {
		if op.TrashedTo != "" {
			entries = append(entries, journal.Entry{
				Type:    journal.TypeTrash,
				Source:  relPath(source.Dir, op.Path),
				Dest:    relPath(rootDir, op.TrashedTo),
				Success: true,
			})
		}

		if op.Error != nil || op.Skipped {
			continue
		}

		entryType := journal.TypeCreate
		if op.Overwrote {
			entryType = journal.TypeOverwrite
		}

		entries = append(entries, journal.Entry{
			Type:    entryType,
			Source:  relPath(source.Dir, source.Path),
			Dest:    relPath(source.Dir, op.Path),
			Hash:    hashes[op.Path].Hash,
			Size:    op.Bytes,
			Success: true,
		})
	}
	return entries
}

// relPath computes a path relative to rootDir, falling back to absPath.
func relPath(rootDir, absPath string) string {
	rel, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}
	return rel
}
