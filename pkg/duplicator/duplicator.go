// Package duplicator copies a PNG file once per suffix label into the file's
// own directory, naming each copy "<base> <suffix>.png".
//
// All validation happens before the first write. Copies are then made in
// suffix order and the run stops at the first failed copy. Existing files with
// a computed name are overwritten.
package duplicator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"
	"go.uber.org/zap"

	"pngdup/pkg/progress"
	"pngdup/pkg/safepath"
)

// ErrSourceOverwrite indicates a computed destination is the source file itself.
var ErrSourceOverwrite = errors.New("destination is the source file")

// CopyError reports a failed copy and the destination it was writing.
type CopyError struct {
	Dest string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy to %s: %v", e.Dest, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// CopyOperation represents a single planned or completed copy.
type CopyOperation struct {
	Suffix    string
	Path      string // absolute destination path
	Overwrote bool   // destination existed before this copy
	Bytes     int64
	Skipped   bool   // dry run
	TrashedTo string // where the replaced file was set aside, if anywhere
	Error     error
}

// Result contains the results of a duplication run.
type Result struct {
	Source           Source
	Operations       []CopyOperation
	CreatedCount     int
	OverwrittenCount int
	SkippedCount     int
	ErrorCount       int
	BytesWritten     int64
}

// Paths returns the destination of every successful copy, in order.
func (r Result) Paths() []string {
	paths := make([]string, 0, len(r.Operations))
	for _, op := range r.Operations {
		if op.Error != nil || op.Skipped {
			continue
		}
		paths = append(paths, op.Path)
	}
	return paths
}

// Trasher sets aside an existing file before a copy replaces it and reports
// where the file went.
type Trasher interface {
	Trash(path string) (string, error)
}

// Options configures a Duplicator.
type Options struct {
	DryRun bool
	Sync   bool // fsync each copy before reporting it
	Logger *zap.Logger
	// Trasher, when set, receives every pre-existing regular file before it
	// is overwritten. Files written earlier in the same run are not trashed.
	Trasher    Trasher
	OnCopied   func(op CopyOperation)
	OnProgress func(processed, total int)
}

// Duplicator produces suffixed copies of a source file.
type Duplicator struct {
	dryRun     bool
	sync       bool
	logger     *zap.Logger
	trasher    Trasher
	onCopied   func(op CopyOperation)
	onProgress func(processed, total int)
}

// New creates a Duplicator.
func New(opts Options) *Duplicator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Duplicator{
		dryRun:     opts.DryRun,
		sync:       opts.Sync,
		logger:     logger,
		trasher:    opts.Trasher,
		onCopied:   opts.OnCopied,
		onProgress: opts.OnProgress,
	}
}

// Plan is a validated duplication: every destination has been checked and
// nothing has been written yet.
type Plan struct {
	Source       Source
	Destinations []Destination
}

// Destination pairs a suffix with the path its copy is written to.
type Destination struct {
	Suffix string
	Path   string
}

// Plan validates the source and suffixes and computes every destination.
func (d *Duplicator) Plan(sourcePath string, suffixes []string) (Plan, error) {
	source, err := ResolveSource(sourcePath)
	if err != nil {
		return Plan{}, err
	}

	if err := ValidateSuffixes(suffixes); err != nil {
		return Plan{}, err
	}

	validator, err := safepath.New(source.Dir)
	if err != nil {
		return Plan{}, fmt.Errorf("cannot create path validator: %w", err)
	}

	plan := Plan{
		Source:       source,
		Destinations: make([]Destination, 0, len(suffixes)),
	}

	// The validator root is symlink-resolved, so containment is checked
	// against the resolved form of each destination.
	for _, suffix := range suffixes {
		dest := source.DestinationPath(suffix)
		resolvedDest := filepath.Join(validator.Root(), filepath.Base(dest))

		if err := validator.ValidatePathForWrite(resolvedDest); err != nil {
			return Plan{}, fmt.Errorf("destination %s: %w", dest, err)
		}
		if isSameFile(source, dest) {
			return Plan{}, fmt.Errorf("%w: %s", ErrSourceOverwrite, dest)
		}

		plan.Destinations = append(plan.Destinations, Destination{Suffix: suffix, Path: dest})
	}

	return plan, nil
}

// Duplicate validates sourcePath and suffixes, then writes one copy per suffix.
// On a failed copy it returns the partial Result together with a *CopyError.
func (d *Duplicator) Duplicate(sourcePath string, suffixes []string) (Result, error) {
	plan, err := d.Plan(sourcePath, suffixes)
	if err != nil {
		return Result{}, err
	}

	return d.Execute(plan)
}

// Execute performs the copies of a validated plan in order.
func (d *Duplicator) Execute(plan Plan) (Result, error) {
	result := Result{
		Source:     plan.Source,
		Operations: make([]CopyOperation, 0, len(plan.Destinations)),
	}

	written := make(map[string]bool, len(plan.Destinations))

	total := len(plan.Destinations)
	for i, dest := range plan.Destinations {
		op := d.copyOne(plan.Source, dest, written[dest.Path])
		result.Operations = append(result.Operations, op)
		if op.Error == nil && !op.Skipped {
			written[dest.Path] = true
		}

		switch {
		case op.Error != nil:
			result.ErrorCount++
			d.logger.Debug("copy failed", zap.String("dest", op.Path), zap.Error(op.Error))
			return result, &CopyError{Dest: op.Path, Err: op.Error}
		case op.Skipped:
			result.SkippedCount++
		case op.Overwrote:
			result.OverwrittenCount++
			result.BytesWritten += op.Bytes
		default:
			result.CreatedCount++
			result.BytesWritten += op.Bytes
		}

		if d.onCopied != nil {
			d.onCopied(op)
		}
		progress.Emit(d.onProgress, i+1, total)
	}

	return result, nil
}

func (d *Duplicator) copyOne(source Source, dest Destination, writtenThisRun bool) CopyOperation {
	op := CopyOperation{
		Suffix: dest.Suffix,
		Path:   dest.Path,
		Bytes:  source.Size,
	}

	existing, err := os.Lstat(dest.Path)
	if err == nil {
		op.Overwrote = true
	}

	if d.dryRun {
		op.Skipped = true
		return op
	}

	d.logger.Debug("copying",
		zap.String("src", source.ReadPath),
		zap.String("dest", dest.Path),
		zap.Bool("overwrite", op.Overwrote))

	// cp.Copy treats a vanished source as nothing to do.
	if _, err := os.Stat(source.ReadPath); err != nil {
		op.Error = fmt.Errorf("read source: %w", err)
		return op
	}

	if op.Overwrote && d.trasher != nil && !writtenThisRun && existing.Mode().IsRegular() {
		trashedTo, err := d.trasher.Trash(dest.Path)
		if err != nil {
			op.Error = fmt.Errorf("set aside existing file: %w", err)
			return op
		}
		op.TrashedTo = trashedTo
	}

	err = cp.Copy(source.ReadPath, dest.Path, cp.Options{
		OnSymlink: func(string) cp.SymlinkAction {
			return cp.Deep
		},
		PermissionControl: cp.DoNothing,
		PreserveTimes:     false,
		Sync:              d.sync,
	})
	if err != nil {
		op.Error = err
		return op
	}

	return op
}

// isSameFile reports whether dest already is (or links to) the source file.
func isSameFile(source Source, dest string) bool {
	if filepath.Clean(dest) == filepath.Clean(source.Path) {
		return true
	}

	destInfo, err := os.Stat(dest)
	if err != nil {
		return false
	}
	srcInfo, err := os.Stat(source.ReadPath)
	if err != nil {
		return false
	}

	return os.SameFile(srcInfo, destInfo)
}
