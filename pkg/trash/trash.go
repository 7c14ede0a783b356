// Package trash sets aside files that a journaled run is about to replace.
// Files are moved to .pngdup/trash/<run-id>/ instead of being overwritten in
// place, so that undo can put them back.
package trash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pngdup/pkg/metadata"
	"pngdup/pkg/safepath"
)

var (
	// ErrNotInTrash is returned when restoring a path outside this run's trash.
	ErrNotInTrash = errors.New("path is not in the trash directory")
	// ErrAlreadyTrashed is returned when the run already set aside a file
	// with the same name.
	ErrAlreadyTrashed = errors.New("file with this name is already in the trash")
	// ErrRestoreConflict is returned when the original location is occupied.
	ErrRestoreConflict = errors.New("restore destination already exists")
)

// Trasher moves files into a run-specific trash directory.
type Trasher struct {
	trashRoot string // .pngdup/trash/<run-id>/
	validator *safepath.Validator
}

// New creates a Trasher for the given run. The trash directory is created
// on first use.
func New(metaDir *metadata.Dir, runID string, validator *safepath.Validator) *Trasher {
	return &Trasher{
		trashRoot: metaDir.TrashDir(runID),
		validator: validator,
	}
}

// Root returns the run's trash directory.
func (t *Trasher) Root() string {
	return t.trashRoot
}

// Trash moves the file at path into the trash and returns where it went.
// Trashed files keep their base name.
func (t *Trasher) Trash(path string) (string, error) {
	if err := t.validator.ValidatePathForWrite(path); err != nil {
		return "", fmt.Errorf("validate source for trash: %w", err)
	}

	if err := t.validator.SafeMkdirAll(t.trashRoot); err != nil {
		return "", fmt.Errorf("create trash directory: %w", err)
	}

	dest := filepath.Join(t.trashRoot, filepath.Base(path))
	if _, err := os.Lstat(dest); err == nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyTrashed, filepath.Base(path))
	}

	if err := t.validator.SafeRename(path, dest); err != nil {
		return "", err
	}

	return dest, nil
}

// Restore moves a trashed file back to originalPath. It never replaces an
// existing file.
func (t *Trasher) Restore(trashedPath, originalPath string) error {
	if filepath.Dir(filepath.Clean(trashedPath)) != t.trashRoot {
		return fmt.Errorf("%w: %s", ErrNotInTrash, trashedPath)
	}

	if _, err := os.Lstat(originalPath); err == nil {
		return fmt.Errorf("%w: %s", ErrRestoreConflict, originalPath)
	}

	return t.validator.SafeRename(trashedPath, originalPath)
}

// Cleanup removes the run's trash directory once it is empty. A directory
// that still holds files is left alone.
func (t *Trasher) Cleanup() error {
	entries, err := os.ReadDir(t.trashRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read trash directory: %w", err)
	}
	if len(entries) > 0 {
		return nil
	}

	return t.validator.SafeRemove(t.trashRoot)
}
