// Package metadata manages the .pngdup/ directory that journaled runs keep
// next to the files they write.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pngdup/pkg/safepath"
)

// DirName is the name of the metadata directory inside the target.
const DirName = ".pngdup"

const (
	journalExt        = ".jsonl"
	rolledBackJournal = ".rolled-back.jsonl"
)

// ErrNoMetadata indicates the target has never been used by a journaled run.
var ErrNoMetadata = errors.New("no .pngdup metadata directory")

// Dir provides access to the .pngdup/ directory structure.
type Dir struct {
	root      string
	validator *safepath.Validator
}

// Init returns the Dir for targetRoot, creating .pngdup/ if needed.
func Init(targetRoot string, validator *safepath.Validator) (*Dir, error) {
	metaRoot := filepath.Join(targetRoot, DirName)

	if err := validator.SafeMkdirAll(metaRoot); err != nil {
		return nil, fmt.Errorf("create metadata directory: %w", err)
	}

	return &Dir{
		root:      metaRoot,
		validator: validator,
	}, nil
}

// Open returns the Dir for targetRoot without creating anything.
func Open(targetRoot string, validator *safepath.Validator) (*Dir, error) {
	metaRoot := filepath.Join(targetRoot, DirName)

	if err := validator.ValidatePathForWrite(metaRoot); err != nil {
		return nil, fmt.Errorf("metadata directory: %w", err)
	}

	info, err := os.Stat(metaRoot)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w in %s", ErrNoMetadata, targetRoot)
	}

	return &Dir{
		root:      metaRoot,
		validator: validator,
	}, nil
}

// Root returns the absolute path to the .pngdup/ directory.
func (d *Dir) Root() string {
	return d.root
}

// JournalDir returns the directory holding run journals.
func (d *Dir) JournalDir() string {
	return filepath.Join(d.root, "journal")
}

// EnsureJournalDir creates the journal directory.
func (d *Dir) EnsureJournalDir() error {
	return d.validator.SafeMkdirAll(d.JournalDir())
}

// JournalPath returns the journal file path for a run ID.
func (d *Dir) JournalPath(runID string) string {
	return filepath.Join(d.JournalDir(), runID+journalExt)
}

// RolledBackPath returns the path a journal is renamed to once undone.
func (d *Dir) RolledBackPath(runID string) string {
	return filepath.Join(d.JournalDir(), runID+rolledBackJournal)
}

// TrashDir returns the directory that holds files a run replaced.
func (d *Dir) TrashDir(runID string) string {
	return filepath.Join(d.root, "trash", runID)
}

// LockPath returns the advisory lock file path.
func (d *Dir) LockPath() string {
	return filepath.Join(d.root, "lock")
}

// RunID generates a timestamped run ID: <command>-<YYYYMMDDTHHmmss.ffffff>.
// IDs of the same command sort chronologically.
func (d *Dir) RunID(command string) string {
	return command + "-" + time.Now().UTC().Format("20060102T150405.000000")
}

// ActiveRunIDs lists run IDs whose journals have not been rolled back,
// oldest first.
func (d *Dir) ActiveRunIDs() ([]string, error) {
	entries, err := os.ReadDir(d.JournalDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, journalExt) || strings.HasSuffix(name, rolledBackJournal) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, journalExt))
	}
	sort.Strings(ids)

	return ids, nil
}
