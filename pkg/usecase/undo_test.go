package usecase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pngdup/internal/testutil"
	"pngdup/pkg/metadata"
)

func journaledRun(t *testing.T, srcPath string, suffixes ...string) DuplicateExecution {
	t.Helper()

	execution, err := New(Options{}).RunDuplicate(DuplicateRequest{
		SourcePath: srcPath,
		Suffixes:   suffixes,
		Journal:    true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, execution.JournalPath)

	return execution
}

func TestService_RunUndo_RemovesCopiesAndRestoresReplacedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)
	testutil.CreateFile(t, filepath.Join(dir, "fish Azul.png"), "older art")

	run := journaledRun(t, srcPath, "Rojo", "Azul", "Verde")

	stages := 0
	execution, err := New(Options{}).RunUndo(UndoRequest{
		TargetDir: dir,
		OnProgress: func(stage string, _, _ int) {
			assert.Equal(t, "undoing", stage)
			stages++
		},
	})
	require.NoError(t, err)

	assert.Equal(t, run.RunID, execution.RunID)
	assert.Equal(t, 3, execution.RemovedCount)
	assert.Equal(t, 1, execution.RestoredCount)
	assert.Zero(t, execution.SkippedCount)
	assert.Zero(t, execution.ErrorCount)
	assert.Equal(t, 4, stages)

	assert.Equal(t, []string{"fish Azul.png", "fish.png"}, testutil.ListFiles(t, dir))
	assert.Equal(t, "older art", string(testutil.ReadFile(t, filepath.Join(dir, "fish Azul.png"))),
		"the replaced file must be restored")

	_, err = os.Stat(filepath.Join(dir, metadata.DirName, "trash", run.RunID))
	assert.True(t, os.IsNotExist(err), "empty trash must be cleaned up")

	_, err = os.Stat(run.JournalPath)
	assert.True(t, os.IsNotExist(err), "journal must be marked as rolled back")
	assert.FileExists(t, filepath.Join(dir, metadata.DirName, "journal", run.RunID+".rolled-back.jsonl"))
}

func TestService_RunUndo_KeepsEditedReplacement(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)
	testutil.CreateFile(t, filepath.Join(dir, "fish Azul.png"), "older art")

	run := journaledRun(t, srcPath, "Azul")
	testutil.CreateFile(t, filepath.Join(dir, "fish Azul.png"), "retouched blue")

	execution, err := New(Options{}).RunUndo(UndoRequest{TargetDir: dir})
	require.NoError(t, err)

	assert.Zero(t, execution.RemovedCount)
	assert.Zero(t, execution.RestoredCount)
	assert.Equal(t, 2, execution.SkippedCount)
	assert.Equal(t, "retouched blue", string(testutil.ReadFile(t, filepath.Join(dir, "fish Azul.png"))))
	assert.FileExists(t, filepath.Join(dir, metadata.DirName, "trash", run.RunID, "fish Azul.png"),
		"the unrestored file stays in the trash")
}

func TestService_RunUndo_DryRunReportsRestore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)
	testutil.CreateFile(t, filepath.Join(dir, "fish Azul.png"), "older art")

	journaledRun(t, srcPath, "Azul")

	execution, err := New(Options{}).RunUndo(UndoRequest{TargetDir: dir, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, execution.RemovedCount)
	assert.Equal(t, 1, execution.RestoredCount)
	assert.NotEqual(t, "older art", string(testutil.ReadFile(t, filepath.Join(dir, "fish Azul.png"))),
		"dry-run must leave the copy in place")
}

func TestService_RunUndo_RepeatedSuffixRemovesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "X.png")
	testutil.CreatePNG(t, srcPath)

	journaledRun(t, srcPath, "Red", "Red")

	execution, err := New(Options{}).RunUndo(UndoRequest{TargetDir: dir})
	require.NoError(t, err)

	assert.Equal(t, 1, execution.RemovedCount)
	assert.Equal(t, 1, execution.SkippedCount)
	assert.Equal(t, []string{"X.png"}, testutil.ListFiles(t, dir))
}

func TestService_RunUndo_SkipsModifiedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)

	journaledRun(t, srcPath, "Rojo", "Azul")
	testutil.CreateFile(t, filepath.Join(dir, "fish Rojo.png"), "hand-painted red variant")

	execution, err := New(Options{}).RunUndo(UndoRequest{TargetDir: dir})
	require.NoError(t, err)

	assert.Equal(t, 1, execution.RemovedCount)
	assert.Equal(t, 1, execution.SkippedCount)

	var skipped UndoOperation
	for _, op := range execution.Operations {
		if op.Action == ActionSkip {
			skipped = op
		}
	}
	assert.Equal(t, "fish Rojo.png", skipped.Path)
	assert.Contains(t, skipped.SkipReason, "hash mismatch")

	assert.Equal(t, "hand-painted red variant", string(testutil.ReadFile(t, filepath.Join(dir, "fish Rojo.png"))))
}

func TestService_RunUndo_DryRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)

	run := journaledRun(t, srcPath, "Rojo")

	execution, err := New(Options{}).RunUndo(UndoRequest{TargetDir: dir, DryRun: true})
	require.NoError(t, err)

	assert.True(t, execution.DryRun)
	assert.Equal(t, 1, execution.RemovedCount)
	assert.Equal(t, []string{"fish Rojo.png", "fish.png"}, testutil.ListFiles(t, dir))
	assert.FileExists(t, run.JournalPath, "dry-run must keep the journal active")
}

func TestService_RunUndo_SelectsRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)

	first := journaledRun(t, srcPath, "Rojo")
	second := journaledRun(t, srcPath, "Azul")
	require.NotEqual(t, first.RunID, second.RunID)

	execution, err := New(Options{}).RunUndo(UndoRequest{TargetDir: dir, RunID: first.RunID})
	require.NoError(t, err)
	assert.Equal(t, first.RunID, execution.RunID)
	assert.Equal(t, []string{"fish Azul.png", "fish.png"}, testutil.ListFiles(t, dir))

	// The remaining active journal is the newest.
	execution, err = New(Options{}).RunUndo(UndoRequest{TargetDir: dir})
	require.NoError(t, err)
	assert.Equal(t, second.RunID, execution.RunID)
	assert.Equal(t, []string{"fish.png"}, testutil.ListFiles(t, dir))

	_, err = New(Options{}).RunUndo(UndoRequest{TargetDir: dir})
	require.ErrorIs(t, err, ErrNoJournal)
}

func TestService_RunUndo_AcceptsFileInTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)
	journaledRun(t, srcPath, "Rojo")

	execution, err := New(Options{}).RunUndo(UndoRequest{TargetDir: srcPath})
	require.NoError(t, err)
	assert.Equal(t, 1, execution.RemovedCount)
}

func TestService_RunUndo_NoJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := New(Options{}).RunUndo(UndoRequest{TargetDir: dir})
	require.ErrorIs(t, err, ErrNoJournal)
	assert.False(t, metadataExists(t, dir), "undo must not create metadata")

	_, err = New(Options{}).RunUndo(UndoRequest{TargetDir: dir, RunID: "duplicate-missing"})
	require.ErrorIs(t, err, ErrNoJournal)
}

func TestService_RunUndo_UnknownRunID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)
	journaledRun(t, srcPath, "Rojo")

	_, err := New(Options{}).RunUndo(UndoRequest{TargetDir: dir, RunID: "duplicate-19990101T000000.000000"})
	require.ErrorIs(t, err, ErrNoJournal)
	assert.Contains(t, err.Error(), "duplicate-19990101T000000.000000")
}
