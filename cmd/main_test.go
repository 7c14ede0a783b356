package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pngdup/internal/testutil"
	"pngdup/pkg/duplicator"
	"pngdup/pkg/usecase"
)

func setCommandGlobals(t *testing.T, dryRunValue, verboseValue bool, workersValue int) {
	t.Helper()

	prevDryRun := dryRun
	prevVerbose := verbose
	prevWorkers := workers
	prevLogger := logger

	dryRun = dryRunValue
	verbose = verboseValue
	workers = workersValue

	t.Cleanup(func() {
		dryRun = prevDryRun
		verbose = prevVerbose
		workers = prevWorkers
		logger = prevLogger
	})
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = writer
	defer func() {
		os.Stdout = oldStdout
	}()

	fn()

	require.NoError(t, writer.Close())
	out, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	return string(out)
}

// executeCommand runs the full command tree with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	setCommandGlobals(t, false, false, 1)

	rootCmd := buildRootCommand()
	rootCmd.AddCommand(buildUndoCommand())
	rootCmd.SetArgs(args)
	rootCmd.SetErr(io.Discard)

	var err error
	output := captureStdout(t, func() {
		err = rootCmd.Execute()
	})

	return output, err
}

func TestDuplicate_DefaultColors(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	content := testutil.CreatePNG(t, srcPath)

	output, err := executeCommand(t, srcPath)
	require.NoError(t, err)

	lastIndex := -1
	for _, suffix := range duplicator.DefaultSuffixes {
		dest := filepath.Join(dir, "fish "+suffix+".png")
		line := "Created: " + dest + "\n"

		index := strings.Index(output, line)
		require.GreaterOrEqual(t, index, 0, "missing %q", line)
		assert.Greater(t, index, lastIndex, "copies must be reported in suffix order")
		lastIndex = index

		assert.Equal(t, content, testutil.ReadFile(t, dest))
	}

	assert.Contains(t, output, "Command: DUPLICATE")
	assert.Contains(t, output, "Source: "+srcPath)
	assert.Contains(t, output, "=== Summary ===")
	assert.Contains(t, output, "Created:      9")
	assert.Contains(t, output, "Overwritten:  0")
	assert.Contains(t, output, "Errors:       0")
	assert.NotContains(t, output, "Journal:")
	assert.Len(t, testutil.ListFiles(t, dir), 10)
}

func TestDuplicate_DryRun_OutputSummary(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)

	output, err := executeCommand(t, "--dry-run", "-c", "Rojo,Azul", srcPath)
	require.NoError(t, err)

	assert.Contains(t, output, "=== DRY RUN - no changes will be made ===")
	assert.Contains(t, output, "Would create: "+filepath.Join(dir, "fish Rojo.png"))
	assert.Contains(t, output, "Would create: "+filepath.Join(dir, "fish Azul.png"))
	assert.NotContains(t, output, "Created: ")
	assert.Contains(t, output, "Planned:      2")
	assert.Contains(t, output, "Run without --dry-run to apply changes.")

	assert.Equal(t, []string{"fish.png"}, testutil.ListFiles(t, dir), "dry-run must not write copies")
}

func TestDuplicate_SingleColor(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "X.png")
	testutil.CreatePNG(t, srcPath)

	output, err := executeCommand(t, "--colors", "Red", srcPath)
	require.NoError(t, err)

	assert.Contains(t, output, "Created: "+filepath.Join(dir, "X Red.png"))
	assert.Equal(t, []string{"X Red.png", "X.png"}, testutil.ListFiles(t, dir))
}

func TestDuplicate_EmptyColors(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)

	output, err := executeCommand(t, "--colors=", srcPath)
	require.NoError(t, err)

	assert.NotContains(t, output, "Created: ")
	assert.Contains(t, output, "Suffixes:     0")
	assert.Equal(t, []string{"fish.png"}, testutil.ListFiles(t, dir))
}

func TestDuplicate_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)

	cfgDir := t.TempDir()
	cfgPath := filepath.Join(cfgDir, "pngdup.yaml")
	testutil.CreateFile(t, cfgPath, "suffixes: [Oro, Plata]\nverify: true\n")

	output, err := executeCommand(t, "--config", cfgPath, srcPath)
	require.NoError(t, err)

	assert.Equal(t, []string{"fish Oro.png", "fish Plata.png", "fish.png"}, testutil.ListFiles(t, dir))
	assert.Contains(t, output, "Verified:     2")
}

func TestDuplicate_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)

	cfgPath := filepath.Join(t.TempDir(), "pngdup.yaml")
	testutil.CreateFile(t, cfgPath, "suffixes: [Oro, Plata]\nverify: true\n")

	output, err := executeCommand(t, "--config", cfgPath, "-c", "Bronce", "--verify=false", srcPath)
	require.NoError(t, err)

	assert.Equal(t, []string{"fish Bronce.png", "fish.png"}, testutil.ListFiles(t, dir))
	assert.NotContains(t, output, "Verified:")
}

func TestDuplicate_ConfigErrors(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)

	_, err := executeCommand(t, "--config", filepath.Join(dir, "missing.yaml"), srcPath)
	require.ErrorIs(t, err, os.ErrNotExist)

	badPath := filepath.Join(t.TempDir(), "bad.yaml")
	testutil.CreateFile(t, badPath, "colours: [Rojo]\n")

	_, err = executeCommand(t, "--config", badPath, srcPath)
	require.Error(t, err)

	assert.Equal(t, []string{"fish.png"}, testutil.ListFiles(t, dir))
}

func TestDuplicate_ValidationErrors(t *testing.T) {
	dir := t.TempDir()
	jpgPath := filepath.Join(dir, "photo.jpg")
	testutil.CreateFile(t, jpgPath, "jpeg")

	output, err := executeCommand(t, jpgPath)
	require.ErrorIs(t, err, duplicator.ErrInvalidFormat)
	assert.NotContains(t, output, "=== Summary ===")

	_, err = executeCommand(t, filepath.Join(dir, "ghost.png"))
	require.ErrorIs(t, err, duplicator.ErrNotFound)

	pngPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, pngPath)

	_, err = executeCommand(t, "-c", "Rojo,a/b", pngPath)
	require.ErrorIs(t, err, duplicator.ErrInvalidSuffix)

	_, err = executeCommand(t)
	require.Error(t, err, "a source path is required")

	assert.Equal(t, []string{"fish.png", "photo.jpg"}, testutil.ListFiles(t, dir))
}

func TestDuplicate_CopyFailureReportsSummary(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "fish Azul.png"), 0o755))

	output, err := executeCommand(t, "-c", "Rojo,Azul,Verde", srcPath)

	var copyErr *duplicator.CopyError
	require.ErrorAs(t, err, &copyErr)

	assert.Contains(t, output, "Created: "+filepath.Join(dir, "fish Rojo.png"))
	assert.NotContains(t, output, "fish Verde.png")
	assert.Contains(t, output, "Errors:       1")
}

func TestDuplicate_JournalThenUndo(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fish.png")
	testutil.CreatePNG(t, srcPath)

	output, err := executeCommand(t, "--journal", "-c", "Rojo,Azul", srcPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Journal:      ")

	output, err = executeCommand(t, "undo", "--dry-run", dir)
	require.NoError(t, err)
	assert.Contains(t, output, "Command: UNDO")
	assert.Contains(t, output, "REMOVE: fish Rojo.png")
	assert.Contains(t, output, "Removed:   2")
	assert.Len(t, testutil.ListFiles(t, dir), 3, "dry-run undo must keep copies")

	output, err = executeCommand(t, "undo", dir)
	require.NoError(t, err)
	assert.Contains(t, output, "Removed:   2")
	assert.Equal(t, []string{"fish.png"}, testutil.ListFiles(t, dir))

	_, err = executeCommand(t, "undo", dir)
	require.ErrorIs(t, err, usecase.ErrNoJournal)
}

func TestRunUndo_DirectCall(t *testing.T) {
	dir := t.TempDir()

	setCommandGlobals(t, false, false, 1)
	logger = zap.NewNop()

	var err error
	captureStdout(t, func() {
		err = runUndo(nil, []string{dir})
	})
	require.ErrorIs(t, err, usecase.ErrNoJournal)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	quiet, err := newLogger(false)
	require.NoError(t, err)
	assert.False(t, quiet.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, quiet.Core().Enabled(zapcore.WarnLevel))

	loud, err := newLogger(true)
	require.NoError(t, err)
	assert.True(t, loud.Core().Enabled(zapcore.DebugLevel))
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 bytes"},
		{1023, "1023 bytes"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.bytes))
	}
}

func TestPrintDetailedOperations(t *testing.T) {
	setCommandGlobals(t, false, false, 1)

	ops := []usecase.UndoOperation{
		{EntryType: "create", Path: "fish Rojo.png", Action: usecase.ActionRemove},
		{EntryType: "overwrite", Path: "fish Azul.png", Action: usecase.ActionSkip, SkipReason: "kept"},
	}

	output := captureStdout(t, func() {
		printDetailedOperations(ops, printUndoOperation, func(op usecase.UndoOperation) bool {
			return op.Action == usecase.ActionSkip
		})
	})
	assert.Equal(t, "SKIP: [overwrite] fish Azul.png (kept)\n\n", output)

	verbose = true
	output = captureStdout(t, func() {
		printDetailedOperations(ops, printUndoOperation, func(usecase.UndoOperation) bool { return false })
	})
	assert.Contains(t, output, "REMOVE: fish Rojo.png\n")
	assert.Contains(t, output, "SKIP: [overwrite] fish Azul.png (kept)\n")
}
