package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func CreateFile(t *testing.T, path, content string) {
	t.Helper()
	createFileBytes(t, path, []byte(content), 0o644, false, time.Time{})
}

func CreateFileWithMode(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	createFileBytes(t, path, []byte(content), mode, false, time.Time{})
}

func CreateFileWithModTime(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	createFileBytes(t, path, []byte(content), 0o600, true, modTime)
}

// PNGBytes encodes a small deterministic image. Different seeds give different bytes.
func PNGBytes(t *testing.T, seed uint8) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: seed, G: uint8(x * 60), B: uint8(y * 60), A: 0xff})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

// CreatePNG writes a small PNG to path and returns its bytes.
func CreatePNG(t *testing.T, path string) []byte {
	t.Helper()

	content := PNGBytes(t, 0x80)
	createFileBytes(t, path, content, 0o644, false, time.Time{})

	return content
}

func ReadFile(t *testing.T, path string) []byte {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	return content
}

// ListFiles returns the sorted names of the regular files directly inside dir.
func ListFiles(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	return names
}

func createFileBytes(t *testing.T, path string, content []byte, mode os.FileMode, setModTime bool, modTime time.Time) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	require.NoError(t, err)

	err = os.WriteFile(path, content, mode)
	require.NoError(t, err)

	if !setModTime {
		return
	}

	err = os.Chtimes(path, modTime, modTime)
	require.NoError(t, err)
}
