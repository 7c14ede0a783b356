package duplicator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extension is the only accepted source extension (compared case-insensitively)
// and the extension every copy is written with.
const Extension = ".png"

var (
	// ErrNotFound indicates the source path does not reference an existing regular file.
	ErrNotFound = errors.New("source file not found")
	// ErrInvalidFormat indicates the source extension is not .png.
	ErrInvalidFormat = errors.New("source file must have a .png extension")
)

// Source describes the validated input file.
type Source struct {
	Path     string // absolute path as given, symlinks not resolved
	Dir      string // absolute directory copies are written to
	Base     string // file name without extension
	Ext      string // extension as written in the file name
	ReadPath string // path the bytes are read from (symlinks resolved)
	Size     int64
}

// ResolveSource validates path and returns its Source description.
// Existence is checked before the extension, so a missing "a.jpg" reports ErrNotFound.
func ResolveSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Source{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	name := filepath.Base(path)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		// Dotfiles such as ".png" have no extension at all.
		base, ext = name, ""
	}
	if !strings.EqualFold(ext, Extension) {
		return Source{}, fmt.Errorf("%w: got %q", ErrInvalidFormat, ext)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("cannot resolve path: %w", err)
	}

	readPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}

	return Source{
		Path:     absPath,
		Dir:      filepath.Dir(absPath),
		Base:     base,
		Ext:      ext,
		ReadPath: readPath,
		Size:     info.Size(),
	}, nil
}

// DestinationName returns the file name of the copy for suffix: "<base> <suffix>.png".
func DestinationName(base, suffix string) string {
	return base + " " + suffix + Extension
}

// DestinationPath returns the absolute path of the copy for suffix.
func (s Source) DestinationPath(suffix string) string {
	return filepath.Join(s.Dir, DestinationName(s.Base, suffix))
}
