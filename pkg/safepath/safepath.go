// Package safepath keeps filesystem writes inside a single directory.
//
// pngdup writes copies next to their source and metadata below it; every such
// path goes through a Validator rooted at the source directory so that a
// crafted suffix or a planted symlink cannot redirect a write elsewhere.
package safepath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape indicates a path outside the root directory.
	ErrPathEscape = errors.New("path escapes root directory")
	// ErrSymlinkEscape indicates a path whose existing components resolve outside the root.
	ErrSymlinkEscape = errors.New("symlink target escapes root directory")
	// ErrInvalidRoot indicates the root is missing or not a directory.
	ErrInvalidRoot = errors.New("invalid root directory")
)

// Validator checks paths against a symlink-resolved root directory.
type Validator struct {
	root string
}

// New creates a Validator for root, which must be an existing directory.
func New(root string) (*Validator, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	resolved, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	return &Validator{root: filepath.Clean(resolved)}, nil
}

// Root returns the absolute, symlink-resolved root directory.
func (v *Validator) Root() string {
	return v.root
}

// Contains reports whether path lexically lies within the root.
func (v *Validator) Contains(path string) bool {
	return v.ValidatePath(path) == nil
}

// ValidatePath checks that path lexically lies within the root.
// Symlinks are not followed.
func (v *Validator) ValidatePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve path", ErrPathEscape)
	}

	if !within(v.root, filepath.Clean(absPath)) {
		return ErrPathEscape
	}

	return nil
}

// ValidatePathForWrite checks that path lies within the root and that the
// deepest existing component of path does not resolve outside it. An existing
// symlink at path is therefore judged by its target.
func (v *Validator) ValidatePathForWrite(path string) error {
	if err := v.ValidatePath(path); err != nil {
		return err
	}

	resolved, err := resolveExisting(path)
	if err != nil {
		return err
	}

	if err := v.ValidatePath(resolved); err != nil {
		return fmt.Errorf("%w: %s -> %s", ErrSymlinkEscape, path, resolved)
	}

	return nil
}

// ResolveSafePath joins a relative path onto basePath (absolute paths are
// taken as-is) and returns the cleaned result if it stays within the root.
func (v *Validator) ResolveSafePath(basePath, relativePath string) (string, error) {
	fullPath := relativePath
	if !filepath.IsAbs(relativePath) {
		fullPath = filepath.Join(basePath, relativePath)
	}

	cleanPath := filepath.Clean(fullPath)
	if err := v.ValidatePath(cleanPath); err != nil {
		return "", err
	}

	return cleanPath, nil
}

// SafeRemove removes a file after ValidatePathForWrite approves it.
func (v *Validator) SafeRemove(path string) error {
	if filepath.Clean(path) == v.root {
		return fmt.Errorf("%w: refusing to remove root", ErrPathEscape)
	}
	if err := v.ValidatePathForWrite(path); err != nil {
		return fmt.Errorf("%w: %s", err, path)
	}

	return os.Remove(path)
}

// SafeRename renames oldPath to newPath when both stay within root.
func (v *Validator) SafeRename(oldPath, newPath string) error {
	if err := v.ValidatePathForWrite(oldPath); err != nil {
		return fmt.Errorf("source %w: %s", err, oldPath)
	}
	if err := v.ValidatePathForWrite(newPath); err != nil {
		return fmt.Errorf("destination %w: %s", err, newPath)
	}

	return os.Rename(oldPath, newPath)
}

// SafeMkdirAll creates path and its parents after ValidatePathForWrite approves it.
func (v *Validator) SafeMkdirAll(path string) error {
	if err := v.ValidatePathForWrite(path); err != nil {
		return fmt.Errorf("%w: %s", err, path)
	}

	return os.MkdirAll(path, 0o755)
}

// within reports whether child equals parent or lies below it.
// Both paths must be absolute and clean.
func within(parent, child string) bool {
	if parent == child {
		return true
	}

	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	return strings.HasPrefix(child, prefix)
}

// maxLinkHops bounds dangling-link resolution.
const maxLinkHops = 40

// resolveExisting resolves symlinks in the longest existing prefix of path.
// A dangling symlink is followed to its (missing) target.
func resolveExisting(path string) (string, error) {
	return resolveExistingHops(path, 0)
}

func resolveExistingHops(path string, hops int) (string, error) {
	if hops > maxLinkHops {
		return "", fmt.Errorf("cannot resolve symlinks: too many links: %s", path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("cannot resolve symlinks: %w", err)
	}

	if info, lstatErr := os.Lstat(absPath); lstatErr == nil && info.Mode()&os.ModeSymlink != 0 {
		target, readErr := os.Readlink(absPath)
		if readErr != nil {
			return "", fmt.Errorf("cannot read symlink: %w", readErr)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(absPath), target)
		}
		return resolveExistingHops(target, hops+1)
	}

	parent := filepath.Dir(absPath)
	if parent == absPath {
		return "", fmt.Errorf("cannot resolve symlinks: %w", err)
	}

	resolvedParent, err := resolveExistingHops(parent, hops)
	if err != nil {
		return "", err
	}

	return filepath.Join(resolvedParent, filepath.Base(absPath)), nil
}
