package duplicator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSuffix indicates a label that cannot be used as part of a file name.
var ErrInvalidSuffix = errors.New("invalid suffix")

// DefaultSuffixes are the color labels used when the caller supplies none.
var DefaultSuffixes = []string{
	"Blanco",
	"Rojo",
	"Azul",
	"Amarillo",
	"Rosa",
	"Verde",
	"Morado",
	"Cafe",
	"Gris",
}

// Defaults returns a fresh copy of DefaultSuffixes.
func Defaults() []string {
	return append([]string(nil), DefaultSuffixes...)
}

// ValidateSuffix rejects labels that would produce a path outside the source
// directory or an unnamed variant.
func ValidateSuffix(suffix string) error {
	switch {
	case strings.TrimSpace(suffix) == "":
		return fmt.Errorf("%w: empty label", ErrInvalidSuffix)
	case strings.ContainsAny(suffix, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidSuffix, suffix)
	case strings.ContainsRune(suffix, 0):
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidSuffix, suffix)
	}

	return nil
}

// ValidateSuffixes checks every label and returns the first failure.
func ValidateSuffixes(suffixes []string) error {
	for i, suffix := range suffixes {
		if err := ValidateSuffix(suffix); err != nil {
			return fmt.Errorf("suffix %d: %w", i+1, err)
		}
	}

	return nil
}
