// Package hasher computes SHA256 digests of files, optionally across a pool
// of worker goroutines. pngdup uses it to confirm that every copy is
// byte-identical to its source and to fingerprint files recorded in the journal.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"runtime"
	"sync"
)

// HashResult contains the result of hashing a single file.
type HashResult struct {
	Path  string
	Hash  string
	Size  int64
	Error error
}

// Hasher computes SHA256 hashes of files.
type Hasher struct {
	workers int
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithWorkers sets the number of worker goroutines used by HashFiles.
// Non-positive values keep the default of runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.workers = n
		}
	}
}

// New creates a Hasher with the given options.
func New(opts ...Option) *Hasher {
	h := &Hasher{
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ComputeHash returns the hex-encoded SHA256 of the file at path.
func (h *Hasher) ComputeHash(path string) (string, error) {
	digest, _, err := h.hashWithSize(path)
	return digest, err
}

func (h *Hasher) hashWithSize(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hash := sha256.New()
	n, err := io.Copy(hash, f)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(hash.Sum(nil)), n, nil
}

// HashFiles hashes paths concurrently. The returned channel yields one
// HashResult per path, in completion order, and is closed once every worker
// has exited.
func (h *Hasher) HashFiles(paths []string) <-chan HashResult {
	results := make(chan HashResult, h.workers)

	go func() {
		defer close(results)

		work := make(chan string, h.workers)

		var wg sync.WaitGroup
		for i := 0; i < h.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for path := range work {
					digest, size, err := h.hashWithSize(path)
					results <- HashResult{
						Path:  path,
						Hash:  digest,
						Size:  size,
						Error: err,
					}
				}
			}()
		}

		for _, path := range paths {
			work <- path
		}
		close(work)

		wg.Wait()
	}()

	return results
}

// HashAll drains HashFiles into a map keyed by path.
func (h *Hasher) HashAll(paths []string) map[string]HashResult {
	byPath := make(map[string]HashResult, len(paths))
	for result := range h.HashFiles(paths) {
		byPath[result.Path] = result
	}
	return byPath
}

// Workers returns the number of worker goroutines configured.
func (h *Hasher) Workers() int {
	return h.workers
}
