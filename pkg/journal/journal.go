// Package journal records the files a duplication run wrote, one JSON object
// per line, so that the run can later be undone.
//
// Every mutation is written as an intent entry (ok=false) followed by a
// confirmation entry (ok=true). A journal that ends on an unconfirmed intent
// belongs to a run that was interrupted; Validate reports it.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Entry types.
const (
	// TypeCreate records a copy written to a previously unused name.
	TypeCreate = "create"
	// TypeOverwrite records a copy that replaced an existing file.
	TypeOverwrite = "overwrite"
	// TypeTrash records a file moved aside before a copy replaced it.
	// Source is the original location, Dest the trash location.
	TypeTrash = "trash"
)

// Entry represents a single filesystem mutation logged to the journal.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	Source    string    `json:"src"`            // source file, relative to the journal root
	Dest      string    `json:"dst,omitempty"`  // written file, relative to the journal root
	Hash      string    `json:"hash,omitempty"` // SHA256 of the written content
	Size      int64     `json:"size,omitempty"`
	Success   bool      `json:"ok"`
}

// Writer appends entries to a JSONL file, syncing after each line.
//
// Writer is safe for concurrent use.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewWriter opens path for appending, creating it if needed. The parent
// directory must already exist.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Writer{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// Log writes an entry and syncs it to disk. A zero Timestamp is set to now.
func (w *Writer) Log(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if err := w.encoder.Encode(entry); err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}

	return nil
}

// LogConfirmed writes entry as an intent followed by its confirmation.
func (w *Writer) LogConfirmed(entry Entry) error {
	intent := entry
	intent.Success = false
	if err := w.Log(intent); err != nil {
		return fmt.Errorf("write journal intent: %w", err)
	}

	entry.Success = true
	if err := w.Log(entry); err != nil {
		return fmt.Errorf("write journal confirmation: %w", err)
	}

	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.file.Close()
}

// Reader reads journal entries from a JSONL file.
type Reader struct {
	path string
}

// NewReader creates a journal reader for the given path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Entries reads all entries in file order. On a malformed line it returns
// the entries read so far together with the error.
func (r *Reader) Entries() ([]Entry, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return entries, fmt.Errorf("decode journal line %d: %w", lineNum, err)
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read journal: %w", err)
	}

	return entries, nil
}

// ConfirmedReverse returns the confirmed entries, newest first.
func (r *Reader) ConfirmedReverse() ([]Entry, error) {
	entries, err := r.Entries()
	if err != nil {
		return nil, err
	}

	confirmed := make([]Entry, 0, len(entries)/2)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Success {
			confirmed = append(confirmed, entries[i])
		}
	}

	return confirmed, nil
}

// ErrPartialWrite is returned when an intent entry has no matching confirmation.
var ErrPartialWrite = errors.New("journal contains unconfirmed entries")

// Validate returns ErrPartialWrite if any intent was never confirmed.
func (r *Reader) Validate() error {
	entries, err := r.Entries()
	if err != nil {
		return err
	}

	type opKey struct {
		typ  string
		dest string
	}

	pending := make(map[opKey]int)
	for i := range entries {
		key := opKey{typ: entries[i].Type, dest: entries[i].Dest}
		if entries[i].Success {
			if pending[key] > 0 {
				pending[key]--
			}
			continue
		}
		pending[key]++
	}

	for _, n := range pending {
		if n > 0 {
			return ErrPartialWrite
		}
	}

	return nil
}
