package sample

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Buffer is the in-memory accumulator the orchestrator appends sample
// batches to before flushing them to an immutable JSONL file. Safe for concurrent
// Append calls from multiple workers; Flush is expected to be called
// from a single goroutine (the orchestrator's timer/shutdown path).
type Buffer struct {
	mu      sync.Mutex
	dir     string
	pending []Sample
	counter int
}

// NewBuffer creates a Buffer that flushes into dir, creating it if
// necessary.
func NewBuffer(dir string) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "sample: create replay dir")
	}
	return &Buffer{dir: dir}, nil
}

// Append adds samples to the pending buffer.
func (b *Buffer) Append(samples ...Sample) {
	b.mu.Lock()
	b.pending = append(b.pending, samples...)
	b.mu.Unlock()
}

// Len returns the number of samples currently pending flush.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush writes every pending sample to a new, immutable, timestamp +
// random-suffix + counter-named JSONL file and clears the pending
// buffer. A flush of zero samples is a no-op. On failure the batch is
// returned to the pending buffer so the next interval retries it.
func (b *Buffer) Flush() (path string, n int, err error) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.counter++
	seq := b.counter
	b.mu.Unlock()

	if len(batch) == 0 {
		return "", 0, nil
	}
	defer func() {
		if err != nil {
			b.mu.Lock()
			b.pending = append(batch, b.pending...)
			b.mu.Unlock()
		}
	}()

	name := flushFileName(seq)
	full := filepath.Join(b.dir, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, errors.Wrap(err, "sample: create replay file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, s := range batch {
		if err := enc.Encode(s); err != nil {
			return "", 0, errors.Wrap(err, "sample: encode replay sample")
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, errors.Wrap(err, "sample: flush replay file")
	}
	return full, len(batch), nil
}

// flushFileName builds a lexicographically-increasing file name:
// nanosecond-precision UTC timestamp, a random UUID suffix for
// cross-process uniqueness, and the in-process flush counter.
func flushFileName(counter int) string {
	ts := time.Now().UTC().Format("20060102T150405.000000000Z")
	return fmt.Sprintf("%s-%s-%06d.jsonl", ts, uuid.NewString(), counter)
}
