package cycle

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/alphabeth/renju/arena"
	"github.com/alphabeth/renju/orchestrator"
)

// StageStatus records one stage's outcome within a cycle.
type StageStatus struct {
	Status     string `json:"status"` // "running", "ok", "error", "skipped"
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"startedAt"`
	FinishedAt int64  `json:"finishedAt,omitempty"`
}

// Status is the whole-pipeline status document written to disk after
// every stage transition: per-stage transitions plus the most recent
// self-play counters and arena result.
type Status struct {
	Timestamp int64                  `json:"timestamp"`
	Cycle     int                    `json:"cycle"`
	Stages    map[string]StageStatus `json:"stages"`
	SelfPlay  *orchestrator.Stats    `json:"selfPlay,omitempty"`
	Arena     *arena.Result          `json:"arenaResult,omitempty"`
	LastError string                 `json:"lastError,omitempty"`
}

// statusFile guards atomic read-merge-write updates to the status
// document at path; one statusFile is shared by a single Controller
// run, so its mutex only needs to serialize against itself.
type statusFile struct {
	mu   sync.Mutex
	path string
}

func newStatusFile(path string) *statusFile {
	return &statusFile{path: path}
}

func (f *statusFile) load() (Status, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Status{Stages: map[string]StageStatus{}}, nil
	}
	if err != nil {
		return Status{}, errors.Wrap(err, "cycle: read status file")
	}
	var s Status
	if err := json.Unmarshal(b, &s); err != nil {
		return Status{}, errors.Wrap(err, "cycle: parse status file")
	}
	if s.Stages == nil {
		s.Stages = map[string]StageStatus{}
	}
	return s, nil
}

// update reads the current status, applies mutate, and writes the
// result back atomically (temp file + rename) so a reader never
// observes a partially-written document.
func (f *statusFile) update(cycleNum int, mutate func(*Status)) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.load()
	if err != nil {
		return Status{}, err
	}
	s.Cycle = cycleNum
	s.Timestamp = time.Now().UnixMilli()
	mutate(&s)

	if err := atomicWriteJSON(f.path, s); err != nil {
		return Status{}, err
	}
	return s, nil
}

// atomicWriteJSON marshals v and writes it to path via a temp file +
// rename, so a concurrent reader never observes a partially-written
// document. Shared by the status document and the arena_result file.
func atomicWriteJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "cycle: marshal %s", filepath.Base(path))
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "cycle: create temp file")
	}
	if _, err := tmp.Write(append(bytes.TrimSpace(raw), '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "cycle: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "cycle: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "cycle: rename temp file over %s", filepath.Base(path))
	}
	return nil
}

func nowMs() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }
