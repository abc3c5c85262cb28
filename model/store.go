// Package model wraps an eval.Evaluator with the staleness-detection
// and reload machinery the self-play workers, arena gate, and
// inference server all need: load once from a local path or a remote
// URL, then periodically check whether a newer version is available
// (local mtime, remote ETag) and swap it in.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/alphabeth/renju/eval"
)

// Factory builds an Evaluator from the model file at path. It is
// the external hook into whatever tensor runtime backs the network;
// this package imposes no semantics on model internals.
type Factory func(path string) (eval.Evaluator, error)

// Store holds the currently-loaded model behind a guarded pointer:
// reload swaps the pointer under a write lock, but readers that
// already took a reference via Current keep it valid until they're
// done.
type Store struct {
	mu sync.RWMutex

	path    string
	url     string
	factory Factory
	client  *http.Client

	current     eval.Evaluator
	modTime     time.Time
	etag        string
	fingerprint string
}

// NewStore builds a Store for a local path, an optional remote URL
// that, when set, is loaded in preference to the local path, and the
// factory used to turn a model file into an Evaluator.
func NewStore(path, url string, factory Factory) *Store {
	return &Store{
		path:    path,
		url:     url,
		factory: factory,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Current returns the currently-loaded evaluator. Safe to call
// concurrently with Load or CheckReload.
func (s *Store) Current() eval.Evaluator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Fingerprint identifies the currently-loaded model version, for
// arena_result records.
func (s *Store) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

// Path returns the local file path this Store loads from, for
// callers that need to snapshot or replace the underlying file.
func (s *Store) Path() string {
	return s.path
}

// Bootstrap loads the model if it already exists on disk; otherwise
// it delegates to factory to create a randomly-initialized one at
// path.
func (s *Store) Bootstrap() error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		ev, err := s.factory(s.path)
		if err != nil {
			return errors.Wrap(err, "model: bootstrap factory")
		}
		s.mu.Lock()
		s.current = ev
		s.fingerprint = fingerprintBytes([]byte(s.path + ":bootstrap"))
		s.mu.Unlock()
		return nil
	}
	return s.Load()
}

// Load loads the model fresh from s.url if set, else from s.path.
func (s *Store) Load() error {
	if s.url != "" {
		return s.loadRemote()
	}
	return s.loadLocal()
}

func (s *Store) loadLocal() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return errors.Wrap(err, "model: stat local model")
	}
	ev, err := s.factory(s.path)
	if err != nil {
		return errors.Wrap(err, "model: load local model")
	}
	fp, err := fingerprintFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = ev
	s.modTime = info.ModTime()
	s.fingerprint = fp
	s.mu.Unlock()
	return nil
}

func (s *Store) loadRemote() error {
	resp, err := s.client.Get(s.url)
	if err != nil {
		return errors.Wrap(err, "model: fetch remote model")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("model: remote fetch %s: HTTP %d", s.url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "model-*.bin")
	if err != nil {
		return errors.Wrap(err, "model: create temp file")
	}
	defer os.Remove(tmp.Name())
	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		tmp.Close()
		return errors.Wrap(err, "model: download remote model")
	}
	tmp.Close()

	if err := atomicReplace(tmp.Name(), s.path); err != nil {
		return err
	}

	ev, err := s.factory(s.path)
	if err != nil {
		return errors.Wrap(err, "model: load downloaded model")
	}

	s.mu.Lock()
	s.current = ev
	s.etag = resp.Header.Get("ETag")
	s.fingerprint = hex.EncodeToString(hasher.Sum(nil))
	s.mu.Unlock()
	return nil
}

// CheckReload reloads the model if the local file's mtime or the
// remote ETag has changed since the last load. Returns true if a reload
// happened.
func (s *Store) CheckReload() (bool, error) {
	if s.url != "" {
		resp, err := s.client.Head(s.url)
		if err != nil {
			return false, errors.Wrap(err, "model: head remote model")
		}
		resp.Body.Close()
		s.mu.RLock()
		stale := resp.Header.Get("ETag") != s.etag
		s.mu.RUnlock()
		if !stale {
			return false, nil
		}
		return true, s.loadRemote()
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return false, errors.Wrap(err, "model: stat local model")
	}
	s.mu.RLock()
	stale := !info.ModTime().Equal(s.modTime)
	s.mu.RUnlock()
	if !stale {
		return false, nil
	}
	return true, s.loadLocal()
}

func atomicReplace(tmpPath, finalPath string) error {
	if err := os.Rename(tmpPath, finalPath); err != nil {
		// cross-device rename: fall back to copy.
		src, err2 := os.Open(tmpPath)
		if err2 != nil {
			return errors.Wrap(err, "model: rename-or-copy into place")
		}
		defer src.Close()
		dst, err2 := os.Create(finalPath)
		if err2 != nil {
			return errors.Wrap(err, "model: rename-or-copy into place")
		}
		defer dst.Close()
		if _, err2 := io.Copy(dst, src); err2 != nil {
			return errors.Wrap(err2, "model: copy into place")
		}
	}
	return nil
}

func fingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "model: fingerprint")
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "model: fingerprint")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func fingerprintBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
