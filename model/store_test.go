package model

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alphabeth/renju/eval"
)

type fakeEvaluator struct{ tag string }

func (f *fakeEvaluator) PredictBatch(inputs [][]float32) ([][]float32, []float32, error) {
	policies := make([][]float32, len(inputs))
	values := make([]float32, len(inputs))
	for i := range inputs {
		policies[i] = []float32{1}
		values[i] = 0
	}
	return policies, values, nil
}

func fakeFactory(loaded *[]string) Factory {
	return func(path string) (eval.Evaluator, error) {
		*loaded = append(*loaded, path)
		return &fakeEvaluator{tag: path}, nil
	}
}

func TestBootstrapCreatesModelWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prod.model")
	var loaded []string

	s := NewStore(path, "", fakeFactory(&loaded))
	require.NoError(t, s.Bootstrap())
	require.NotNil(t, s.Current())
	require.Len(t, loaded, 1)
	require.Equal(t, path, loaded[0])
}

func TestLoadLocalDetectsMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prod.model")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	var loaded []string

	s := NewStore(path, "", fakeFactory(&loaded))
	require.NoError(t, s.Load())
	require.Len(t, loaded, 1)

	reloaded, err := s.CheckReload()
	require.NoError(t, err)
	require.False(t, reloaded)
	require.Len(t, loaded, 1)

	// mtime must visibly differ across filesystems with coarse resolution.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	reloaded, err = s.CheckReload()
	require.NoError(t, err)
	require.True(t, reloaded)
	require.Len(t, loaded, 2)
}

func TestLoadRemoteDetectsETagChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prod.model")
	var loaded []string
	etag := "v1"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", etag)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte("weights"))
	}))
	defer srv.Close()

	s := NewStore(path, srv.URL, fakeFactory(&loaded))
	require.NoError(t, s.Load())
	require.Len(t, loaded, 1)

	reloaded, err := s.CheckReload()
	require.NoError(t, err)
	require.False(t, reloaded)

	etag = "v2"
	reloaded, err = s.CheckReload()
	require.NoError(t, err)
	require.True(t, reloaded)
	require.Len(t, loaded, 2)
}

func TestFingerprintChangesAcrossVersions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prod.model")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	var loaded []string

	s := NewStore(path, "", fakeFactory(&loaded))
	require.NoError(t, s.Load())
	fp1 := s.Fingerprint()
	require.NotEmpty(t, fp1)

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))
	_, err := s.CheckReload()
	require.NoError(t, err)
	require.NotEqual(t, fp1, s.Fingerprint())
}
