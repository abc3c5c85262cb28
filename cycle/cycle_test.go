package cycle

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alphabeth/renju/arena"
	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/eval"
)

type uniformEvaluator struct{}

func (uniformEvaluator) PredictBatch(inputs [][]float32) ([][]float32, []float32, error) {
	policies := make([][]float32, len(inputs))
	values := make([]float32, len(inputs))
	for i, in := range inputs {
		n := len(in) / 3
		p := make([]float32, n)
		u := float32(1) / float32(n)
		for j := range p {
			p[j] = u
		}
		policies[i] = p
	}
	return policies, values, nil
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		BoardSize:               7,
		NumWorkers:              1,
		SelfPlayBaseThinkTimeMs: 5,
		ExplorationMoves:        2,
		SaveIntervalMs:          1000,
		SelfPlayDurationMs:      50,
		PastModelsDir:           dir + "/past_models",
		MaxPastModels:           5,
		TTCapacity:              500,
		PredictionCacheCapacity: 500,
		ModelPath:               dir + "/prod.model",
		ArenaGames:              1,
		ArenaThreshold:          2.0, // unreachable: exercises the "not promoted" path deterministically
		ArenaThinkTimeMs:        5,
		StatusPath:              dir + "/status.json",
		ArenaResultPath:         dir + "/arena_result.json",
		TuningPath:              dir + "/tuning.yaml",
		PipelineCycles:          1,
		Forever:                 false,
	}
}

func TestRunOnceWritesStatusForEveryStage(t *testing.T) {
	cfg := testConfig(t)
	factory := func(string) (eval.Evaluator, error) { return uniformEvaluator{}, nil }

	require.NoError(t, os.WriteFile(cfg.ModelPath, []byte("prod"), 0o644))
	require.NoError(t, os.WriteFile(cfg.ModelPath+".candidate", []byte("cand"), 0o644))

	c := New(cfg, factory, t.TempDir(), log.New(os.Stderr, "", 0))
	hadErr := c.RunOnce(context.Background(), 1)
	require.False(t, hadErr)

	raw, err := os.ReadFile(cfg.StatusPath)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(raw, &st))
	for _, name := range []string{"self_play", "distillation", "arena", "upload", "book_import"} {
		require.Contains(t, st.Stages, name)
	}
	require.Equal(t, "ok", st.Stages["self_play"].Status)
	require.Equal(t, "ok", st.Stages["distillation"].Status)
	require.Equal(t, "ok", st.Stages["arena"].Status)
	require.Equal(t, "skipped", st.Stages["upload"].Status)

	// the status document carries the data, not just ok/error flags
	require.NotNil(t, st.SelfPlay)
	require.Greater(t, st.SelfPlay.Games, 0)
	require.Greater(t, st.SelfPlay.Samples, 0)
	require.NotNil(t, st.Arena)
	require.Equal(t, 1, st.Arena.Games)
	require.False(t, st.Arena.Promoted)
}

func TestRunOnceWritesArenaResultFile(t *testing.T) {
	cfg := testConfig(t)
	factory := func(string) (eval.Evaluator, error) { return uniformEvaluator{}, nil }

	require.NoError(t, os.WriteFile(cfg.ModelPath, []byte("prod"), 0o644))
	require.NoError(t, os.WriteFile(cfg.ModelPath+".candidate", []byte("cand"), 0o644))

	c := New(cfg, factory, t.TempDir(), log.New(os.Stderr, "", 0))
	require.False(t, c.RunOnce(context.Background(), 1))

	raw, err := os.ReadFile(cfg.ArenaResultPath)
	require.NoError(t, err)
	var res arena.Result
	require.NoError(t, json.Unmarshal(raw, &res))
	require.Greater(t, res.Ts, int64(0))
	require.Equal(t, 1, res.Games)
	require.Equal(t, res.CandidateWins+res.ProdWins+res.Draws, res.Games)
	require.Equal(t, cfg.ArenaThreshold, res.Threshold)
	require.False(t, res.Promoted)
}
