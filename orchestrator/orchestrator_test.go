package orchestrator

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

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

func uniformFactory(string) (eval.Evaluator, error) { return uniformEvaluator{}, nil }

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		BoardSize:               7,
		NumWorkers:              2,
		SelfPlayBaseThinkTimeMs: 5,
		ExplorationMoves:        2,
		SaveIntervalMs:          50,
		SelfPlayDurationMs:      150,
		PastModelProbability:    0,
		PastModelsDir:           dir + "/past_models",
		MaxPastModels:           5,
		UseSwap2:                false,
		TTCapacity:              1000,
		PredictionCacheCapacity: 1000,
		ModelPath:               dir + "/prod.model",
	}
}

func TestBootstrapCreatesProdModel(t *testing.T) {
	cfg := testConfig(t)
	o, err := New(cfg, uniformFactory, t.TempDir(), log.New(os.Stderr, "", 0))
	require.NoError(t, err)
	require.NoError(t, o.Bootstrap())
	require.NotNil(t, o.Prod.Current())
}

func TestRunCollectsAndFlushesSamples(t *testing.T) {
	cfg := testConfig(t)
	replayDir := t.TempDir()
	o, err := New(cfg, uniformFactory, replayDir, log.New(os.Stderr, "", 0))
	require.NoError(t, err)
	require.NoError(t, o.Bootstrap())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stats, err := o.Run(ctx)
	require.NoError(t, err)
	require.Greater(t, stats.Games, 0)
	require.Greater(t, stats.Samples, 0)

	entries, err := os.ReadDir(replayDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}
