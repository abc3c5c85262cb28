package selfplay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/eval"
	"github.com/alphabeth/renju/mcts"
	"github.com/alphabeth/renju/model"
)

// uniformEvaluator returns a uniform policy and a fixed value, enough
// to drive a full game without a real network.
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

func testStore(t *testing.T, path string) *model.Store {
	t.Helper()
	s := model.NewStore(path, "", func(string) (eval.Evaluator, error) {
		return uniformEvaluator{}, nil
	})
	require.NoError(t, s.Bootstrap())
	return s
}

func testConfig(n int) *config.Config {
	return &config.Config{
		BoardSize:               n,
		SelfPlayBaseThinkTimeMs: 5,
		ThinkTimeJitter:         0,
		ExplorationMoves:        2,
		PredictionCacheCapacity: 1000,
	}
}

func TestPlayGameProducesSamplesWithFinalValue(t *testing.T) {
	n := 7
	cfg := testConfig(n)
	tt, err := mcts.NewTranspositionTable(1000)
	require.NoError(t, err)

	store := testStore(t, t.TempDir()+"/prod.model")
	w := New("w0", cfg, tt, 1)
	w.MCTSCfg = mcts.DefaultConfig(n)

	res, err := w.PlayGame(store, store, board.Black, false)
	require.NoError(t, err)
	require.NotEmpty(t, res.Samples)
	require.Equal(t, len(res.Samples), res.Moves)

	for _, s := range res.Samples {
		require.Equal(t, res.Moves, s.Meta.TotalMoves)
		require.Contains(t, []int{-1, 0, 1}, s.FinalValue)
	}
}

func TestThinkTimeSchedule(t *testing.T) {
	cfg := testConfig(15)
	cfg.SelfPlayBaseThinkTimeMs = 300 // large enough that the 200ms floor never binds
	w := New("w0", cfg, nil, 1)

	early := w.thinkTime(1)
	mid := w.thinkTime(10)
	late := w.thinkTime(40)

	require.Less(t, early, mid)
	require.Greater(t, mid, late)
}

func TestRankedMovesDeterministicOrder(t *testing.T) {
	visits := map[board.Move]int{{R: 2, C: 1}: 5, {R: 0, C: 0}: 5, {R: 1, C: 3}: 1}
	moves, weights, total := rankedMoves(visits)
	require.Equal(t, []board.Move{{R: 0, C: 0}, {R: 1, C: 3}, {R: 2, C: 1}}, moves)
	require.Equal(t, 11, total)
	require.Equal(t, []int{5, 1, 5}, weights)
}
