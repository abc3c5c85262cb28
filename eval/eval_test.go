package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alphabeth/renju/board"
)

// constEvaluator returns a fixed policy shape (all mass on cell 0) and
// a fixed value, regardless of input, so tests can check plumbing
// (averaging, inversion, caching) without a real network.
type constEvaluator struct {
	calls int
	n     int
	value float32
}

func (e *constEvaluator) PredictBatch(inputs [][]float32) ([][]float32, []float32, error) {
	e.calls++
	policies := make([][]float32, len(inputs))
	values := make([]float32, len(inputs))
	for i := range inputs {
		p := make([]float32, e.n*e.n)
		p[0] = 1
		policies[i] = p
		values[i] = e.value
	}
	return policies, values, nil
}

func TestEncodeChannels(t *testing.T) {
	b := board.New(5)
	b.Place(board.Move{R: 0, C: 0}, board.Black)
	b.Place(board.Move{R: 1, C: 1}, board.White)

	in := Encode(b, board.Black)
	require.Equal(t, float32(1), in[0*3+0])       // side stone at (0,0)
	require.Equal(t, float32(1), in[(1*5+1)*3+1]) // opponent stone at (1,1)
	for i := 0; i < 25; i++ {
		require.Equal(t, float32(1), in[i*3+2]) // black-to-move plane is all-1
	}
}

func TestSymmetryCountThresholds(t *testing.T) {
	require.Equal(t, 1, SymmetryCount(500*time.Millisecond, false))
	require.Equal(t, 1, SymmetryCount(5*time.Second, true))
	require.Equal(t, 4, SymmetryCount(1000*time.Millisecond, false))
	require.Equal(t, 8, SymmetryCount(5*time.Second, false))
}

func TestRootEvaluateAveragesAndInverts(t *testing.T) {
	b := board.New(5)
	ev := &constEvaluator{n: 5, value: 0.5}

	policy, value, err := RootEvaluate(ev, b, board.Black, 8)
	require.NoError(t, err)
	require.Equal(t, float32(0.5), value)
	require.Equal(t, 1, ev.calls) // a single batched call for all 8 orientations

	// Inversion is a permutation of the policy vector, so each
	// orientation's contribution still sums to 1; the average across
	// all 8 must too.
	var sum float32
	for _, p := range policy {
		sum += p
	}
	require.InDelta(t, float32(1), sum, 1e-5)
}

func TestRootEvaluateRejectsBadSymCount(t *testing.T) {
	b := board.New(5)
	ev := &constEvaluator{n: 5}
	_, _, err := RootEvaluate(ev, b, board.Black, 3)
	require.Error(t, err)
}

func TestPredictionCacheRoundTrip(t *testing.T) {
	cache, err := NewPredictionCache(100)
	require.NoError(t, err)
	defer cache.Close()

	b := board.New(5)
	b.Place(board.Move{R: 0, C: 0}, board.Black)
	policy := make([]float32, 25)
	policy[7] = 1

	cache.Put(b, board.Black, policy, 0.25)
	cache.Wait()

	got, value, ok := cache.Get(b, board.Black)
	require.True(t, ok)
	require.Equal(t, float32(0.25), value)
	require.Equal(t, policy, got)
}

func TestPredictionCacheHitsAcrossSymmetricBoards(t *testing.T) {
	cache, err := NewPredictionCache(100)
	require.NoError(t, err)
	defer cache.Close()

	b := board.New(5)
	b.Place(board.Move{R: 0, C: 0}, board.Black)
	policy := make([]float32, 25)
	policy[0] = 1
	cache.Put(b, board.Black, policy, 0.1)
	cache.Wait()

	rotated := board.Rot90.Apply(b)
	_, _, ok := cache.Get(rotated, board.Black)
	require.True(t, ok, "rotated board should hit the same canonical cache entry")
}

func TestCachedEvaluatorEvaluateBatchUsesCacheAndBatchesMisses(t *testing.T) {
	ev := &constEvaluator{n: 5, value: 0.75}
	ce, err := NewCachedEvaluator(ev, 100)
	require.NoError(t, err)
	defer ce.Close()

	b1 := board.New(5)
	b2 := board.New(5)
	b2.Place(board.Move{R: 2, C: 2}, board.Black)

	policies, values, err := ce.EvaluateBatch([]*board.Board{b1, b2}, []board.Stone{board.Black, board.Black})
	require.NoError(t, err)
	require.Len(t, policies, 2)
	require.Equal(t, float32(0.75), values[0])
	require.Equal(t, float32(0.75), values[1])
	require.Equal(t, 1, ev.calls)
	ce.Cache.Wait()

	// second call should hit the cache entirely; no further evaluator calls
	_, _, err = ce.EvaluateBatch([]*board.Board{b1, b2}, []board.Stone{board.Black, board.Black})
	require.NoError(t, err)
	require.Equal(t, 1, ev.calls)
}
