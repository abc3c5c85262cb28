package eval

import (
	"time"

	"github.com/alphabeth/renju/board"
)

// CachedEvaluator is the single entry point MCTS uses to score a
// position: check the prediction cache, and on a miss fall through to
// a symmetry-averaged root evaluation, populating the
// cache with the result.
type CachedEvaluator struct {
	Eval  Evaluator
	Cache *PredictionCache
}

// NewCachedEvaluator wires an Evaluator to a fresh PredictionCache of
// the given capacity.
func NewCachedEvaluator(e Evaluator, cacheCapacity int64) (*CachedEvaluator, error) {
	c, err := NewPredictionCache(cacheCapacity)
	if err != nil {
		return nil, err
	}
	return &CachedEvaluator{Eval: e, Cache: c}, nil
}

// Evaluate returns the policy and value for (b, side), using
// SymmetryCount(timeBudget, fastMode) orientations on a cache miss.
func (ce *CachedEvaluator) Evaluate(b *board.Board, side board.Stone, timeBudget time.Duration, fastMode bool) (policy []float32, value float32, err error) {
	if policy, value, ok := ce.Cache.Get(b, side); ok {
		return policy, value, nil
	}
	n := SymmetryCount(timeBudget, fastMode)
	policy, value, err = RootEvaluate(ce.Eval, b, side, n)
	if err != nil {
		return nil, 0, err
	}
	ce.Cache.Put(b, side, policy, value)
	return policy, value, nil
}

// EvaluateBatch scores a batch of leaf positions in one evaluator
// call, checking the cache per-leaf first and only submitting misses
// to the evaluator (the batched-leaf-expansion path used by MCTS).
func (ce *CachedEvaluator) EvaluateBatch(boards []*board.Board, sides []board.Stone) (policies [][]float32, values []float32, err error) {
	policies = make([][]float32, len(boards))
	values = make([]float32, len(boards))

	var missIdx []int
	var missInputs [][]float32
	for i, b := range boards {
		if p, v, ok := ce.Cache.Get(b, sides[i]); ok {
			policies[i] = p
			values[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missInputs = append(missInputs, Encode(b, sides[i]))
	}
	if len(missInputs) == 0 {
		return policies, values, nil
	}

	p, v, err := ce.Eval.PredictBatch(missInputs)
	if err != nil {
		return nil, nil, err
	}
	if err := Validate(missInputs, p, v, boards[0].N*boards[0].N); err != nil {
		return nil, nil, err
	}
	for j, i := range missIdx {
		policies[i] = p[j]
		values[i] = v[j]
		ce.Cache.Put(boards[i], sides[i], p[j], v[j])
	}
	return policies, values, nil
}

// Close releases the underlying cache.
func (ce *CachedEvaluator) Close() { ce.Cache.Close() }
