package eval

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/alphabeth/renju/board"
)

// prediction is the cached raw policy + value for one canonical
// (board, side-to-move) key.
type prediction struct {
	policy []float32
	value  float32
}

// PredictionCache is a bounded LRU-ish cache
// keyed by canonical board hash + side-to-move, holding the raw
// (un-inverted) policy and value, evicting under capacity pressure.
// Backed by ristretto, which is already safe for concurrent self-play
// workers without an external mutex.
type PredictionCache struct {
	c *ristretto.Cache[string, prediction]
}

// NewPredictionCache builds a cache bounded to roughly capacity entries.
func NewPredictionCache(capacity int64) (*PredictionCache, error) {
	if capacity <= 0 {
		capacity = 5000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, prediction]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
		// every entry costs 1, so MaxCost counts entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &PredictionCache{c: c}, nil
}

// key is the canonical cache key for (b, side): canonical board hash
// plus side-to-move, and the symmetry that maps b onto that canonical
// orientation so a hit can be rotated back into b's own orientation.
func key(b *board.Board, side board.Stone) (string, board.Symmetry) {
	return board.CanonicalKey(b, side)
}

// Get looks up (b, side) and, on a hit, returns the policy rotated back
// into b's own orientation and the cached value.
func (pc *PredictionCache) Get(b *board.Board, side board.Stone) (policy []float32, value float32, ok bool) {
	k, t := key(b, side)
	p, found := pc.c.Get(k)
	if !found {
		return nil, 0, false
	}
	return t.Inverse().ApplyPolicy(b.N, p.policy), p.value, true
}

// Put stores policy/value for (b, side). policy must already be in b's
// own orientation; it is rotated into canonical orientation before
// storage so a later Get on a symmetric board also hits.
func (pc *PredictionCache) Put(b *board.Board, side board.Stone, policy []float32, value float32) {
	k, t := key(b, side)
	canon := prediction{policy: t.ApplyPolicy(b.N, policy), value: value}
	pc.c.Set(k, canon, 1)
}

// Wait blocks until all pending cache writes have been applied. Tests
// that write then immediately read should call this for determinism.
func (pc *PredictionCache) Wait() { pc.c.Wait() }

// Close releases cache resources.
func (pc *PredictionCache) Close() { pc.c.Close() }
