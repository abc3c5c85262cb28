package mcts

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/alphabeth/renju/board"
)

// ttEntry is the transposition table payload for one canonical
// position: a running mean value and the expansion priors (after
// tactical boost, TT blending and any root noise; canonical orientation)
// last recorded for it, plus how many times it's been visited.
type ttEntry struct {
	mu     sync.Mutex
	value  float32
	visits int
	priors []float32 // nil until a node at this key has been expanded
}

// TranspositionTable is a bounded, capacity-evicting position cache
// keyed by canonical board hash + side-to-move.
type TranspositionTable struct {
	c *ristretto.Cache[string, *ttEntry]
}

func NewTranspositionTable(capacity int64) (*TranspositionTable, error) {
	if capacity <= 0 {
		capacity = 20000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *ttEntry]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
		// every entry costs 1, so MaxCost counts entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &TranspositionTable{c: c}, nil
}

// Lookup returns the entry for (b, side) and the symmetry that maps b
// onto the canonical orientation the entry's priors are stored in, or
// nil if absent.
func (tt *TranspositionTable) Lookup(b *board.Board, side board.Stone) (*ttEntry, board.Symmetry) {
	k, t := board.CanonicalKey(b, side)
	e, ok := tt.c.Get(k)
	if !ok {
		return nil, t
	}
	return e, t
}

// Record updates the running value mean for (b, side) and, when
// priors is non-nil, stores them (canonical orientation, converted by
// the caller via t) as the entry's expansion priors.
func (tt *TranspositionTable) Record(b *board.Board, side board.Stone, value float32, priors []float32) {
	k, _ := board.CanonicalKey(b, side)
	e, ok := tt.c.Get(k)
	if !ok {
		e = &ttEntry{}
	}
	e.mu.Lock()
	e.value = (e.value*float32(e.visits) + value) / float32(e.visits+1)
	e.visits++
	if priors != nil {
		e.priors = priors
	}
	e.mu.Unlock()
	tt.c.Set(k, e, 1)
}

func (tt *TranspositionTable) Close() { tt.c.Close() }
func (tt *TranspositionTable) Wait()  { tt.c.Wait() }
