// Package eval defines the policy/value oracle contract: a batchable
// predictor, the board-to-tensor encoding it consumes, root symmetry
// averaging, and a bounded prediction cache in front of it.
package eval

import (
	"github.com/alphabeth/renju/board"
	"github.com/pkg/errors"
)

// Evaluator is anything that can score a batch of encoded positions.
// Implementations must be thread-safe or serialized by the caller; no
// semantics are imposed on network internals.
type Evaluator interface {
	// PredictBatch takes inputs of shape [B][N*N*3] and returns
	// policy[B][N*N] and value[B] with value in [-1,+1] from
	// side-to-move's perspective.
	PredictBatch(inputs [][]float32) (policy [][]float32, value []float32, err error)
}

// Config bounds the evaluator's caching and averaging behavior.
type Config struct {
	BoardSize               int
	PredictionCacheCapacity int64 // ristretto cost budget, default 5000 entries
}

func DefaultConfig(boardSize int) Config {
	return Config{BoardSize: boardSize, PredictionCacheCapacity: 5000}
}

func (c Config) IsValid() bool {
	return c.BoardSize > 0 && c.PredictionCacheCapacity > 0
}

// Encode builds the [N,N,3] input tensor for b from side's perspective,
// flattened row-major with channel fastest: plane 0 is side's stones,
// plane 1 is the opponent's, plane 2 is a constant side-to-move plane
// (1 for black, 0 for white).
func Encode(b *board.Board, side board.Stone) []float32 {
	n := b.N
	out := make([]float32, n*n*3)
	opponent := board.Opponent(side)
	var sidePlane float32
	if side == board.Black {
		sidePlane = 1
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			base := (r*n + c) * 3
			switch b.At(r, c) {
			case side:
				out[base] = 1
			case opponent:
				out[base+1] = 1
			}
			out[base+2] = sidePlane
		}
	}
	return out
}

// Validate checks an evaluator's response shape against the batch it
// was given, surfacing malformed backend output early rather than
// letting a short policy vector panic deep inside MCTS.
func Validate(inputs [][]float32, policy [][]float32, value []float32, boardCells int) error {
	if len(policy) != len(inputs) || len(value) != len(inputs) {
		return errors.Errorf("eval: expected %d policy/value entries, got %d/%d", len(inputs), len(policy), len(value))
	}
	for i, p := range policy {
		if len(p) != boardCells {
			return errors.Errorf("eval: policy[%d] has %d entries, want %d", i, len(p), boardCells)
		}
	}
	return nil
}
