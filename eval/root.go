package eval

import (
	"time"

	"github.com/pkg/errors"

	"github.com/alphabeth/renju/board"
)

// fastModeCutoff and reducedCutoff mirror the solver's time-budget
// cutoffs: at or below fastModeCutoff (or in fast mode) evaluate only the
// identity orientation; at or below reducedCutoff evaluate four orientations;
// otherwise the full eight.
const (
	fastModeCutoff = 900 * time.Millisecond
	reducedCutoff  = 1200 * time.Millisecond
)

// SymmetryCount picks the adaptive root symmetry count for a given
// remaining time budget and fast-mode flag.
func SymmetryCount(timeBudget time.Duration, fastMode bool) int {
	if fastMode || timeBudget <= fastModeCutoff {
		return 1
	}
	if timeBudget <= reducedCutoff {
		return 4
	}
	return 8
}

// RootEvaluate runs b through e over symCount symmetries (1, 4, or 8),
// inverts each returned policy back into b's own orientation, and
// arithmetic-averages the policies and values. All
// orientations are submitted to the evaluator as a single batch.
func RootEvaluate(e Evaluator, b *board.Board, side board.Stone, symCount int) (policy []float32, value float32, err error) {
	switch symCount {
	case 1, 4, 8:
	default:
		return nil, 0, errors.Errorf("eval: invalid root symmetry count %d", symCount)
	}
	syms := board.All[:symCount]

	inputs := make([][]float32, symCount)
	for i, t := range syms {
		inputs[i] = Encode(t.Apply(b), side)
	}

	policies, values, err := e.PredictBatch(inputs)
	if err != nil {
		return nil, 0, errors.Wrap(err, "eval: root batch predict")
	}
	if err := Validate(inputs, policies, values, b.N*b.N); err != nil {
		return nil, 0, err
	}

	n := b.N
	sum := make([]float32, n*n)
	var valueSum float32
	for i, t := range syms {
		back := t.Inverse().ApplyPolicy(n, policies[i])
		for j, p := range back {
			sum[j] += p
		}
		valueSum += values[i]
	}
	inv := 1 / float32(symCount)
	for j := range sum {
		sum[j] *= inv
	}
	return sum, valueSum * inv, nil
}
