package model

import (
	"os"

	"github.com/pkg/errors"

	"github.com/alphabeth/renju/eval"
)

// uniformEvaluator is the placeholder network a fresh deployment
// bootstraps with: a uniform policy and a zero value over every
// position. Real network internals are outside this module's scope;
// this lets the rest of the pipeline run end-to-end against any
// eval.Evaluator, including a real one dropped in later via a
// different Factory.
type uniformEvaluator struct {
	boardSize int
}

func (e uniformEvaluator) PredictBatch(inputs [][]float32) ([][]float32, []float32, error) {
	n := e.boardSize * e.boardSize
	policies := make([][]float32, len(inputs))
	values := make([]float32, len(inputs))
	u := float32(1) / float32(n)
	for i := range inputs {
		p := make([]float32, n)
		for j := range p {
			p[j] = u
		}
		policies[i] = p
	}
	return policies, values, nil
}

// UniformFactory returns a Factory that writes a placeholder marker
// file at path (so Bootstrap's "already exists" check behaves
// correctly on the next run) and backs it with a uniform evaluator.
func UniformFactory(boardSize int) Factory {
	return func(path string) (eval.Evaluator, error) {
		if err := os.WriteFile(path, []byte("uniform-placeholder-model"), 0o644); err != nil {
			return nil, errors.Wrap(err, "model: write placeholder model file")
		}
		return uniformEvaluator{boardSize: boardSize}, nil
	}
}
