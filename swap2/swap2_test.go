package swap2

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/eval"
	"github.com/alphabeth/renju/mcts"
)

// uniformEvaluator returns a uniform policy and a fixed value, enough
// to exercise the negotiation plumbing without a real network.
type uniformEvaluator struct{ value float32 }

func (e *uniformEvaluator) PredictBatch(inputs [][]float32) ([][]float32, []float32, error) {
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
		values[i] = e.value
	}
	return policies, values, nil
}

func TestProposePlacesTriple(t *testing.T) {
	b, toMove, err := Propose(15)
	require.NoError(t, err)
	require.Equal(t, board.White, toMove)
	require.Equal(t, 3, b.Stones)
	center := b.Center()
	require.Equal(t, board.Black, b.At(center.R, center.C))
}

func TestSecondPicksAnOption(t *testing.T) {
	b, _, err := Propose(9)
	require.NoError(t, err)

	ce, err := eval.NewCachedEvaluator(&uniformEvaluator{value: 0.1}, 100)
	require.NoError(t, err)
	tt, err := mcts.NewTranspositionTable(100)
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(1))
	choice, err := Second(b, ce, tt, Config{Plies: 1, BudgetPerPlyMs: 50}, rnd)
	require.NoError(t, err)
	require.Contains(t, []Option{OptionTakeBlack, OptionAddWhite, OptionAddWhiteBlack}, choice.Option)
	require.NotNil(t, choice.Board)
}
