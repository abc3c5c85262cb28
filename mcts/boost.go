package mcts

import (
	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/threat"
)

// boostFactors is one tier (root or child) of the multiplicative
// tactical boosts applied to masked priors before renormalization.
type boostFactors struct {
	immediateWin     float32
	immediateOppWin  float32
	openFour         float32
	blockOpenFour    float32
	four             float32
	blockFour        float32
	openThree        float32
	blockOpenThree   float32
	connectedThree   float32
	blockConnThree   float32
	longLink         float32
	forbiddenPenalty float32
}

var rootBoost = boostFactors{
	immediateWin:     1, // root never needs the large child-tier win boost; the solver already short-circuits a real win
	immediateOppWin:  1,
	openFour:         1.5,
	blockOpenFour:    1.3,
	four:             1.15,
	blockFour:        1.10,
	openThree:        1.08,
	blockOpenThree:   1.05,
	connectedThree:   1.05,
	blockConnThree:   1.03,
	longLink:         1.03,
	forbiddenPenalty: 0,
}

var childBoost = boostFactors{
	immediateWin:     5,
	immediateOppWin:  2,
	openFour:         1.3,
	blockOpenFour:    1.2,
	four:             1.1,
	blockFour:        1.08,
	openThree:        1.05,
	blockOpenThree:   1.03,
	connectedThree:   1.02,
	blockConnThree:   1.01,
	longLink:         1.01,
	forbiddenPenalty: 0,
}

func (c Config) tierBoost(isRoot bool) boostFactors {
	if !isRoot {
		return childBoost
	}
	f := rootBoost
	if c.RootOpenFourBoost > 0 {
		f.openFour = c.RootOpenFourBoost
	}
	return f
}

// applyTacticalBoostSlice is the []moveProb-preserving wrapper around
// applyTacticalBoost, used by expansion so candidate order stays
// deterministic (board-scan order) going into progressive widening.
func applyTacticalBoostSlice(cfg Config, b *board.Board, mover board.Stone, probs []moveProb, isRoot bool) {
	m := make(map[board.Move]float32, len(probs))
	for _, p := range probs {
		m[p.move] = p.prob
	}
	applyTacticalBoost(cfg, b, mover, m, isRoot)
	for i := range probs {
		probs[i].prob = m[probs[i].move]
	}
}

// applyTacticalBoost multiplies each legal move's prior by the tactical
// factors applicable to it at b, for the side about to move (mover),
// then renormalizes the result to sum to 1.
func applyTacticalBoost(cfg Config, b *board.Board, mover board.Stone, priors map[board.Move]float32, isRoot bool) {
	f := cfg.tierBoost(isRoot)
	own := threat.Detect(b, mover)
	opp := threat.Detect(b, board.Opponent(mover))

	boostSet(priors, own.ImmediateWins, f.immediateWin)
	boostSet(priors, opp.ImmediateWins, f.immediateOppWin)
	boostSet(priors, own.OpenFours, f.openFour)
	boostSet(priors, opp.OpenFours, f.blockOpenFour)
	boostSet(priors, own.Fours, f.four)
	boostSet(priors, opp.Fours, f.blockFour)
	boostSet(priors, own.OpenThreeMakers, f.openThree)
	boostSet(priors, opp.OpenThreeMakers, f.blockOpenThree)
	boostSet(priors, own.ConnectedThreeMakers, f.connectedThree)
	boostSet(priors, opp.ConnectedThreeMakers, f.blockConnThree)
	boostSet(priors, own.LongLinkMakers, f.longLink)

	if mover == board.Black {
		for m := range priors {
			if board.WouldBeForbidden(b, m) {
				priors[m] *= f.forbiddenPenalty
			}
		}
	}

	renormalize(priors)
}

func boostSet(priors map[board.Move]float32, moves []board.Move, factor float32) {
	if factor == 1 {
		return
	}
	for _, m := range moves {
		if p, ok := priors[m]; ok {
			priors[m] = p * factor
		}
	}
}

func renormalize(priors map[board.Move]float32) {
	var sum float32
	for _, p := range priors {
		sum += p
	}
	if sum <= 0 {
		if len(priors) == 0 {
			return
		}
		u := 1 / float32(len(priors))
		for m := range priors {
			priors[m] = u
		}
		return
	}
	for m, p := range priors {
		priors[m] = p / sum
	}
}
