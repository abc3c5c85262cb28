// Package solver implements the bounded-depth VCF/VCT tactical solver
// and the defensive solver used as MCTS short-circuits.
package solver

import (
	"time"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/threat"
)

const (
	vcfMaxDepth        = 3
	vctMaxDepth        = 4
	vctFastMaxDepth    = 2
	defaultNodeBudget  = 20000
	softDeadlineCap    = 1500 * time.Millisecond
	fastModeCutoff     = 900 * time.Millisecond
	defaultBudgetShare = 0.30
)

// budget tracks the shared time deadline and node cap across one whole
// solver invocation: the VCF pass, the VCT pass, and (for the
// defensive solver) every refutation attempt.
type budget struct {
	deadline time.Time
	nodeCap  int
	nodes    int
}

func newBudget(total time.Duration) *budget {
	soft := time.Duration(float64(total) * defaultBudgetShare)
	if soft > softDeadlineCap {
		soft = softDeadlineCap
	}
	return &budget{deadline: time.Now().Add(soft), nodeCap: defaultNodeBudget}
}

func (b *budget) exceeded() bool {
	if b.nodeCap > 0 && b.nodes >= b.nodeCap {
		return true
	}
	return time.Now().After(b.deadline)
}

// candidateFunc produces the branching set for one ply of the search.
type candidateFunc func(b *board.Board, player board.Stone) []board.Move

func vcfCandidates(b *board.Board, player board.Stone) []board.Move {
	rep := threat.Detect(b, player)
	return dedupe(rep.ImmediateWins, rep.OpenFours, rep.OpenThreeMakers)
}

func vctCandidates(b *board.Board, player board.Stone) []board.Move {
	rep := threat.Detect(b, player)
	return dedupe(rep.Fours, rep.OpenThreeMakers)
}

func dedupe(lists ...[]board.Move) []board.Move {
	seen := map[board.Move]bool{}
	var out []board.Move
	for _, l := range lists {
		for _, m := range l {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// FindForcedWin runs VCF (depth 3) then VCT (depth 4, or 2 in fast
// mode / when the remaining time budget is small) and returns the
// first move that starts a forced win for player.
func FindForcedWin(b *board.Board, player board.Stone, totalBudget time.Duration, fastMode bool) (board.Move, bool) {
	bud := newBudget(totalBudget)
	return findForcedWinWithBudget(b, player, totalBudget, fastMode, bud)
}

func findForcedWinWithBudget(b *board.Board, player board.Stone, totalBudget time.Duration, fastMode bool, bud *budget) (board.Move, bool) {
	if m, ok := search(b, player, vcfMaxDepth, vcfCandidates, bud); ok {
		return m, true
	}
	depth := vctMaxDepth
	if fastMode || totalBudget <= fastModeCutoff {
		depth = vctFastMaxDepth
	}
	return search(b, player, depth, vctCandidates, bud)
}

// search is the shared recursive forced-win routine for both VCF and
// VCT: try each candidate move; it is a forced win at this depth if it
// wins outright, produces a double threat, or produces a single
// threat the opponent is compelled to block and a forced win recurses
// one ply down.
func search(b *board.Board, player board.Stone, depth int, candidates candidateFunc, bud *budget) (board.Move, bool) {
	if depth <= 0 || bud.exceeded() {
		return board.NoMove, false
	}
	opponent := board.Opponent(player)
	for _, m := range candidates(b, player) {
		if bud.exceeded() {
			break
		}
		if player == board.Black && board.WouldBeForbidden(b, m) {
			continue
		}
		bud.nodes++

		tmp := b.Clone()
		tmp.Place(m, player)
		if board.CheckWin(tmp, player, m) {
			return m, true
		}

		wins := threat.Detect(tmp, player).ImmediateWins
		switch {
		case len(wins) >= 2:
			return m, true
		case len(wins) == 1:
			afterBlock := tmp.Clone()
			afterBlock.Place(wins[0], opponent)
			if _, ok := search(afterBlock, player, depth-1, candidates, bud); ok {
				return m, true
			}
		}
	}
	return board.NoMove, false
}

// FindBlock runs the defensive solver: if attacker (the
// side about to move after defender) has a forced win, it enumerates
// candidate blocking moves (attacker's own threat squares plus a
// central-proximity fallback) and returns the first one that, played
// by defender, refutes attacker's forced-win search. ok is false both
// when attacker has no forced win to defend against and when no block
// was found.
func FindBlock(b *board.Board, defender board.Stone, totalBudget time.Duration, fastMode bool) (move board.Move, attackerThreatened bool, ok bool) {
	attacker := board.Opponent(defender)
	bud := newBudget(totalBudget)

	if _, found := findForcedWinWithBudget(b, attacker, totalBudget, fastMode, bud); !found {
		return board.NoMove, false, false
	}

	rep := threat.Detect(b, attacker)
	candidates := dedupe(rep.ImmediateWins, rep.Fours, rep.OpenThreeMakers)
	candidates = append(candidates, b.Center())

	for _, blk := range candidates {
		if bud.exceeded() {
			break
		}
		if defender == board.Black && board.WouldBeForbidden(b, blk) {
			continue
		}
		if b.At(blk.R, blk.C) != board.Empty {
			continue
		}
		tmp := b.Clone()
		tmp.Place(blk, defender)
		if board.CheckWin(tmp, defender, blk) {
			return blk, true, true
		}
		if _, stillWins := findForcedWinWithBudget(tmp, attacker, totalBudget, fastMode, bud); !stillWins {
			return blk, true, true
		}
	}
	return board.NoMove, true, false
}
