// Package swap2 implements the Swap2 opening-rule negotiator: the
// first player (the "opener") proposes a Black-White-Black triple near
// the center, and the second player chooses among three continuations:
// the first two are scored by a shallow NN-guided rollout, the third by
// evaluating the resulting position with each side to move.
package swap2

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/eval"
	"github.com/alphabeth/renju/mcts"
)

// Config bounds the shallow rollout used to score each of the three
// options.
type Config struct {
	Plies          int
	BudgetPerPlyMs int
}

func DefaultConfig() Config {
	return Config{Plies: 3, BudgetPerPlyMs: 500}
}

func (c Config) perPly() time.Duration {
	return time.Duration(c.BudgetPerPlyMs) * time.Millisecond
}

// Option names the three Swap2 continuations available to the second
// player.
type Option int

const (
	OptionTakeBlack     Option = 1 // swap colors: second player becomes Black
	OptionAddWhite      Option = 2 // place one more White stone, first player moves next
	OptionAddWhiteBlack Option = 3 // place an extra W then B; first player then picks a color
)

// Choice is the negotiated outcome: the resulting board, who moves
// next, whether color roles must be swapped, which option won, and
// the second player's estimated value for it.
type Choice struct {
	Board       *board.Board
	ToMove      board.Stone
	SwapColors  bool
	Option      Option
	SecondValue float32
}

// Propose places the opening Black-White-Black triple near the center
// of an empty board and reports that White (the second player) is next
// to act.
func Propose(n int) (*board.Board, board.Stone, error) {
	b := board.New(n)
	center := b.Center()
	if !b.InBounds(center.R, center.C-1) || !b.InBounds(center.R, center.C+1) {
		return nil, board.Empty, errors.New("swap2: board too small for the opening triple")
	}
	b.Place(center, board.Black)
	b.Place(board.Move{R: center.R, C: center.C + 1}, board.White)
	b.Place(board.Move{R: center.R, C: center.C - 1}, board.Black)
	return b, board.White, nil
}

// rollout plays plies half-moves forward from (b, side) using a
// short, fast-mode MCTS search per ply, then returns the evaluator's
// value estimate of the final position from side's original
// perspective (sign-flipped once per ply, matching MCTS
// backpropagation convention).
func rollout(ev *eval.CachedEvaluator, tt *mcts.TranspositionTable, cfg mcts.Config, b *board.Board, side board.Stone, plies int, perPly time.Duration, rnd *rand.Rand) (float32, error) {
	cur := b.Clone()
	mover := side
	sign := float32(1)
	for p := 0; p < plies; p++ {
		if !cur.HasEmpty() {
			break
		}
		res, err := mcts.FindBestMove(cur, mover, cfg, ev, tt, perPly, true, rnd)
		if err != nil {
			return 0, errors.Wrap(err, "swap2: rollout search")
		}
		if !res.Move.Valid() {
			break
		}
		cur.Place(res.Move, mover)
		won := board.CheckWin(cur, mover, res.Move)
		mover = board.Opponent(mover)
		sign = -sign
		if won {
			return -sign, nil // the mover who just won; flip once more to land on side's perspective
		}
	}
	_, value, err := ev.Evaluate(cur, mover, perPly, true)
	if err != nil {
		return 0, errors.Wrap(err, "swap2: rollout leaf evaluate")
	}
	return sign * value, nil
}

// Second runs the negotiation for the second player: scores options 1
// and 2 via rollout and option 3 by direct evaluation, and returns the
// one maximizing the second player's expected value. rnd is the caller's seedable
// PRNG, threaded into every search this negotiation runs so the
// choice is reproducible for a fixed seed.
func Second(b *board.Board, ev *eval.CachedEvaluator, tt *mcts.TranspositionTable, cfg Config, rnd *rand.Rand) (Choice, error) {
	mctsCfg := mcts.DefaultConfig(b.N)
	perPly := cfg.perPly()

	// Option 1: take Black (swap colors). White (the opener) moves
	// next; the second player's value is the negation of White's.
	vWhite, err := rollout(ev, tt, mctsCfg, b, board.White, cfg.Plies, perPly, rnd)
	if err != nil {
		return Choice{}, err
	}
	opt1 := Choice{Board: b.Clone(), ToMove: board.White, SwapColors: true, Option: OptionTakeBlack, SecondValue: -vWhite}

	// Option 2: the second player (still White) adds one more White
	// stone, chosen by a quick search, then Black moves next.
	whiteMove, err := mcts.FindBestMove(b, board.White, mctsCfg, ev, tt, perPly, true, rnd)
	if err != nil {
		return Choice{}, errors.Wrap(err, "swap2: option 2 candidate search")
	}
	afterWhite := b.Clone()
	var opt2 Choice
	if whiteMove.Move.Valid() {
		afterWhite.Place(whiteMove.Move, board.White)
		vBlack, err := rollout(ev, tt, mctsCfg, afterWhite, board.Black, cfg.Plies, perPly, rnd)
		if err != nil {
			return Choice{}, err
		}
		opt2 = Choice{Board: afterWhite, ToMove: board.Black, SwapColors: false, Option: OptionAddWhite, SecondValue: -vBlack}
	}

	// Option 3: add one more White then one more Black (each the best
	// quick-search candidate), then the first player picks whichever
	// color/side-to-move is most favorable to them; the second
	// player's value is the negation of that max.
	afterBoth := afterWhite.Clone()
	var opt3 Choice
	if whiteMove.Move.Valid() {
		blackMove, err := mcts.FindBestMove(afterBoth, board.Black, mctsCfg, ev, tt, perPly, true, rnd)
		if err != nil {
			return Choice{}, errors.Wrap(err, "swap2: option 3 candidate search")
		}
		if blackMove.Move.Valid() {
			afterBoth.Place(blackMove.Move, board.Black)
			_, vWhiteToMove, err := ev.Evaluate(afterBoth, board.White, perPly, true)
			if err != nil {
				return Choice{}, err
			}
			_, vBlackToMove, err := ev.Evaluate(afterBoth, board.Black, perPly, true)
			if err != nil {
				return Choice{}, err
			}
			best := vWhiteToMove
			toMove := board.White
			if vBlackToMove > best {
				best = vBlackToMove
				toMove = board.Black
			}
			opt3 = Choice{Board: afterBoth, ToMove: toMove, SwapColors: false, Option: OptionAddWhiteBlack, SecondValue: -best}
		}
	}

	best := opt1
	for _, c := range []Choice{opt2, opt3} {
		if c.Board != nil && c.SecondValue > best.SecondValue {
			best = c
		}
	}
	return best, nil
}
