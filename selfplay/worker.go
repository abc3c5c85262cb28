// Package selfplay implements the single-game self-play driver: apply
// the opening rule, repeatedly search and move, and record one
// training sample per position with MCTS and teacher policy/value
// targets plus the eventual game outcome.
package selfplay

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/eval"
	"github.com/alphabeth/renju/mcts"
	"github.com/alphabeth/renju/model"
	"github.com/alphabeth/renju/sample"
	"github.com/alphabeth/renju/swap2"
)

// Worker plays complete games end to end, each with its own seedable
// PRNG so exploration sampling and Dirichlet noise stay reproducible
// across runs for a fixed seed and evaluator.
type Worker struct {
	ID  string
	Cfg *config.Config

	MCTSCfg  mcts.Config
	Swap2Cfg swap2.Config

	TT  *mcts.TranspositionTable
	RNG *rand.Rand

	own modelSlot
	opp modelSlot
}

// New builds a Worker with its own RNG seeded from seed.
func New(id string, cfg *config.Config, tt *mcts.TranspositionTable, seed int64) *Worker {
	return &Worker{
		ID:       id,
		Cfg:      cfg,
		MCTSCfg:  cfg.MCTSConfig(),
		Swap2Cfg: swap2.DefaultConfig(),
		TT:       tt,
		RNG:      rand.New(rand.NewSource(seed)),
	}
}

// modelSlot memoizes a CachedEvaluator per Store, rebuilding it (with
// a fresh prediction cache) only when the bound Store or its loaded
// model actually changes. Slots live for the worker's lifetime, so
// back-to-back games against the same opponent reuse the cache.
type modelSlot struct {
	store       *model.Store
	fingerprint string
	cached      *eval.CachedEvaluator
}

func (w *Worker) evaluatorFor(slot *modelSlot, store *model.Store) (*eval.CachedEvaluator, error) {
	fp := store.Fingerprint()
	if slot.cached != nil && slot.store == store && slot.fingerprint == fp {
		return slot.cached, nil
	}
	ce, err := eval.NewCachedEvaluator(store.Current(), w.Cfg.PredictionCacheCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "selfplay: wrap model in cached evaluator")
	}
	if slot.cached != nil {
		slot.cached.Close()
	}
	slot.store = store
	slot.cached = ce
	slot.fingerprint = fp
	return ce, nil
}

// Close releases both slots' prediction caches.
func (w *Worker) Close() {
	if w.own.cached != nil {
		w.own.cached.Close()
		w.own.cached = nil
	}
	if w.opp.cached != nil {
		w.opp.cached.Close()
		w.opp.cached = nil
	}
}

// GameResult is the outcome of one PlayGame call: the full sample
// batch (final_value already filled in) plus bookkeeping for the
// orchestrator's logs.
type GameResult struct {
	GameID  string
	Samples []sample.Sample
	Moves   int
	Result  int // from Black's perspective: +1 Black won, -1 White won, 0 draw
}

// thinkTime computes the phase-dependent think-time budget for
// moveIndex (1-based): 80% of base at <=6 moves, 120% at 7-30, 100%
// after, clamped to >=200ms and optionally jittered.
func (w *Worker) thinkTime(moveIndex int) time.Duration {
	base := float64(w.Cfg.SelfPlayBaseThinkTimeMs)
	var pct float64
	switch {
	case moveIndex <= 6:
		pct = 0.8
	case moveIndex <= 30:
		pct = 1.2
	default:
		pct = 1.0
	}
	ms := base * pct
	if w.Cfg.ThinkTimeJitter > 0 {
		jitter := 1 + (w.RNG.Float64()*2-1)*w.Cfg.ThinkTimeJitter
		ms *= jitter
	}
	if ms < 200 {
		ms = 200
	}
	return time.Duration(ms) * time.Millisecond
}

// pick chooses the move to actually play from a search result: for
// the first ExplorationMoves moves of the game, sample from the
// visit-count distribution; afterward, play the most-visited move
// deterministically (ties broken by row-major scan order for
// reproducibility).
func (w *Worker) pick(res mcts.Result, moveIndex int) board.Move {
	if moveIndex <= w.Cfg.ExplorationMoves {
		return sampleFromVisits(w.RNG, res.VisitPolicy)
	}
	return argmaxVisits(res.VisitPolicy)
}

func sampleFromVisits(rng *rand.Rand, visits map[board.Move]int) board.Move {
	moves, weights, total := rankedMoves(visits)
	if total <= 0 {
		return moves[0]
	}
	x := rng.Intn(total)
	for i, wgt := range weights {
		if x < wgt {
			return moves[i]
		}
		x -= wgt
	}
	return moves[len(moves)-1]
}

func argmaxVisits(visits map[board.Move]int) board.Move {
	moves, weights, _ := rankedMoves(visits)
	best := moves[0]
	bestW := weights[0]
	for i := 1; i < len(moves); i++ {
		if weights[i] > bestW {
			bestW = weights[i]
			best = moves[i]
		}
	}
	return best
}

// rankedMoves returns visits' keys and values in a stable, row-major
// order so weighted sampling and argmax ties are reproducible despite
// Go's randomized map iteration.
func rankedMoves(visits map[board.Move]int) (moves []board.Move, weights []int, total int) {
	moves = make([]board.Move, 0, len(visits))
	for m := range visits {
		moves = append(moves, m)
	}
	sortMoves(moves)
	weights = make([]int, len(moves))
	for i, m := range moves {
		weights[i] = visits[m]
		total += weights[i]
	}
	return moves, weights, total
}

func sortMoves(moves []board.Move) {
	for i := 1; i < len(moves); i++ {
		for j := i; j > 0 && less(moves[j], moves[j-1]); j-- {
			moves[j], moves[j-1] = moves[j-1], moves[j]
		}
	}
}

func less(a, b board.Move) bool {
	if a.R != b.R {
		return a.R < b.R
	}
	return a.C < b.C
}

// PlayGame runs one complete game: optionally negotiates the Swap2
// opening, then repeatedly evaluates the teacher targets, searches,
// picks a move, and records a sample, until the game ends. ownColor is
// the color ownStore's model plays; oppStore supplies the other color
// (they may be the same Store for a pure self-play game).
func (w *Worker) PlayGame(ownStore, oppStore *model.Store, ownColor board.Stone, useSwap2 bool) (GameResult, error) {
	n := w.Cfg.BoardSize
	b := board.New(n)
	toMove := board.Black

	blackStore, whiteStore := ownStore, oppStore
	if ownColor == board.White {
		blackStore, whiteStore = oppStore, ownStore
	}
	storeFor := func(side board.Stone) *model.Store {
		if side == board.Black {
			return blackStore
		}
		return whiteStore
	}

	evaluatorForStore := func(store *model.Store) (*eval.CachedEvaluator, error) {
		if store == ownStore {
			return w.evaluatorFor(&w.own, store)
		}
		return w.evaluatorFor(&w.opp, store)
	}

	gameID := uuid.NewString()
	moveIndex := 0

	if useSwap2 {
		proposed, _, err := swap2.Propose(n)
		if err != nil {
			return GameResult{}, errors.Wrap(err, "selfplay: swap2 propose")
		}
		ce, err := evaluatorForStore(whiteStore)
		if err != nil {
			return GameResult{}, err
		}
		choice, err := swap2.Second(proposed, ce, w.TT, w.Swap2Cfg, w.RNG)
		if err != nil {
			return GameResult{}, errors.Wrap(err, "selfplay: swap2 negotiate")
		}
		b = choice.Board
		toMove = choice.ToMove
		if choice.SwapColors {
			blackStore, whiteStore = whiteStore, blackStore
		}
		moveIndex = b.Stones
	}

	var samples []sample.Sample
	winner := board.Empty

	for {
		if !b.HasEmpty() {
			break
		}
		moveIndex++
		ce, err := evaluatorForStore(storeFor(toMove))
		if err != nil {
			return GameResult{}, err
		}

		think := w.thinkTime(moveIndex)
		teacherPolicy, teacherValue, err := ce.Evaluate(b, toMove, think, false)
		if err != nil {
			return GameResult{}, errors.Wrap(err, "selfplay: teacher evaluate")
		}

		res, err := mcts.FindBestMove(b, toMove, w.MCTSCfg, ce, w.TT, think, false, w.RNG)
		if err != nil {
			return GameResult{}, errors.Wrap(err, "selfplay: find best move")
		}
		if !res.Move.Valid() {
			break
		}
		move := w.pick(res, moveIndex)

		meta := sample.Meta{
			Source:     "self_play",
			GameID:     gameID,
			MoveIndex:  moveIndex,
			TotalMoves: 0, // filled in once the game length is known
		}
		s := sample.New(b, toMove, sample.VisitPolicyVector(n, res.VisitPolicy), teacherPolicy, teacherValue, meta)
		samples = append(samples, s)

		b.Place(move, toMove)
		if board.CheckWin(b, toMove, move) {
			winner = toMove
			break
		}
		toMove = board.Opponent(toMove)
	}

	result := 0
	switch winner {
	case board.Black:
		result = 1
	case board.White:
		result = -1
	}
	for i := range samples {
		samples[i].Meta.TotalMoves = len(samples)
		samples[i].Meta.Result = result
		samples[i].FinalValue = outcomeFor(samples[i].Player, winner)
	}

	return GameResult{GameID: gameID, Samples: samples, Moves: len(samples), Result: result}, nil
}

// outcomeFor returns the sample's final_value: +1 if player won, -1 if
// it lost, 0 for a draw.
func outcomeFor(player string, winner board.Stone) int {
	if winner == board.Empty {
		return 0
	}
	won := (player == "black" && winner == board.Black) || (player == "white" && winner == board.White)
	if won {
		return 1
	}
	return -1
}
