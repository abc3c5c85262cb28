// Package arena implements the arena gate: a symmetric head-to-head
// match between a candidate model and the reigning production model,
// an early-stop rule over the running tally, and promotion of the
// candidate on success.
package arena

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/eval"
	"github.com/alphabeth/renju/mcts"
	"github.com/alphabeth/renju/model"
	"github.com/alphabeth/renju/swap2"
)

// Config bounds one arena run.
type Config struct {
	Games            int
	ThinkTime        time.Duration
	Threshold        float64
	PromotionEnabled bool
	UseSwap2         bool
	PastModelsDir    string
}

// Result is the arena_result record emitted at the end of a run.
type Result struct {
	Ts                   int64   `json:"ts"`
	Games                int     `json:"games"`
	CandidateWins        int     `json:"candidate_wins"`
	ProdWins             int     `json:"prod_wins"`
	Draws                int     `json:"draws"`
	Winrate              float64 `json:"winrate"`
	CandidateFingerprint string  `json:"candidate_fingerprint"`
	ProdFingerprint      string  `json:"prod_fingerprint"`
	Threshold            float64 `json:"threshold"`
	Promoted             bool    `json:"promoted"`
}

// Run plays up to cfg.Games games between candidate and prod,
// alternating colors, applying the early-stop rule, and promoting the
// candidate in place of prod on success if cfg.PromotionEnabled. rnd
// is the arena's own seedable PRNG, threaded into every search so a
// fixed seed reproduces the same match.
func Run(candidate, prod *model.Store, boardSize int, mctsCfg mcts.Config, tt *mcts.TranspositionTable, cfg Config, rnd *rand.Rand) (Result, error) {
	candCE, err := eval.NewCachedEvaluator(candidate.Current(), 2000)
	if err != nil {
		return Result{}, errors.Wrap(err, "arena: wrap candidate evaluator")
	}
	prodCE, err := eval.NewCachedEvaluator(prod.Current(), 2000)
	if err != nil {
		return Result{}, errors.Wrap(err, "arena: wrap prod evaluator")
	}

	var candWins, prodWins, draws, played int
	for g := 0; g < cfg.Games; g++ {
		candColor := board.Black
		if g%2 == 1 {
			candColor = board.White
		}
		outcome, err := playGame(boardSize, candCE, prodCE, candColor, mctsCfg, tt, cfg, rnd)
		if err != nil {
			return Result{}, errors.Wrap(err, "arena: play game")
		}
		played++
		switch outcome {
		case gameDrawn:
			draws++
		case candidateWon:
			candWins++
		case prodWon:
			prodWins++
		}

		gamesRemaining := cfg.Games - played
		bestCase := float64(candWins+gamesRemaining) / float64(cfg.Games)
		guaranteed := float64(candWins) / float64(cfg.Games)
		if bestCase < cfg.Threshold {
			break
		}
		if guaranteed >= cfg.Threshold {
			break
		}
	}

	winrate := 0.0
	if played > 0 {
		winrate = float64(candWins) / float64(played)
	}
	res := Result{
		Ts:                   time.Now().UnixMilli(),
		Games:                played,
		CandidateWins:        candWins,
		ProdWins:             prodWins,
		Draws:                draws,
		Winrate:              winrate,
		CandidateFingerprint: candidate.Fingerprint(),
		ProdFingerprint:      prod.Fingerprint(),
		Threshold:            cfg.Threshold,
	}

	if winrate >= cfg.Threshold && cfg.PromotionEnabled {
		if err := promote(candidate, prod, cfg.PastModelsDir); err != nil {
			return res, errors.Wrap(err, "arena: promote candidate")
		}
		res.Promoted = true
	}
	return res, nil
}

// gameOutcome is one game's result relative to the candidate, so the
// tally stays correct even when a Swap2 negotiation swaps the color
// the candidate started with.
type gameOutcome int

const (
	gameDrawn gameOutcome = iota
	candidateWon
	prodWon
)

// playGame runs one full MCTS-vs-MCTS match at a fixed think time, no
// exploration sampling: the most-visited move is always played.
func playGame(boardSize int, candCE, prodCE *eval.CachedEvaluator, candColor board.Stone, mctsCfg mcts.Config, tt *mcts.TranspositionTable, cfg Config, rnd *rand.Rand) (gameOutcome, error) {
	b := board.New(boardSize)
	toMove := board.Black

	blackCE, whiteCE := candCE, prodCE
	if candColor == board.White {
		blackCE, whiteCE = prodCE, candCE
	}
	ceFor := func(side board.Stone) *eval.CachedEvaluator {
		if side == board.Black {
			return blackCE
		}
		return whiteCE
	}

	if cfg.UseSwap2 {
		proposed, _, err := swap2.Propose(boardSize)
		if err != nil {
			return gameDrawn, err
		}
		choice, err := swap2.Second(proposed, whiteCE, tt, swap2.DefaultConfig(), rnd)
		if err != nil {
			return gameDrawn, err
		}
		b = choice.Board
		toMove = choice.ToMove
		if choice.SwapColors {
			blackCE, whiteCE = whiteCE, blackCE
		}
	}

	for b.HasEmpty() {
		ce := ceFor(toMove)
		res, err := mcts.FindBestMove(b, toMove, mctsCfg, ce, tt, cfg.ThinkTime, false, rnd)
		if err != nil {
			return gameDrawn, err
		}
		if !res.Move.Valid() {
			break
		}
		b.Place(res.Move, toMove)
		if board.CheckWin(b, toMove, res.Move) {
			if ceFor(toMove) == candCE {
				return candidateWon, nil
			}
			return prodWon, nil
		}
		toMove = board.Opponent(toMove)
	}
	return gameDrawn, nil
}

// promote snapshots prod to PastModelsDir/prod_<timestamp>, then
// replaces prod's file with candidate's atomically, retrying on a
// transient "file busy" error.
func promote(candidate, prod *model.Store, pastModelsDir string) error {
	if pastModelsDir != "" {
		if err := os.MkdirAll(pastModelsDir, 0o755); err != nil {
			return errors.Wrap(err, "arena: create past models dir")
		}
		snapshot := filepath.Join(pastModelsDir, fmt.Sprintf("prod_%d", time.Now().UnixNano()))
		if err := copyFile(prod.Path(), snapshot); err != nil {
			return errors.Wrap(err, "arena: snapshot old prod")
		}
	}
	return renameOrCopyWithRetry(candidate.Path(), prod.Path(), 3)
}

func renameOrCopyWithRetry(src, dst string, attempts int) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := os.Rename(src, dst); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if err := copyFile(src, dst); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.Wrap(lastErr, "arena: replace prod model after retries")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
