// Package server implements the inference HTTP server: POST /get-move
// (with an opening-book shortcut and dynamic think-time allocation),
// GET /health, and the two Swap2 helper endpoints.
package server

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/eval"
	"github.com/alphabeth/renju/mcts"
	"github.com/alphabeth/renju/model"
	"github.com/alphabeth/renju/swap2"
)

// Server answers /get-move and friends against one model Store.
type Server struct {
	Cfg     *config.Config
	MCTSCfg mcts.Config
	Store   *model.Store
	TT      *mcts.TranspositionTable
	Book    *Book
	Logger  *log.Logger
	RNG     *rand.Rand

	mu          sync.Mutex
	fingerprint string
	ce          *eval.CachedEvaluator
}

// New builds a Server. book may be nil (no opening book loaded).
func New(cfg *config.Config, store *model.Store, tt *mcts.TranspositionTable, book *Book, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		Cfg:     cfg,
		MCTSCfg: cfg.MCTSConfig(),
		Store:   store,
		TT:      tt,
		Book:    book,
		Logger:  logger,
		RNG:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Router builds the gorilla/mux routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/get-move", s.handleGetMove).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/swap2/propose", s.handleSwap2Propose).Methods(http.MethodPost)
	r.HandleFunc("/swap2/second", s.handleSwap2Second).Methods(http.MethodPost)
	return r
}

// WatchModel periodically reloads the model from disk/remote until
// ctx is canceled.
func (s *Server) WatchModel(ctx context.Context) {
	s.Store.WatchReload(ctx, s.Cfg.ModelCheckInterval(), s.Logger)
}

// requestRNG hands out a fresh *rand.Rand per request, seeded from the
// server's own shared RNG under lock, so concurrent requests don't
// race on a single *rand.Rand's internal state while each request's
// search is still reproducible given the server's seed.
func (s *Server) requestRNG() *rand.Rand {
	s.mu.Lock()
	seed := s.RNG.Int63()
	s.mu.Unlock()
	return rand.New(rand.NewSource(seed))
}

var errNoModel = errors.New("server: no model loaded")

func (s *Server) evaluator() (*eval.CachedEvaluator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Store.Current() == nil {
		return nil, errNoModel
	}
	fp := s.Store.Fingerprint()
	if s.ce != nil && s.fingerprint == fp {
		return s.ce, nil
	}
	ce, err := eval.NewCachedEvaluator(s.Store.Current(), s.Cfg.PredictionCacheCapacity)
	if err != nil {
		return nil, err
	}
	s.ce = ce
	s.fingerprint = fp
	return ce, nil
}

type getMoveRequest struct {
	Board            [][]*string `json:"board"`
	Player           string      `json:"player"`
	Moves            [][2]int    `json:"moves,omitempty"`
	TurnEndsAt       *int64      `json:"turnEndsAt,omitempty"`
	TimeLeftMs       *int        `json:"timeLeftMs,omitempty"`
	TurnLimitMs      *int        `json:"turnLimitMs,omitempty"`
	ForceThinkTimeMs *int        `json:"forceThinkTimeMs,omitempty"`
}

type getMoveResponse struct {
	Move   [2]int `json:"move"`
	Source string `json:"source,omitempty"`
}

func (s *Server) handleGetMove(w http.ResponseWriter, r *http.Request) {
	var req getMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}

	bd, side, err := decodeBoard(req.Board, req.Player, s.Cfg.BoardSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	movesCount := len(req.Moves)
	if movesCount == 0 {
		movesCount = bd.Stones
	}

	if movesCount <= 12 && s.Book != nil {
		if m, ok := s.Book.Lookup(bd); ok {
			json.NewEncoder(w).Encode(getMoveResponse{Move: [2]int{m.R, m.C}, Source: "book"})
			return
		}
	}

	think := s.computeThinkTime(req, movesCount)

	ce, err := s.evaluator()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errNoModel) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	res, err := mcts.FindBestMove(bd, side, s.MCTSCfg, ce, s.TT, think, false, s.requestRNG())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !res.Move.Valid() {
		writeError(w, http.StatusInternalServerError, errors.New("no legal move"))
		return
	}
	json.NewEncoder(w).Encode(getMoveResponse{Move: [2]int{res.Move.R, res.Move.C}})
}

// computeThinkTime resolves the think-time budget in priority order:
// forceThinkTimeMs, then timeLeftMs/turnLimitMs/turnEndsAt with a
// phase-dependent fraction and safety margin, then a base+increment
// approximation, then static phase defaults.
func (s *Server) computeThinkTime(req getMoveRequest, movesCount int) time.Duration {
	const marginMs = 200

	if req.ForceThinkTimeMs != nil {
		ms := clampInt(*req.ForceThinkTimeMs, 200, 5000)
		return time.Duration(ms) * time.Millisecond
	}

	frac := phaseFraction(movesCount)

	if req.TimeLeftMs != nil {
		return allocate(*req.TimeLeftMs, frac, marginMs)
	}
	if req.TurnLimitMs != nil {
		return allocate(*req.TurnLimitMs, frac, marginMs)
	}
	if req.TurnEndsAt != nil {
		timeLeft := int(*req.TurnEndsAt - time.Now().UnixMilli())
		return allocate(timeLeft, frac, marginMs)
	}

	if ms, ok := baseIncrementThinkTime(s.Cfg.TimeControl); ok {
		return time.Duration(ms) * time.Millisecond
	}

	return time.Duration(staticPhaseDefault(s.Cfg, movesCount)) * time.Millisecond
}

// phaseFraction returns the share of remaining time to spend this
// move: 0.35 early (<=6 moves), 0.55 mid (7-30), 0.5 late (>30).
func phaseFraction(movesCount int) float64 {
	switch {
	case movesCount <= 6:
		return 0.35
	case movesCount <= 30:
		return 0.55
	default:
		return 0.5
	}
}

func staticPhaseDefault(cfg *config.Config, movesCount int) int {
	switch {
	case movesCount <= 6:
		return cfg.ThinkTimeEarlyMs
	case movesCount <= 30:
		return cfg.ThinkTimeMidMs
	default:
		return cfg.ThinkTimeLateMs
	}
}

func allocate(budgetMs int, frac float64, marginMs int) time.Duration {
	ms := int(float64(budgetMs)*frac) - marginMs
	if ms < 200 {
		ms = 200
	}
	return time.Duration(ms) * time.Millisecond
}

// baseIncrementThinkTime approximates a per-move budget from a
// "base+increment" time control string (minutes+seconds), assuming a
// roughly 40-move game: increment plus a 1/40th share of the base.
func baseIncrementThinkTime(control string) (int, bool) {
	parts := strings.SplitN(control, "+", 2)
	if len(parts) != 2 {
		return 0, false
	}
	baseMin, err1 := strconv.Atoi(parts[0])
	incSec, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	ms := incSec*1000 + (baseMin*60*1000)/40
	if ms < 200 {
		ms = 200
	}
	return ms, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// decodeBoard parses the wire board representation into a
// board.Board, validating its dimensions match n and the player
// field names a known side.
func decodeBoard(raw [][]*string, player string, n int) (*board.Board, board.Stone, error) {
	if len(raw) != n {
		return nil, board.Empty, errors.Errorf("server: board has %d rows, want %d", len(raw), n)
	}
	bd := board.New(n)
	for r, row := range raw {
		if len(row) != n {
			return nil, board.Empty, errors.Errorf("server: board row %d has %d cells, want %d", r, len(row), n)
		}
		for c, cell := range row {
			if cell == nil {
				continue
			}
			switch *cell {
			case "black":
				bd.Place(board.Move{R: r, C: c}, board.Black)
			case "white":
				bd.Place(board.Move{R: r, C: c}, board.White)
			default:
				return nil, board.Empty, errors.Errorf("server: board cell [%d][%d] has invalid value %q", r, c, *cell)
			}
		}
	}
	var side board.Stone
	switch player {
	case "black":
		side = board.Black
	case "white":
		side = board.White
	default:
		return nil, board.Empty, errors.Errorf("server: invalid player %q", player)
	}
	return bd, side, nil
}

// healthResponse is the /health body: ok, the model path when one is
// loaded, and an error message when not.
type healthResponse struct {
	OK        bool   `json:"ok"`
	ModelPath string `json:"modelPath,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{OK: s.Store.Current() != nil}
	if resp.OK {
		resp.ModelPath = s.Store.Path()
	} else {
		resp.Error = "no model loaded"
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleSwap2Propose(w http.ResponseWriter, r *http.Request) {
	bd, toMove, err := swap2.Propose(s.Cfg.BoardSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"board":  encodeBoard(bd),
		"toMove": sideJSON(toMove),
	})
}

type swap2SecondRequest struct {
	Board [][]*string `json:"board"`
}

func (s *Server) handleSwap2Second(w http.ResponseWriter, r *http.Request) {
	var req swap2SecondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	bd, _, err := decodeBoard(req.Board, "white", s.Cfg.BoardSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ce, err := s.evaluator()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	choice, err := swap2.Second(bd, ce, s.TT, swap2.DefaultConfig(), s.requestRNG())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"board":      encodeBoard(choice.Board),
		"toMove":     sideJSON(choice.ToMove),
		"swapColors": choice.SwapColors,
		"option":     int(choice.Option),
	})
}

func encodeBoard(bd *board.Board) [][]*string {
	out := make([][]*string, bd.N)
	for r := 0; r < bd.N; r++ {
		row := make([]*string, bd.N)
		for c := 0; c < bd.N; c++ {
			row[c] = sideJSONPtr(bd.At(r, c))
		}
		out[r] = row
	}
	return out
}

func sideJSON(s board.Stone) string {
	if s == board.Black {
		return "black"
	}
	return "white"
}

func sideJSONPtr(s board.Stone) *string {
	switch s {
	case board.Black:
		v := "black"
		return &v
	case board.White:
		v := "white"
		return &v
	default:
		return nil
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
