package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/eval"
	"github.com/alphabeth/renju/mcts"
	"github.com/alphabeth/renju/model"
)

type uniformEvaluator struct{}

func (uniformEvaluator) PredictBatch(inputs [][]float32) ([][]float32, []float32, error) {
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
	}
	return policies, values, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		BoardSize:               7,
		ThinkTimeEarlyMs:        5,
		ThinkTimeMidMs:          5,
		ThinkTimeLateMs:         5,
		PredictionCacheCapacity: 1000,
		TTCapacity:              1000,
		ModelCheckIntervalMs:    60_000,
		TimeControl:             "0+0",
	}
	factory := func(string) (eval.Evaluator, error) { return uniformEvaluator{}, nil }
	store := model.NewStore(t.TempDir()+"/prod.model", "", factory)
	require.NoError(t, store.Bootstrap())
	tt, err := mcts.NewTranspositionTable(1000)
	require.NoError(t, err)
	return New(cfg, store, tt, nil, nil)
}

func emptyBoardJSON(n int) [][]*string {
	rows := make([][]*string, n)
	for r := range rows {
		rows[r] = make([]*string, n)
	}
	return rows
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
}

func TestGetMoveReturnsAMove(t *testing.T) {
	s := testServer(t)
	body, err := json.Marshal(map[string]any{
		"board":  emptyBoardJSON(7),
		"player": "black",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/get-move", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var resp getMoveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.GreaterOrEqual(t, resp.Move[0], 0)
	require.GreaterOrEqual(t, resp.Move[1], 0)
}

func TestGetMoveRejectsWrongBoardSize(t *testing.T) {
	s := testServer(t)
	body, err := json.Marshal(map[string]any{
		"board":  emptyBoardJSON(5),
		"player": "black",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/get-move", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, 400, rec.Code)
}

func TestSwap2ProposeAndSecond(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("POST", "/swap2/propose", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var proposed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proposed))

	body, err := json.Marshal(map[string]any{"board": proposed["board"]})
	require.NoError(t, err)
	req2 := httptest.NewRequest("POST", "/swap2/second", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req2)
	require.Equal(t, 200, rec2.Code)
}

func TestHealthReportsModelPath(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.NotEmpty(t, resp.ModelPath)
	require.Empty(t, resp.Error)
}

func TestBookLookupAcrossOrientations(t *testing.T) {
	// A 5x5 book entry with a black stone at (0,0), a white stone at
	// (0,2) and best move (0,1). The position has no symmetry of its
	// own, so each rotated query has exactly one matching move. A query
	// board holding the same position rotated must hit the entry and get
	// the move rotated back to match.
	entry := `[{"board_hash":"b-w--|-----|-----|-----|-----","best_move":[0,1],"move_count":1}]`
	path := t.TempDir() + "/book.json"
	require.NoError(t, os.WriteFile(path, []byte(entry), 0o644))

	book, err := LoadBook(path)
	require.NoError(t, err)

	bd := board.New(5)
	bd.Place(board.Move{R: 0, C: 0}, board.Black)
	bd.Place(board.Move{R: 0, C: 2}, board.White)

	m, ok := book.Lookup(bd)
	require.True(t, ok)
	require.Equal(t, board.Move{R: 0, C: 1}, m)

	for _, sym := range board.All {
		rotated := sym.Apply(bd)
		got, ok := book.Lookup(rotated)
		require.True(t, ok, "symmetry %v", sym)
		require.Equal(t, sym.ApplyMove(5, m), got, "symmetry %v", sym)
	}
}

func TestBookLookupSkipsOccupiedCell(t *testing.T) {
	// A corrupt entry whose best move lands on an occupied cell must
	// be rejected at lookup rather than returned.
	entry := `[{"board_hash":"bw---|-----|-----|-----|-----","best_move":[0,1]}]`
	path := t.TempDir() + "/book.json"
	require.NoError(t, os.WriteFile(path, []byte(entry), 0o644))

	book, err := LoadBook(path)
	require.NoError(t, err)

	bd := board.New(5)
	bd.Place(board.Move{R: 0, C: 0}, board.Black)
	bd.Place(board.Move{R: 0, C: 1}, board.White)

	_, ok := book.Lookup(bd)
	require.False(t, ok)
}

func TestComputeThinkTimeHonorsForceThinkTime(t *testing.T) {
	s := testServer(t)
	force := 999
	d := s.computeThinkTime(getMoveRequest{ForceThinkTimeMs: &force}, 1)
	require.Equal(t, int64(999), d.Milliseconds())
}

func TestComputeThinkTimeClampsForceThinkTime(t *testing.T) {
	s := testServer(t)
	force := 50
	d := s.computeThinkTime(getMoveRequest{ForceThinkTimeMs: &force}, 1)
	require.Equal(t, int64(200), d.Milliseconds())
}
