package server

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/alphabeth/renju/board"
)

// Book is a preloaded opening book, consulted only for shallow
// positions. Entries arrive in arbitrary orientations and are
// canonicalized once at load time, so lookups cost a single canonical
// hash regardless of how the query board happens to be oriented.
type Book struct {
	entries map[string]board.Move
}

// bookEntry is the on-disk JSON shape: the board encoded as rows
// joined by '|' using 'b'/'w'/'-', the move to play from that
// orientation, and an optional move count (informational only).
type bookEntry struct {
	BoardHash string `json:"board_hash"`
	BestMove  [2]int `json:"best_move"`
	MoveCount int    `json:"move_count,omitempty"`
}

// LoadBook reads a JSON array of bookEntry from path and canonicalizes
// every entry: the stored board is reduced to its symmetry-minimum
// hash and the stored move is transformed into that same orientation.
func LoadBook(path string) (*Book, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "server: read opening book")
	}
	var entries []bookEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "server: parse opening book")
	}
	b := &Book{entries: make(map[string]board.Move, len(entries))}
	for i, e := range entries {
		bd, err := parseBoardHash(e.BoardHash)
		if err != nil {
			return nil, errors.Wrapf(err, "server: opening book entry %d", i)
		}
		key, t := board.CanonicalHash(bd)
		mv := t.ApplyMove(bd.N, board.Move{R: e.BestMove[0], C: e.BestMove[1]})
		b.entries[key] = mv
	}
	return b, nil
}

// parseBoardHash decodes the rows-joined-by-'|' board encoding (the
// same encoding board.Board.String produces).
func parseBoardHash(h string) (*board.Board, error) {
	rows := strings.Split(h, "|")
	n := len(rows)
	bd := board.New(n)
	for r, row := range rows {
		if len(row) != n {
			return nil, errors.Errorf("row %d has %d cells, want %d", r, len(row), n)
		}
		for c := 0; c < n; c++ {
			switch row[c] {
			case 'b':
				bd.Place(board.Move{R: r, C: c}, board.Black)
			case 'w':
				bd.Place(board.Move{R: r, C: c}, board.White)
			case '-':
			default:
				return nil, errors.Errorf("row %d has invalid cell %q", r, row[c])
			}
		}
	}
	return bd, nil
}

// Lookup canonicalizes bd, looks up the book move in that orientation,
// inverse-transforms it back to bd's own orientation, and verifies the
// target cell is still empty.
func (bk *Book) Lookup(bd *board.Board) (board.Move, bool) {
	if bk == nil {
		return board.NoMove, false
	}
	key, t := board.CanonicalHash(bd)
	canonMove, ok := bk.entries[key]
	if !ok {
		return board.NoMove, false
	}
	m := t.Inverse().ApplyMove(bd.N, canonMove)
	if !m.Valid() || !bd.InBounds(m.R, m.C) || !bd.IsEmpty(m.R, m.C) {
		return board.NoMove, false
	}
	return m, true
}
