// Package threat implements the deterministic, scan-based threat
// detector: for a board and a player, it enumerates cells that would
// create immediate wins, fours, open fours, open-three makers,
// connected-three makers, and long-link makers.
package threat

import "github.com/alphabeth/renju/board"

var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// Report holds the deduplicated candidate lists for one (board, player)
// scan. Ordering within each list is unspecified, matching spec §4.2.
type Report struct {
	ImmediateWins        []board.Move
	Fours                []board.Move
	OpenFours            []board.Move
	OpenThreeMakers      []board.Move
	ConnectedThreeMakers []board.Move
	LongLinkMakers       []board.Move
}

// candidateRadius bounds the scan to cells within this Chebyshev
// distance of an existing stone, matching the radius-limited candidate
// reduction used everywhere else in search; threats can't
// arise from cells detached from every stone on the board.
const candidateRadius = 2

// Detect scans every radius-limited empty cell and classifies it.
func Detect(b *board.Board, player board.Stone) Report {
	var rep Report
	seen := map[board.Move]bool{}
	for _, m := range board.LegalMoves(b, candidateRadius) {
		if seen[m] {
			continue
		}
		seen[m] = true
		classify(b, player, m, &rep)
	}
	return rep
}

func classify(b *board.Board, player board.Stone, m board.Move, rep *Report) {
	tmp := b.Clone()
	tmp.Place(m, player)

	if board.CheckWin(tmp, player, m) {
		rep.ImmediateWins = append(rep.ImmediateWins, m)
		return // a winning move needs no further classification
	}

	var isFour, isOpenFour, isOpenThree, isConnectedThree, isLongLink bool
	for _, d := range directions {
		if board.DirectionFour(tmp, player, m, d) {
			isFour = true
			if directionOpenFour(tmp, player, m, d) {
				isOpenFour = true
			}
		}
		if board.DirectionOpenThree(tmp, player, m, d) {
			isOpenThree = true
		}
		if directionConnectedThree(tmp, player, m, d) {
			isConnectedThree = true
		}
		if directionLongLink(b, player, m, d) {
			isLongLink = true
		}
	}

	if isFour {
		rep.Fours = append(rep.Fours, m)
	}
	if isOpenFour {
		rep.OpenFours = append(rep.OpenFours, m)
	}
	if isOpenThree {
		rep.OpenThreeMakers = append(rep.OpenThreeMakers, m)
	}
	if isConnectedThree {
		rep.ConnectedThreeMakers = append(rep.ConnectedThreeMakers, m)
	}
	if isLongLink {
		rep.LongLinkMakers = append(rep.LongLinkMakers, m)
	}
}

// directionOpenFour reports whether the four-window through m in
// direction d has both of its outer extensions empty, making it
// unblockable in a single move.
func directionOpenFour(b *board.Board, player board.Stone, m board.Move, d [2]int) bool {
	for k := 0; k < 5; k++ {
		start := board.Move{R: m.R - d[0]*k, C: m.C - d[1]*k}
		cells, before, after, ok := windowWithExtensions(b, start, d, 5)
		if !ok {
			continue
		}
		var friendly, empty int
		opp := false
		for _, v := range cells {
			switch v {
			case player:
				friendly++
			case board.Empty:
				empty++
			default:
				opp = true
			}
		}
		if opp || friendly != 4 || empty != 1 {
			continue
		}
		if before == board.Empty && after == board.Empty {
			return true
		}
	}
	return false
}

// directionConnectedThree reports whether m is part of three
// contiguous friendly stones in direction d with at least one open
// extension.
func directionConnectedThree(b *board.Board, player board.Stone, m board.Move, d [2]int) bool {
	for k := 0; k < 3; k++ {
		start := board.Move{R: m.R - d[0]*k, C: m.C - d[1]*k}
		cells, before, after, ok := windowWithExtensions(b, start, d, 3)
		if !ok {
			continue
		}
		if cells[0] != player || cells[1] != player || cells[2] != player {
			continue
		}
		if before == board.Empty || after == board.Empty {
			return true
		}
	}
	return false
}

// directionLongLink reports whether m bridges two existing friendly
// stones along direction d, each within three steps, with nothing but
// empty cells between m and each anchor.
func directionLongLink(b *board.Board, player board.Stone, m board.Move, d [2]int) bool {
	forward := linkedAnchor(b, player, m, d, 1)
	backward := linkedAnchor(b, player, m, d, -1)
	return forward && backward
}

// linkedAnchor reports whether, walking from m in direction d*sign,
// there is a friendly stone within 3 steps with only empty cells in
// between.
func linkedAnchor(b *board.Board, player board.Stone, m board.Move, d [2]int, sign int) bool {
	for step := 1; step <= 3; step++ {
		r, c := m.R+d[0]*sign*step, m.C+d[1]*sign*step
		if !b.InBounds(r, c) {
			return false
		}
		v := b.At(r, c)
		if v == player {
			return true
		}
		if v != board.Empty {
			return false // blocked by the opponent before reaching an anchor
		}
	}
	return false
}

// windowWithExtensions reads a length-wide window starting at start
// stepping by d, plus the one cell immediately before and after it.
// ok is false if the core window itself goes out of bounds (the
// extensions may legitimately be out of bounds, which reads as "not
// empty" i.e. blocked).
func windowWithExtensions(b *board.Board, start board.Move, d [2]int, length int) (cells []board.Stone, before, after board.Stone, ok bool) {
	cells = make([]board.Stone, length)
	for i := 0; i < length; i++ {
		r, c := start.R+d[0]*i, start.C+d[1]*i
		if !b.InBounds(r, c) {
			return nil, 0, 0, false
		}
		cells[i] = b.At(r, c)
	}
	before = extensionStone(b, start.R-d[0], start.C-d[1])
	endR, endC := start.R+d[0]*length, start.C+d[1]*length
	after = extensionStone(b, endR, endC)
	return cells, before, after, true
}

func extensionStone(b *board.Board, r, c int) board.Stone {
	if !b.InBounds(r, c) {
		return board.OffBoard
	}
	return b.At(r, c)
}
