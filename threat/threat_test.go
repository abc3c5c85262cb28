package threat

import (
	"testing"

	"github.com/alphabeth/renju/board"
	"github.com/stretchr/testify/require"
)

func contains(ms []board.Move, m board.Move) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}

func TestImmediateWinDetected(t *testing.T) {
	b := board.New(15)
	for c := 6; c <= 9; c++ {
		b.Place(board.Move{R: 7, C: c}, board.Black)
	}
	rep := Detect(b, board.Black)
	require.True(t, contains(rep.ImmediateWins, board.Move{R: 7, C: 5}))
	require.True(t, contains(rep.ImmediateWins, board.Move{R: 7, C: 10}))
}

func TestOpenFourDetected(t *testing.T) {
	b := board.New(15)
	b.Place(board.Move{R: 7, C: 6}, board.Black)
	b.Place(board.Move{R: 7, C: 7}, board.Black)
	b.Place(board.Move{R: 7, C: 9}, board.Black)
	// playing (7,8) completes an unbroken four 6-9 with both ends open
	rep := Detect(b, board.Black)
	require.True(t, contains(rep.OpenFours, board.Move{R: 7, C: 8}))
	require.True(t, contains(rep.Fours, board.Move{R: 7, C: 8}))
}

func TestOpenThreeMakerDetected(t *testing.T) {
	b := board.New(15)
	b.Place(board.Move{R: 7, C: 7}, board.Black)
	b.Place(board.Move{R: 7, C: 8}, board.Black)
	rep := Detect(b, board.Black)
	require.True(t, contains(rep.OpenThreeMakers, board.Move{R: 7, C: 9}))
	require.True(t, contains(rep.OpenThreeMakers, board.Move{R: 7, C: 6}))
}

func TestConnectedThreeMakerDetected(t *testing.T) {
	b := board.New(15)
	b.Place(board.Move{R: 7, C: 7}, board.Black)
	b.Place(board.Move{R: 7, C: 8}, board.Black)
	// blocking one end with the opponent still leaves an open end
	b.Place(board.Move{R: 7, C: 5}, board.White)
	rep := Detect(b, board.Black)
	require.True(t, contains(rep.ConnectedThreeMakers, board.Move{R: 7, C: 9}))
}
