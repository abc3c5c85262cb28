package board

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func moveSet(ms []Move) map[Move]bool {
	out := make(map[Move]bool, len(ms))
	for _, m := range ms {
		out[m] = true
	}
	return out
}

func TestLegalMovesEmptyBoardIsCenter(t *testing.T) {
	b := New(15)
	moves := LegalMoves(b, 1)
	require.Equal(t, []Move{{7, 7}}, moves)
	require.False(t, b.HasEmpty() == false)
}

func TestLegalMovesSymmetryInvariant(t *testing.T) {
	b := New(9)
	b.Place(Move{4, 4}, Black)
	b.Place(Move{3, 5}, White)
	b.Place(Move{2, 2}, Black)

	for _, s := range All {
		tb := s.Apply(b)
		got := moveSet(LegalMoves(tb, 1))

		want := make(map[Move]bool)
		for _, m := range LegalMoves(b, 1) {
			want[s.ApplyMove(b.N, m)] = true
		}
		require.Equal(t, want, got, "symmetry %v", s)
	}
}

func TestCheckWinFourDirections(t *testing.T) {
	b := New(15)
	for c := 6; c <= 9; c++ {
		b.Place(Move{7, c}, Black)
	}
	last := Move{7, 10}
	b.Place(last, Black)
	require.True(t, CheckWin(b, Black, last))
	require.False(t, CheckWin(b, White, last))
}

func TestForbiddenFourFourNotWinningIsIllegal(t *testing.T) {
	b := New(15)
	// Build two independent three-in-a-rows that both become fours
	// when the shared cell at (7,7) is played, without completing a
	// five in either direction.
	b.Place(Move{7, 4}, Black)
	b.Place(Move{7, 5}, Black)
	b.Place(Move{7, 6}, Black)
	// vertical arm
	b.Place(Move{4, 7}, Black)
	b.Place(Move{5, 7}, Black)
	b.Place(Move{6, 7}, Black)

	m := Move{7, 7}
	require.True(t, WouldBeForbidden(b, m))
}

func TestForbiddenNeverAppliesWhenMoveWins(t *testing.T) {
	b := New(15)
	for c := 6; c <= 9; c++ {
		b.Place(Move{7, c}, Black)
	}
	// also set up a spurious four in another direction through (7,10)
	b.Place(Move{4, 10}, Black)
	b.Place(Move{5, 10}, Black)
	b.Place(Move{6, 10}, Black)

	m := Move{7, 10}
	tmp := b.Clone()
	tmp.Place(m, Black)
	require.True(t, CheckWin(tmp, Black, m))
	require.False(t, IsForbidden(tmp, m))
}

func TestCanonicalHashSymmetryInvariant(t *testing.T) {
	b := New(9)
	b.Place(Move{4, 4}, Black)
	b.Place(Move{3, 5}, White)
	b.Place(Move{1, 2}, Black)

	base, _ := CanonicalHash(b)
	for _, s := range All {
		got, _ := CanonicalHash(s.Apply(b))
		require.Equal(t, base, got, "symmetry %v", s)
	}
}

func TestCanonicalHashIdempotent(t *testing.T) {
	b := New(9)
	b.Place(Move{4, 4}, Black)
	b.Place(Move{3, 5}, White)

	key1, t1 := CanonicalHash(b)
	canon := t1.Apply(b)
	key2, _ := CanonicalHash(canon)
	require.Equal(t, key1, key2)
}

func TestSymmetryRoundTrip(t *testing.T) {
	b := New(9)
	b.Place(Move{4, 4}, Black)
	b.Place(Move{2, 6}, White)

	for _, s := range All {
		transformed := s.Apply(b)
		back := s.Inverse().Apply(transformed)
		require.True(t, back.Eq(b), "symmetry %v round trip", s)
	}
}

func TestFullBoardHasNoEmpty(t *testing.T) {
	b := New(3)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			s := Black
			if (r+c)%2 == 0 {
				s = White
			}
			b.Place(Move{r, c}, s)
		}
	}
	require.False(t, b.HasEmpty())
}
