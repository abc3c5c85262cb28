package sample

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alphabeth/renju/board"
)

func TestEncodeStateRoundTrip(t *testing.T) {
	b := board.New(5)
	b.Place(board.Move{R: 0, C: 0}, board.Black)
	b.Place(board.Move{R: 1, C: 1}, board.White)

	s := New(b, board.Black, []float32{1}, []float32{1}, 0.5, Meta{Source: "self_play"})

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var back Sample
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, "black", *back.State[0][0])
	require.Equal(t, "white", *back.State[1][1])
	require.Nil(t, back.State[0][1])
	require.Equal(t, "black", back.Player)
}

func TestVisitPolicyVectorNormalizes(t *testing.T) {
	v := VisitPolicyVector(3, map[board.Move]int{{R: 0, C: 0}: 3, {R: 1, C: 1}: 1})
	require.InDelta(t, 0.75, v[0], 1e-6)
	require.InDelta(t, 0.25, v[4], 1e-6)
}

func TestBufferFlushWritesImmutableFile(t *testing.T) {
	dir := t.TempDir()
	buf, err := NewBuffer(dir)
	require.NoError(t, err)

	b := board.New(5)
	buf.Append(New(b, board.Black, []float32{1}, []float32{1}, 0, Meta{Source: "self_play", GameID: "g1"}))
	require.Equal(t, 1, buf.Len())

	path, n, err := buf.Flush()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 0, buf.Len())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	require.Equal(t, 1, lines)

	path2, n2, err := buf.Flush()
	require.NoError(t, err)
	require.Equal(t, "", path2)
	require.Equal(t, 0, n2)
	require.Greater(t, path, "")
}
