// Package sample defines the training-sample schema self-play workers
// produce, and the append-only JSONL replay buffer they write it into.
package sample

import "github.com/alphabeth/renju/board"

// Meta carries the provenance fields attached to every sample: which
// source produced it, which game and move it came from, and any
// free-form tags/extras a downstream distillation job wants.
type Meta struct {
	Source     string         `json:"source"`
	GameID     string         `json:"gameId"`
	MoveIndex  int            `json:"moveIndex"`
	TotalMoves int            `json:"totalMoves"`
	Result     int            `json:"result"`
	Tags       []string       `json:"tags,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Sample is one training example: a board position, the MCTS
// visit-derived policy target, the teacher (raw NN) targets captured
// before search, and the eventual game outcome from that position's
// side-to-move perspective.
type Sample struct {
	State         [][]*string `json:"state"`
	Player        string      `json:"player"`
	MCTSPolicy    []float32   `json:"mcts_policy"`
	TeacherPolicy []float32   `json:"teacher_policy"`
	TeacherValue  float32     `json:"teacher_value"`
	FinalValue    int         `json:"final_value"`
	Meta          Meta        `json:"meta"`
}

// stoneJSON renders a board cell the way the wire schema wants:
// null for empty, "black"/"white" otherwise.
func stoneJSON(s board.Stone) *string {
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

func playerJSON(s board.Stone) string {
	if s == board.Black {
		return "black"
	}
	return "white"
}

// EncodeState renders b as the [][]*string grid the JSONL schema
// expects.
func EncodeState(b *board.Board) [][]*string {
	out := make([][]*string, b.N)
	for r := 0; r < b.N; r++ {
		row := make([]*string, b.N)
		for c := 0; c < b.N; c++ {
			row[c] = stoneJSON(b.At(r, c))
		}
		out[r] = row
	}
	return out
}

// New builds a Sample from a board position, the side to move, and the
// two policy targets; FinalValue is filled in later, once the game
// that produced it has concluded.
func New(b *board.Board, side board.Stone, mctsPolicy, teacherPolicy []float32, teacherValue float32, meta Meta) Sample {
	return Sample{
		State:         EncodeState(b),
		Player:        playerJSON(side),
		MCTSPolicy:    mctsPolicy,
		TeacherPolicy: teacherPolicy,
		TeacherValue:  teacherValue,
		Meta:          meta,
	}
}

// VisitPolicyVector turns a {move: visits} map into a dense, masked,
// normalized length-N*N policy vector, the MCTS-visit-derived policy
// target stored alongside each sample.
func VisitPolicyVector(n int, visits map[board.Move]int) []float32 {
	out := make([]float32, n*n)
	var total int
	for _, v := range visits {
		total += v
	}
	if total == 0 {
		return out
	}
	for m, v := range visits {
		out[m.R*n+m.C] = float32(v) / float32(total)
	}
	return out
}
