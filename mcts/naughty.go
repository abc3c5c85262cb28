package mcts

// Naughty is an arena index standing in for a node pointer: cheap to
// copy, cheap to compare, and immune to the aliasing hazards of a
// pointer-chasing tree under concurrent batched expansion.
type Naughty int32

const nilNode Naughty = -1

func (n Naughty) isValid() bool { return n >= 0 }
