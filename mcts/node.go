package mcts

import (
	"sync"

	"github.com/alphabeth/renju/board"
)

// Node is one position reached by one move from its parent. Visits and
// qsa are read and written from the batched select/backprop loop under
// the node's own lock; the tree's lock only ever guards the shared
// arena and children index, never a single node's statistics.
type Node struct {
	lock sync.Mutex

	move   board.Move
	visits uint32
	qsa    float32 // running mean value from this node's own perspective
	psa    float32 // expansion prior P(s,a)

	expanded bool // policy/value has been computed for the state at this node
	terminal bool
	termVal  float32

	id Naughty
}

func (n *Node) Visits() uint32 {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.visits
}

func (n *Node) QSA() float32 {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.qsa
}

func (n *Node) PSA() float32 {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.psa
}

func (n *Node) markExpanded() {
	n.lock.Lock()
	n.expanded = true
	n.lock.Unlock()
}

func (n *Node) isExpanded() bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.expanded
}

func (n *Node) isTerminal() (bool, float32) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.terminal, n.termVal
}

func (n *Node) setPSA(p float32) {
	n.lock.Lock()
	n.psa = p
	n.lock.Unlock()
}

// update folds one backpropagated value into the node's running mean
// and bumps its visit count.
func (n *Node) update(v float32) {
	n.lock.Lock()
	n.qsa = (float32(n.visits)*n.qsa + v) / float32(n.visits+1)
	n.visits++
	n.lock.Unlock()
}

// bootstrap seeds v0 synthetic visits at mean v, used when descending
// into a node whose canonical key already has a TT entry.
func (n *Node) bootstrap(v float32, v0 int) {
	n.lock.Lock()
	if n.visits == 0 && v0 > 0 {
		n.qsa = v
		n.visits = uint32(v0)
	}
	n.lock.Unlock()
}

func (n *Node) reset(id Naughty) {
	n.lock.Lock()
	n.move = board.NoMove
	n.visits = 0
	n.qsa = 0
	n.psa = 0
	n.expanded = false
	n.terminal = false
	n.termVal = 0
	n.id = id
	n.lock.Unlock()
}
