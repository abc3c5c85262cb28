package mcts

import (
	"bytes"
	"log"
	"math/rand"
	"sync"
	"time"

	distrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/eval"
)

// Tree is the node arena backing one search. It is built fresh for
// every findBestMove call; self-play and the arena never reuse a tree
// across moves, so every search owns its own node allocations.
type Tree struct {
	mu sync.Mutex

	cfg Config
	ev  *eval.CachedEvaluator
	tt  *TranspositionTable
	rnd *rand.Rand

	nodes      []Node
	children   [][]Naughty
	candidates [][]moveProb // full ranked candidate list per node, admitted into children incrementally by widening
	freelist   []Naughty

	logBuf bytes.Buffer
	log    *log.Logger
}

// moveProb is a candidate move and its expansion prior.
type moveProb struct {
	move board.Move
	prob float32
}

// newTree builds a search arena using rnd as its seedable PRNG for
// root Dirichlet noise. rnd may be nil, in which case a time-seeded
// one is used; callers that care about reproducibility pass their own.
func newTree(cfg Config, ev *eval.CachedEvaluator, tt *TranspositionTable, rnd *rand.Rand) *Tree {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	t := &Tree{
		cfg:        cfg,
		ev:         ev,
		tt:         tt,
		rnd:        rnd,
		nodes:      make([]Node, 0, 4096),
		children:   make([][]Naughty, 0, 4096),
		candidates: make([][]moveProb, 0, 4096),
	}
	t.log = log.New(&t.logBuf, "", log.Ltime)
	return t
}

// nextSeed draws a seed for one dirichletNoise call from the tree's
// own seedable PRNG, so repeated searches from the same worker seed
// produce the same sequence of root noise draws.
func (t *Tree) nextSeed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rnd.Int63()
}

// alloc returns a fresh or recycled node for move, with visits/qsa/psa
// zeroed and no children.
func (t *Tree) alloc(move board.Move, psa float32) Naughty {
	t.mu.Lock()
	defer t.mu.Unlock()

	var id Naughty
	if l := len(t.freelist); l > 0 {
		id = t.freelist[l-1]
		t.freelist = t.freelist[:l-1]
		t.children[id] = t.children[id][:0]
		t.candidates[id] = nil
	} else {
		id = Naughty(len(t.nodes))
		t.nodes = append(t.nodes, Node{})
		t.children = append(t.children, nil)
		t.candidates = append(t.candidates, nil)
	}
	n := &t.nodes[id]
	n.reset(id)
	n.move = move
	n.psa = psa
	return id
}

func (t *Tree) node(id Naughty) *Node { return &t.nodes[id] }

func (t *Tree) addChild(parent, child Naughty) {
	t.mu.Lock()
	t.children[parent] = append(t.children[parent], child)
	t.mu.Unlock()
}

func (t *Tree) childrenOf(id Naughty) []Naughty {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Naughty, len(t.children[id]))
	copy(out, t.children[id])
	return out
}

func (t *Tree) hasChildren(id Naughty) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children[id]) > 0
}

func (t *Tree) setCandidates(id Naughty, probs []moveProb) {
	t.mu.Lock()
	t.candidates[id] = probs
	t.mu.Unlock()
}

func (t *Tree) markTerminal(id Naughty, value float32) {
	n := t.node(id)
	n.lock.Lock()
	n.terminal = true
	n.termVal = value
	n.lock.Unlock()
}

// ensureWidened admits additional children from id's ranked candidate
// list, up to the progressive-widening cap implied by id's current
// visit count.
func (t *Tree) ensureWidened(id Naughty, isRoot, fastMode bool) {
	visits := t.node(id).Visits()
	var target int
	if isRoot {
		target = t.cfg.widening(t.cfg.KRootBase, t.cfg.KRootStep, t.cfg.KRootMax, visits, fastMode)
	} else {
		target = t.cfg.widening(t.cfg.KChildBase, t.cfg.KChildStep, t.cfg.KChildMax, visits, fastMode)
	}
	for {
		t.mu.Lock()
		cur := len(t.children[id])
		cands := t.candidates[id]
		t.mu.Unlock()
		if cur >= target || cur >= len(cands) {
			return
		}
		mp := cands[cur]
		child := t.alloc(mp.move, mp.prob)
		t.addChild(id, child)
	}
}

func (t *Tree) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// dirichletNoise samples n values from Dirichlet(alpha, ..., alpha),
// used to mix exploration noise into the root's priors during the
// early-opening phase. seed comes from the tree's own
// seedable PRNG (Tree.nextSeed) so the draw is reproducible for a
// fixed worker seed.
func dirichletNoise(n int, alpha float64, seed int64) []float64 {
	if n == 0 {
		return nil
	}
	params := make([]float64, n)
	for i := range params {
		params[i] = alpha
	}
	dist := distmv.NewDirichlet(params, distrand.NewSource(uint64(seed)))
	return dist.Rand(nil)
}
