package mcts

import (
	"math/rand"
	"sort"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/eval"
	"github.com/alphabeth/renju/solver"
	"github.com/alphabeth/renju/threat"
)

// leafJob is one selected leaf from a single batch: the path of node
// ids from root to leaf (inclusive), the board and mover at the leaf,
// and, if the leaf turned out to be terminal, its fixed value.
type leafJob struct {
	path     []Naughty
	b        *board.Board
	mover    board.Stone
	terminal bool
	termVal  float32
}

// legalMovesFor returns the radius-limited legal moves for mover at b,
// excluding cells that would be forbidden if mover is Black.
func legalMovesFor(b *board.Board, mover board.Stone) []board.Move {
	radius := board.DefaultRadius(b)
	moves := board.LegalMoves(b, radius)
	if mover != board.Black {
		return moves
	}
	out := make([]board.Move, 0, len(moves))
	for _, m := range moves {
		if !board.WouldBeForbidden(b, m) {
			out = append(out, m)
		}
	}
	return out
}

// selectChild picks the child maximizing Q+U under PUCT.
func (t *Tree) selectChild(id Naughty, depth int) Naughty {
	kids := t.childrenOf(id)
	if len(kids) == 0 {
		return nilNode
	}
	parentVisits := t.node(id).Visits()
	numerator := math32.Sqrt(float32(parentVisits))
	c := t.cfg.puct(depth)

	best := nilNode
	bestVal := math32.Inf(-1)
	for _, kid := range kids {
		n := t.node(kid)
		q := -n.QSA()
		u := c * n.PSA() * numerator / (1 + float32(n.Visits()))
		if val := q + u; val > bestVal {
			bestVal = val
			best = kid
		}
	}
	return best
}

// expandRoot expands id (the tree's root) with its own single-position
// evaluator call; used once before the batched main loop starts.
func (t *Tree) expandRoot(id Naughty, b *board.Board, mover board.Stone, fastMode bool, timeBudget time.Duration) (float32, error) {
	legal := legalMovesFor(b, mover)
	if len(legal) == 0 {
		t.markTerminal(id, 0)
		return 0, nil
	}
	policy, value, err := t.ev.Evaluate(b, mover, timeBudget, fastMode)
	if err != nil {
		return 0, errors.Wrap(err, "mcts: root evaluate")
	}
	return t.expandWithPrediction(id, b, mover, true, fastMode, policy, value)
}

// expandWithPrediction builds node id's expansion priors from an
// already-computed (policy, value) pair, the shared second half of
// expansion for both the root (its own evaluator call) and batched
// leaves (a shared batch evaluator call): masked legal-move policy,
// tactical boost, TT prior blend, and (at the root, during the early
// opening) Dirichlet noise. It records the ranked candidate list,
// admits the first widening batch of children, updates the
// transposition table, and returns the leaf value to backpropagate.
func (t *Tree) expandWithPrediction(id Naughty, b *board.Board, mover board.Stone, isRoot, fastMode bool, policy []float32, value float32) (float32, error) {
	legal := legalMovesFor(b, mover)
	if len(legal) == 0 {
		t.markTerminal(id, 0)
		return 0, nil
	}

	n := b.N
	probs := make([]moveProb, len(legal))
	var sum float32
	for i, m := range legal {
		p := policy[m.R*n+m.C]
		probs[i] = moveProb{move: m, prob: p}
		sum += p
	}
	normalizeProbs(probs, sum)

	applyTacticalBoostSlice(t.cfg, b, mover, probs, isRoot)

	if entry, sym := t.tt.Lookup(b, mover); entry != nil {
		entry.mu.Lock()
		ttPriors := entry.priors
		entry.mu.Unlock()
		if ttPriors != nil {
			w := t.cfg.ChildTTPriorMix
			if isRoot {
				w = t.cfg.RootTTPriorMix
			}
			ownOrientation := sym.Inverse().ApplyPolicy(n, ttPriors)
			for i := range probs {
				tp := ownOrientation[probs[i].move.R*n+probs[i].move.C]
				probs[i].prob = (1-w)*probs[i].prob + w*tp
			}
			var s float32
			for _, p := range probs {
				s += p.prob
			}
			normalizeProbs(probs, s)
		}
	}

	if isRoot && b.Stones <= t.cfg.earlyOpeningMaxStones() {
		noise := dirichletNoise(len(probs), t.cfg.DirichletAlpha, t.nextSeed())
		eps := t.cfg.DirichletWeight
		for i := range probs {
			probs[i].prob = (1-eps)*probs[i].prob + eps*float32(noise[i])
		}
		var s float32
		for _, p := range probs {
			s += p.prob
		}
		normalizeProbs(probs, s)
	}

	sort.SliceStable(probs, func(i, j int) bool { return probs[i].prob > probs[j].prob })

	t.setCandidates(id, probs)
	t.node(id).markExpanded()
	t.ensureWidened(id, isRoot, fastMode)

	canonVec := make([]float32, n*n)
	for _, p := range probs {
		canonVec[p.move.R*n+p.move.C] = p.prob
	}
	_, sym := t.tt.Lookup(b, mover)
	t.tt.Record(b, mover, value, sym.ApplyPolicy(n, canonVec))

	return value, nil
}

func normalizeProbs(probs []moveProb, sum float32) {
	if sum <= 0 {
		u := float32(1) / float32(len(probs))
		for i := range probs {
			probs[i].prob = u
		}
		return
	}
	for i := range probs {
		probs[i].prob /= sum
	}
}

// collectLeaf walks root to an unexpanded or terminal node, applying
// progressive widening and PUCT selection at every expanded node along
// the way, and returns the path taken plus the leaf's board state.
func collectLeaf(t *Tree, root Naughty, rootBoard *board.Board, rootSide board.Stone, fastMode bool) leafJob {
	path := []Naughty{root}
	cur := root
	curBoard := rootBoard.Clone()
	curSide := rootSide
	depth := 0

	for {
		n := t.node(cur)
		if term, v := n.isTerminal(); term {
			return leafJob{path: path, b: curBoard, mover: curSide, terminal: true, termVal: v}
		}
		if !n.isExpanded() {
			return leafJob{path: path, b: curBoard, mover: curSide}
		}
		t.ensureWidened(cur, cur == root, fastMode)
		child := t.selectChild(cur, depth)
		if child == nilNode {
			return leafJob{path: path, b: curBoard, mover: curSide}
		}
		childNode := t.node(child)
		move := childNode.move
		curBoard.Place(move, curSide)
		won := board.CheckWin(curBoard, curSide, move)
		curSide = board.Opponent(curSide)
		path = append(path, child)
		cur = child
		depth++

		// TT bootstrap: a child landing on a position this process has
		// already analyzed starts from the recorded mean instead of
		// zero, so common transpositions aren't relitigated from
		// scratch.
		if entry, _ := t.tt.Lookup(curBoard, curSide); entry != nil {
			entry.mu.Lock()
			meanValue := entry.value
			entry.mu.Unlock()
			childNode.bootstrap(meanValue, t.cfg.TTBootstrapV0)
		}

		if won {
			t.markTerminal(child, -1)
			return leafJob{path: path, b: curBoard, mover: curSide, terminal: true, termVal: -1}
		}
		if !curBoard.HasEmpty() {
			t.markTerminal(child, 0)
			return leafJob{path: path, b: curBoard, mover: curSide, terminal: true, termVal: 0}
		}
	}
}

func backprop(t *Tree, path []Naughty, leafValue float32) {
	v := leafValue
	for i := len(path) - 1; i >= 0; i-- {
		t.node(path[i]).update(v)
		v = -v
	}
}

// runBatches drives the batched-leaf-evaluation main loop until the
// deadline or an early stop condition is reached.
func runBatches(t *Tree, root Naughty, rootBoard *board.Board, rootSide board.Stone, deadline time.Time, fastMode bool) error {
	batchSize := t.cfg.batchSize(fastMode)
	for time.Now().Before(deadline) {
		if t.cfg.MaxTreeNodes > 0 && t.size() >= t.cfg.MaxTreeNodes {
			t.log.Printf("node cap %d reached, stopping", t.cfg.MaxTreeNodes)
			break
		}
		jobs := make([]leafJob, 0, batchSize)
		for i := 0; i < batchSize; i++ {
			jobs = append(jobs, collectLeaf(t, root, rootBoard, rootSide, fastMode))
		}

		var evalBoards []*board.Board
		var evalSides []board.Stone
		var evalJobIdx []int
		for i, j := range jobs {
			if j.terminal {
				backprop(t, j.path, j.termVal)
				continue
			}
			evalBoards = append(evalBoards, j.b)
			evalSides = append(evalSides, j.mover)
			evalJobIdx = append(evalJobIdx, i)
		}

		if len(evalBoards) > 0 {
			policies, values, err := t.ev.EvaluateBatch(evalBoards, evalSides)
			if err != nil {
				return errors.Wrap(err, "mcts: batched evaluate")
			}
			for k, idx := range evalJobIdx {
				j := jobs[idx]
				leafID := j.path[len(j.path)-1]
				value, err := t.expandWithPrediction(leafID, j.b, j.mover, leafID == root, fastMode, policies[k], values[k])
				if err != nil {
					return err
				}
				backprop(t, j.path, value)
			}
		}

		if earlyStop(t, root, fastMode) {
			t.log.Printf("early stop at %d root visits", t.node(root).Visits())
			break
		}
	}
	return nil
}

// earlyStop implements the root best-vs-second-best visit ratio rule.
func earlyStop(t *Tree, root Naughty, fastMode bool) bool {
	minVisits, ratio := t.cfg.earlyStop(fastMode)
	kids := t.childrenOf(root)
	if len(kids) < 2 {
		return false
	}
	var best, second uint32
	for _, k := range kids {
		v := t.node(k).Visits()
		if v > best {
			second = best
			best = v
		} else if v > second {
			second = v
		}
	}
	if int(best) < minVisits {
		return false
	}
	if second == 0 {
		return true
	}
	return float32(best) >= ratio*float32(second)
}

// Result is the outcome of one findBestMove call: the chosen move,
// the {move: visits} distribution over the root's children, and the
// search's diagnostic trace for callers that want to dump it.
type Result struct {
	Move        board.Move
	VisitPolicy map[board.Move]int
	Log         string
}

func singleMoveResult(m board.Move) Result {
	return Result{Move: m, VisitPolicy: map[board.Move]int{m: 1}}
}

// FindBestMove is the search engine's top-level entry point: tactical
// solver, then immediate win/block enumeration, then the defensive
// solver, then NN-guided PUCT search. rnd is the caller's own
// seedable PRNG (a worker's, typically); it drives root Dirichlet
// noise so two runs with the same seed and evaluator search
// identically. rnd may be nil, falling back to a
// time-seeded one.
func FindBestMove(b *board.Board, side board.Stone, cfg Config, ev *eval.CachedEvaluator, tt *TranspositionTable, timeBudget time.Duration, fastMode bool, rnd *rand.Rand) (Result, error) {
	if m, ok := solver.FindForcedWin(b, side, timeBudget, fastMode); ok {
		return singleMoveResult(m), nil
	}

	own := threat.Detect(b, side)
	for _, m := range own.ImmediateWins {
		if side == board.Black && board.WouldBeForbidden(b, m) {
			continue
		}
		return singleMoveResult(m), nil
	}
	opp := threat.Detect(b, board.Opponent(side))
	for _, m := range opp.ImmediateWins {
		if side == board.Black && board.WouldBeForbidden(b, m) {
			continue
		}
		if b.At(m.R, m.C) == board.Empty {
			return singleMoveResult(m), nil
		}
	}

	if m, threatened, ok := solver.FindBlock(b, side, timeBudget, fastMode); threatened && ok {
		return singleMoveResult(m), nil
	}

	if len(legalMovesFor(b, side)) == 0 {
		return Result{Move: board.NoMove, VisitPolicy: map[board.Move]int{}}, nil
	}

	tree := newTree(cfg, ev, tt, rnd)
	root := tree.alloc(board.NoMove, 1)
	deadline := time.Now().Add(timeBudget + defaultThinkGrace)

	rootValue, err := tree.expandRoot(root, b, side, fastMode, timeBudget)
	if err != nil {
		return Result{}, err
	}
	// The root's own evaluation counts as its first visit, keeping
	// visits = 1 + sum(children.visits) at every interior node.
	backprop(tree, []Naughty{root}, rootValue)
	tree.log.Printf("root expanded, value=%.3f, %d candidates", rootValue, len(tree.candidates[root]))

	if err := runBatches(tree, root, b, side, deadline, fastMode); err != nil {
		return Result{}, err
	}

	return selectResult(tree, root)
}

// selectResult picks the root child with the maximum visit count,
// ties broken by the ranked-candidate insertion order (stable), and
// builds the {move: visits} policy over every admitted root child. A
// root with no admitted children (the position had no legal moves to
// begin with, e.g. a full board) is not an error; the result is simply
// the no-move sentinel.
func selectResult(t *Tree, root Naughty) (Result, error) {
	kids := t.childrenOf(root)
	if len(kids) == 0 {
		return Result{Move: board.NoMove, VisitPolicy: map[board.Move]int{}}, nil
	}
	visitPolicy := make(map[board.Move]int, len(kids))
	var bestMove board.Move
	var bestVisits uint32 = 0
	first := true
	for _, k := range kids {
		n := t.node(k)
		v := n.Visits()
		visitPolicy[n.move] = int(v)
		if first || v > bestVisits {
			bestVisits = v
			bestMove = n.move
			first = false
		}
	}
	t.log.Printf("best move (%d,%d) with %d visits over %d children", bestMove.R, bestMove.C, bestVisits, len(kids))
	return Result{Move: bestMove, VisitPolicy: visitPolicy, Log: t.logBuf.String()}, nil
}
