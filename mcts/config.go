// Package mcts implements the PUCT search engine: tactical
// short-circuiting via the solver and threat detector, progressive
// widening, Dirichlet root noise, tactical prior boosting, a
// transposition table, and batched leaf evaluation against an
// eval.Evaluator.
package mcts

import "time"

// Config holds every search tunable. Values come from the environment
// via the config package; DefaultConfig is the hand-tuned baseline.
type Config struct {
	// PUCT exploration constant: c_puct(depth) = PUCTShallow for
	// depth < PUCTDepthCutoff, else PUCTDeep.
	PUCTShallow     float32
	PUCTDeep        float32
	PUCTDepthCutoff int

	// Progressive widening, root and child.
	KRootBase, KRootStep, KRootMax    int
	KChildBase, KChildStep, KChildMax int
	FastModeWideningScale             float32 // ~0.6

	// Dirichlet root noise.
	DirichletAlpha  float64
	DirichletWeight float32

	// TT/NN prior blend weight, child and root.
	ChildTTPriorMix float32
	RootTTPriorMix  float32
	TTBootstrapV0   int

	// RootOpenFourBoost is the one tactical-boost factor the cycle
	// controller's tuning feedback is allowed to nudge between cycles;
	// the remaining factors are fixed (boost.go).
	RootOpenFourBoost float32

	// Batched leaf evaluation.
	BatchSize         int
	FastModeBatchSize int

	// Early stop.
	EarlyStopMinVisits     int
	FastEarlyStopMinVisits int
	EarlyStopRatio         float32
	FastEarlyStopRatio     float32

	// Board geometry; early-opening phase is stones <= max(8, N/2).
	BoardSize int

	MaxTreeNodes int
}

func DefaultConfig(boardSize int) Config {
	return Config{
		PUCTShallow:     2.0,
		PUCTDeep:        1.5,
		PUCTDepthCutoff: 20,

		KRootBase: 24, KRootStep: 12, KRootMax: 256,
		KChildBase: 24, KChildStep: 12, KChildMax: 128,
		FastModeWideningScale: 0.6,

		DirichletAlpha:  0.12,
		DirichletWeight: 0.25,

		ChildTTPriorMix: 0.35,
		RootTTPriorMix:  0.20,
		TTBootstrapV0:   3,

		RootOpenFourBoost: 1.5,

		BatchSize:         8,
		FastModeBatchSize: 4,

		EarlyStopMinVisits:     220,
		FastEarlyStopMinVisits: 120,
		EarlyStopRatio:         2.2,
		FastEarlyStopRatio:     1.8,

		BoardSize:    boardSize,
		MaxTreeNodes: 2_000_000,
	}
}

func (c Config) IsValid() bool {
	return c.PUCTShallow > 0 && c.PUCTDeep > 0 && c.BatchSize > 0 &&
		c.FastModeBatchSize > 0 && c.BoardSize > 0 && c.KRootMax > 0 && c.KChildMax > 0
}

// earlyOpeningMaxStones is the stone count at or below which root Dirichlet
// noise is mixed in.
func (c Config) earlyOpeningMaxStones() int {
	if c.BoardSize/2 > 8 {
		return c.BoardSize / 2
	}
	return 8
}

func (c Config) puct(depth int) float32 {
	if depth < c.PUCTDepthCutoff {
		return c.PUCTShallow
	}
	return c.PUCTDeep
}

func (c Config) widening(base, step, max int, visits uint32, fastMode bool) int {
	w := base + step*isqrt(int(visits))
	if w > max {
		w = max
	}
	if fastMode {
		w = int(float32(w) * c.FastModeWideningScale)
	}
	if w < 1 {
		w = 1
	}
	return w
}

func (c Config) batchSize(fastMode bool) int {
	if fastMode {
		return c.FastModeBatchSize
	}
	return c.BatchSize
}

func (c Config) earlyStop(fastMode bool) (minVisits int, ratio float32) {
	if fastMode {
		return c.FastEarlyStopMinVisits, c.FastEarlyStopRatio
	}
	return c.EarlyStopMinVisits, c.EarlyStopRatio
}

func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	r := 0
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}

// defaultThinkGrace is the small grace period findBestMove is allowed
// past its nominal time budget to finish an in-flight batch.
const defaultThinkGrace = 50 * time.Millisecond
