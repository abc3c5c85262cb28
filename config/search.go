package config

import "github.com/alphabeth/renju/mcts"

// MCTSConfig materializes an mcts.Config from the environment-driven
// settings, starting from the search engine's own defaults so a
// partially-populated Config (tests build these by hand) still yields
// a usable search. It then layers on the persisted tuning overrides
// from TuningPath, which is how the cycle controller's arena-driven
// nudges reach the next cycle's searches.
func (c *Config) MCTSConfig() mcts.Config {
	m := mcts.DefaultConfig(c.BoardSize)

	setF32(&m.PUCTShallow, c.PUCTShallow)
	setF32(&m.PUCTDeep, c.PUCTDeep)
	setInt(&m.KRootBase, c.KRootBase)
	setInt(&m.KRootStep, c.KRootStep)
	setInt(&m.KRootMax, c.KRootMax)
	setInt(&m.KChildBase, c.KChildBase)
	setInt(&m.KChildStep, c.KChildStep)
	setInt(&m.KChildMax, c.KChildMax)
	setF32(&m.FastModeWideningScale, c.FastModeWideningScale)
	if c.DirichletAlpha > 0 {
		m.DirichletAlpha = c.DirichletAlpha
	}
	setF32(&m.DirichletWeight, c.DirichletEpsilon)
	setInt(&m.BatchSize, c.BatchSize)
	setInt(&m.FastModeBatchSize, c.FastBatchSize)
	setInt(&m.EarlyStopMinVisits, c.EarlyStopMinVisits)
	setInt(&m.FastEarlyStopMinVisits, c.FastEarlyStopMinVisits)
	setF32(&m.EarlyStopRatio, c.EarlyStopRatio)
	setF32(&m.FastEarlyStopRatio, c.FastEarlyStopRatio)

	if c.TuningPath != "" {
		if t, err := LoadTuningOverrides(c.TuningPath); err == nil {
			m.RootOpenFourBoost = float32(t.RootOpenFourBoost)
			m.ChildTTPriorMix = float32(t.ChildTTPriorMix)
			m.RootTTPriorMix = float32(t.RootTTPriorMix)
		}
	}
	return m
}

func setF32(dst *float32, v float64) {
	if v > 0 {
		*dst = float32(v)
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
