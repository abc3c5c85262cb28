package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TuningOverrides holds the values the cycle controller is allowed to
// nudge between cycles based on arena results: the root open-four
// boost factor and the TT/NN prior mixes. The other tactical boost
// factors are fixed and are not part of this file. Persisted as YAML so
// later cycles (and operators) can inspect and hand-edit it.
type TuningOverrides struct {
	RootOpenFourBoost float64 `yaml:"root_open_four_boost"`
	ChildTTPriorMix   float64 `yaml:"child_tt_prior_mix"`
	RootTTPriorMix    float64 `yaml:"root_tt_prior_mix"`
}

func DefaultTuningOverrides() TuningOverrides {
	return TuningOverrides{
		RootOpenFourBoost: 1.5,
		ChildTTPriorMix:   0.35,
		RootTTPriorMix:    0.20,
	}
}

// LoadTuningOverrides reads path, returning defaults if it doesn't
// exist yet.
func LoadTuningOverrides(path string) (TuningOverrides, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultTuningOverrides(), nil
	}
	if err != nil {
		return TuningOverrides{}, errors.Wrap(err, "config: read tuning overrides")
	}
	var t TuningOverrides
	if err := yaml.Unmarshal(b, &t); err != nil {
		return TuningOverrides{}, errors.Wrap(err, "config: parse tuning overrides")
	}
	return t, nil
}

// SaveTuningOverrides writes t to path.
func SaveTuningOverrides(path string, t TuningOverrides) error {
	b, err := yaml.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "config: marshal tuning overrides")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "config: write tuning overrides")
	}
	return nil
}

// Nudge adjusts t toward a winrate signal, proportional to
// (winrate-threshold), clamped to ±10% for multiplicative factors and
// to [0, 0.6] for the TT/NN mix.
func (t TuningOverrides) Nudge(winrate, threshold float64) TuningOverrides {
	delta := winrate - threshold
	step := clamp(delta, -0.10, 0.10)

	out := t
	out.RootOpenFourBoost = t.RootOpenFourBoost * (1 + step) // step already clamped to +/-10%
	out.ChildTTPriorMix = clamp(t.ChildTTPriorMix+step*0.1, 0, 0.6)
	out.RootTTPriorMix = clamp(t.RootTTPriorMix+step*0.1, 0, 0.6)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
