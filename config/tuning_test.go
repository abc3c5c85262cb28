package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTuningOverridesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")

	got, err := LoadTuningOverrides(path)
	require.NoError(t, err)
	require.Equal(t, DefaultTuningOverrides(), got)

	nudged := got.Nudge(0.75, 0.60)
	require.NoError(t, SaveTuningOverrides(path, nudged))

	reloaded, err := LoadTuningOverrides(path)
	require.NoError(t, err)
	require.Equal(t, nudged, reloaded)
	require.Greater(t, reloaded.RootOpenFourBoost, got.RootOpenFourBoost)
}

func TestMCTSConfigPicksUpTuningOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, SaveTuningOverrides(path, TuningOverrides{
		RootOpenFourBoost: 1.4,
		ChildTTPriorMix:   0.5,
		RootTTPriorMix:    0.1,
	}))

	c := &Config{BoardSize: 15, TuningPath: path}
	m := c.MCTSConfig()
	require.InDelta(t, 1.4, float64(m.RootOpenFourBoost), 1e-6)
	require.InDelta(t, 0.5, float64(m.ChildTTPriorMix), 1e-6)
	require.InDelta(t, 0.1, float64(m.RootTTPriorMix), 1e-6)
	// untouched knobs keep engine defaults
	require.Equal(t, 8, m.BatchSize)
	require.True(t, m.IsValid())
}

func TestMCTSConfigDefaultsWithoutOverridesFile(t *testing.T) {
	c := &Config{BoardSize: 15}
	m := c.MCTSConfig()
	require.True(t, m.IsValid())
	require.Equal(t, 15, m.BoardSize)
}

func TestNudgeClampsToTenPercent(t *testing.T) {
	base := DefaultTuningOverrides()
	nudged := base.Nudge(1.0, 0.0) // delta 1.0 must clamp to +10%
	require.InDelta(t, base.RootOpenFourBoost*1.1, nudged.RootOpenFourBoost, 1e-9)
}
