// Package config layers spf13/viper over the pipeline's
// environment-variable surface, plus a small YAML tuning-overrides
// file the cycle controller rewrites as it nudges the root open-four
// boost factor and the TT/NN prior mixes between cycles.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the full set of environment-configurable options.
type Config struct {
	BoardSize  int
	NumWorkers int

	ThinkTimeEarlyMs int // <=6 moves
	ThinkTimeMidMs   int // 7-30 moves
	ThinkTimeLateMs  int // after move 30
	ThinkTimeJitter  float64

	// SelfPlayBaseThinkTimeMs is the "base" self-play workers scale by
	// phase (80% at <=6 moves, 120% at 7-30, 100% after), distinct
	// from the inference server's static per-phase fallback above.
	SelfPlayBaseThinkTimeMs int

	ExplorationMoves     int
	SaveIntervalMs       int
	SelfPlayDurationMs   int
	PastModelProbability float64
	PastModelsDir        string
	MaxPastModels        int
	UseSwap2             bool

	ArenaGames       int
	ArenaThreshold   float64
	ArenaThinkTimeMs int

	FastModeWideningScale float64
	DirichletAlpha        float64
	DirichletEpsilon      float64

	PUCTShallow float64
	PUCTDeep    float64

	KRootBase, KRootStep, KRootMax    int
	KChildBase, KChildStep, KChildMax int

	BatchSize     int
	FastBatchSize int

	TTCapacity              int64
	PredictionCacheCapacity int64

	EarlyStopMinVisits     int
	FastEarlyStopMinVisits int
	EarlyStopRatio         float64
	FastEarlyStopRatio     float64

	ModelPath  string
	ModelURL   string
	StatusPath string

	// ArenaResultPath is where the cycle controller persists the
	// arena_result record after each arena stage.
	ArenaResultPath string

	PipelineIntervalMs int
	OnErrorDelayMs     int
	PipelineCycles     int
	Forever            bool

	ModelCheckIntervalMs int

	// TimeControl is the "base+increment" fallback clock (minutes +
	// seconds) the inference server approximates a per-move think time
	// from when no explicit time fields are given.
	TimeControl string

	WebhookURL string

	// DistillCmd, UploadCmd, and BookImportCmd are external subprocess
	// invocations for the cycle controller's corresponding stages
	//; empty means the stage is a no-op.
	DistillCmd    string
	UploadCmd     string
	BookImportCmd string

	TuningPath string
}

func defaults() map[string]any {
	return map[string]any{
		"board_size":  15,
		"num_workers": 4,

		"think_time_early_ms":          1500,
		"think_time_mid_ms":            3000,
		"think_time_late_ms":           1500,
		"think_time_jitter":            0.1,
		"self_play_base_think_time_ms": 3000,

		"exploration_moves":      15,
		"save_interval_ms":       30_000,
		"self_play_duration_ms":  30 * 60 * 1000,
		"past_model_probability": 0.5,
		"past_models_dir":        "past_models",
		"max_past_models":        20,
		"use_swap2":              true,

		"arena_games":         200,
		"arena_threshold":     0.60,
		"arena_think_time_ms": 3000,

		"fast_mode_widening_scale": 0.6,
		"dirichlet_alpha":          0.12,
		"dirichlet_epsilon":        0.25,

		"puct_shallow": 2.0,
		"puct_deep":    1.5,

		"k_root_base": 24, "k_root_step": 12, "k_root_max": 256,
		"k_child_base": 24, "k_child_step": 12, "k_child_max": 128,

		"batch_size":      8,
		"fast_batch_size": 4,

		"tt_capacity":               20000,
		"prediction_cache_capacity": 5000,

		"early_stop_min_visits":      220,
		"fast_early_stop_min_visits": 120,
		"early_stop_ratio":           2.2,
		"fast_early_stop_ratio":      1.8,

		"model_path":        "models/prod.model",
		"model_url":         "",
		"status_path":       "status.json",
		"arena_result_path": "arena_result.json",

		"pipeline_interval_ms": 0,
		"on_error_delay_ms":    60_000,
		"pipeline_cycles":      0,
		"forever":              true,

		"model_check_interval_ms": 5 * 60 * 1000,
		"time_control":            "5+1",

		"webhook_url": "",

		"distill_cmd":     "",
		"upload_cmd":      "",
		"book_import_cmd": "",
		"tuning_path":     "tuning.yaml",
	}
}

// Load reads every option from the environment (case-insensitive,
// e.g. BOARD_SIZE), falling back to the defaults above.
func Load() (*Config, error) {
	vp := viper.New()
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	for k, v := range defaults() {
		vp.SetDefault(k, v)
	}

	c := &Config{
		BoardSize:  vp.GetInt("board_size"),
		NumWorkers: vp.GetInt("num_workers"),

		ThinkTimeEarlyMs:        vp.GetInt("think_time_early_ms"),
		ThinkTimeMidMs:          vp.GetInt("think_time_mid_ms"),
		ThinkTimeLateMs:         vp.GetInt("think_time_late_ms"),
		ThinkTimeJitter:         vp.GetFloat64("think_time_jitter"),
		SelfPlayBaseThinkTimeMs: vp.GetInt("self_play_base_think_time_ms"),

		ExplorationMoves:     vp.GetInt("exploration_moves"),
		SaveIntervalMs:       vp.GetInt("save_interval_ms"),
		SelfPlayDurationMs:   vp.GetInt("self_play_duration_ms"),
		PastModelProbability: vp.GetFloat64("past_model_probability"),
		PastModelsDir:        vp.GetString("past_models_dir"),
		MaxPastModels:        vp.GetInt("max_past_models"),
		UseSwap2:             vp.GetBool("use_swap2"),

		ArenaGames:       vp.GetInt("arena_games"),
		ArenaThreshold:   vp.GetFloat64("arena_threshold"),
		ArenaThinkTimeMs: vp.GetInt("arena_think_time_ms"),

		FastModeWideningScale: vp.GetFloat64("fast_mode_widening_scale"),
		DirichletAlpha:        vp.GetFloat64("dirichlet_alpha"),
		DirichletEpsilon:      vp.GetFloat64("dirichlet_epsilon"),

		PUCTShallow: vp.GetFloat64("puct_shallow"),
		PUCTDeep:    vp.GetFloat64("puct_deep"),

		KRootBase: vp.GetInt("k_root_base"), KRootStep: vp.GetInt("k_root_step"), KRootMax: vp.GetInt("k_root_max"),
		KChildBase: vp.GetInt("k_child_base"), KChildStep: vp.GetInt("k_child_step"), KChildMax: vp.GetInt("k_child_max"),

		BatchSize:     vp.GetInt("batch_size"),
		FastBatchSize: vp.GetInt("fast_batch_size"),

		TTCapacity:              vp.GetInt64("tt_capacity"),
		PredictionCacheCapacity: vp.GetInt64("prediction_cache_capacity"),

		EarlyStopMinVisits:     vp.GetInt("early_stop_min_visits"),
		FastEarlyStopMinVisits: vp.GetInt("fast_early_stop_min_visits"),
		EarlyStopRatio:         vp.GetFloat64("early_stop_ratio"),
		FastEarlyStopRatio:     vp.GetFloat64("fast_early_stop_ratio"),

		ModelPath:       vp.GetString("model_path"),
		ModelURL:        vp.GetString("model_url"),
		StatusPath:      vp.GetString("status_path"),
		ArenaResultPath: vp.GetString("arena_result_path"),

		PipelineIntervalMs: vp.GetInt("pipeline_interval_ms"),
		OnErrorDelayMs:     vp.GetInt("on_error_delay_ms"),
		PipelineCycles:     vp.GetInt("pipeline_cycles"),
		Forever:            vp.GetBool("forever"),

		ModelCheckIntervalMs: vp.GetInt("model_check_interval_ms"),
		TimeControl:          vp.GetString("time_control"),

		WebhookURL: vp.GetString("webhook_url"),

		DistillCmd:    vp.GetString("distill_cmd"),
		UploadCmd:     vp.GetString("upload_cmd"),
		BookImportCmd: vp.GetString("book_import_cmd"),
		TuningPath:    vp.GetString("tuning_path"),
	}
	if !c.IsValid() {
		return nil, errors.New("config: invalid configuration loaded from environment")
	}
	return c, nil
}

func (c *Config) IsValid() bool {
	return c.BoardSize > 0 && c.NumWorkers > 0 && c.BatchSize > 0 &&
		c.ArenaGames > 0 && c.ArenaThreshold > 0 && c.ArenaThreshold <= 1 &&
		c.TTCapacity > 0 && c.PredictionCacheCapacity > 0
}

// SaveInterval and friends expose the millisecond fields as durations
// for callers that want time.Duration directly.
func (c *Config) SaveInterval() time.Duration {
	return time.Duration(c.SaveIntervalMs) * time.Millisecond
}
func (c *Config) SelfPlayDuration() time.Duration {
	return time.Duration(c.SelfPlayDurationMs) * time.Millisecond
}
func (c *Config) ArenaThinkTime() time.Duration {
	return time.Duration(c.ArenaThinkTimeMs) * time.Millisecond
}
func (c *Config) ModelCheckInterval() time.Duration {
	return time.Duration(c.ModelCheckIntervalMs) * time.Millisecond
}
func (c *Config) OnErrorDelay() time.Duration {
	return time.Duration(c.OnErrorDelayMs) * time.Millisecond
}
func (c *Config) PipelineInterval() time.Duration {
	return time.Duration(c.PipelineIntervalMs) * time.Millisecond
}
