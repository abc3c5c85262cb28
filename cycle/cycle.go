// Package cycle implements the cycle controller: it runs the pipeline
// stages (self-play, distillation, arena, upload, opening-book import)
// in fixed order, isolating each stage's errors into a status
// document, optionally posting to a webhook, and looping with an
// interval that backs off after an error.
package cycle

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os/exec"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/alphabeth/renju/arena"
	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/mcts"
	"github.com/alphabeth/renju/model"
	"github.com/alphabeth/renju/orchestrator"
)

// Controller drives repeated pipeline cycles against one Config.
type Controller struct {
	Cfg     *config.Config
	Factory model.Factory
	Logger  *log.Logger

	ReplayDir string
	status    *statusFile
	http      *http.Client
}

// New builds a Controller writing its status document to cfg.StatusPath
// and its replay batches under replayDir.
func New(cfg *config.Config, factory model.Factory, replayDir string, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		Cfg:       cfg,
		Factory:   factory,
		Logger:    logger,
		ReplayDir: replayDir,
		status:    newStatusFile(cfg.StatusPath),
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// RunLoop runs cycles until ctx is canceled, Cfg.Forever is false and
// Cfg.PipelineCycles is exhausted, sleeping PipelineIntervalMs between
// clean cycles and OnErrorDelayMs after a cycle with any stage error.
func (c *Controller) RunLoop(ctx context.Context) error {
	cycleNum := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		cycleNum++
		hadError := c.RunOnce(ctx, cycleNum)

		if !c.Cfg.Forever && c.Cfg.PipelineCycles > 0 && cycleNum >= c.Cfg.PipelineCycles {
			return nil
		}

		delay := c.Cfg.PipelineInterval()
		if hadError {
			delay = c.Cfg.OnErrorDelay()
		}
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// RunOnce executes one cycle's stages in fixed order and reports
// whether any stage errored.
func (c *Controller) RunOnce(ctx context.Context, cycleNum int) (hadError bool) {
	var arenaResult *arena.Result
	var errs *multierror.Error

	errs = multierror.Append(errs, c.stage(cycleNum, "self_play", func() error {
		stats, err := c.runSelfPlay(ctx)
		if err != nil {
			return err
		}
		if _, uerr := c.status.update(cycleNum, func(s *Status) {
			s.SelfPlay = &stats
		}); uerr != nil {
			c.Logger.Printf("cycle: update status file: %v", uerr)
		}
		return nil
	}))

	errs = multierror.Append(errs, c.stage(cycleNum, "distillation", func() error {
		return c.runCommand(ctx, c.Cfg.DistillCmd)
	}))

	errs = multierror.Append(errs, c.stage(cycleNum, "arena", func() error {
		res, err := c.runArena()
		if err != nil {
			return err
		}
		arenaResult = &res
		if _, uerr := c.status.update(cycleNum, func(s *Status) {
			s.Arena = arenaResult
		}); uerr != nil {
			c.Logger.Printf("cycle: update status file: %v", uerr)
		}
		return nil
	}))

	if arenaResult != nil && arenaResult.Promoted {
		errs = multierror.Append(errs, c.stage(cycleNum, "upload", func() error {
			return c.runCommand(ctx, c.Cfg.UploadCmd)
		}))
	} else {
		c.setStage(cycleNum, "upload", StageStatus{Status: "skipped"})
	}

	// Opening-book import errors are logged but never fatal or
	// counted toward the error-delay decision: they are
	// recorded in the status file but excluded from errs.
	if err := c.runCommand(ctx, c.Cfg.BookImportCmd); err != nil {
		c.Logger.Printf("cycle: opening-book import failed (non-fatal): %v", err)
		c.setStage(cycleNum, "book_import", StageStatus{Status: "error", Error: err.Error()})
	} else {
		c.setStage(cycleNum, "book_import", StageStatus{Status: "ok"})
	}

	if arenaResult != nil {
		c.nudgeTuning(*arenaResult)
	}

	hadError = errs.ErrorOrNil() != nil
	c.recordLastError(cycleNum, errs.ErrorOrNil())
	return hadError
}

// recordLastError writes the cycle's aggregated stage errors (or
// clears the field on a clean cycle) to the status document's
// top-level lastError.
func (c *Controller) recordLastError(cycleNum int, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if _, updErr := c.status.update(cycleNum, func(s *Status) {
		s.LastError = msg
	}); updErr != nil {
		c.Logger.Printf("cycle: update status file: %v", updErr)
	}
}

func (c *Controller) runSelfPlay(ctx context.Context) (orchestrator.Stats, error) {
	o, err := orchestrator.New(c.Cfg, c.Factory, c.ReplayDir, c.Logger)
	if err != nil {
		return orchestrator.Stats{}, err
	}
	if err := o.Bootstrap(); err != nil {
		return orchestrator.Stats{}, err
	}
	return o.Run(ctx)
}

func (c *Controller) runArena() (arena.Result, error) {
	prod := model.NewStore(c.Cfg.ModelPath, "", c.Factory)
	if err := prod.Load(); err != nil {
		return arena.Result{}, errors.Wrap(err, "cycle: load prod model")
	}
	// The distillation stage (external) is expected to have written a
	// candidate model alongside prod; by convention it lives next to
	// ModelPath with a ".candidate" suffix.
	candidate := model.NewStore(c.Cfg.ModelPath+".candidate", "", c.Factory)
	if err := candidate.Load(); err != nil {
		return arena.Result{}, errors.Wrap(err, "cycle: load candidate model")
	}

	tt, err := mcts.NewTranspositionTable(c.Cfg.TTCapacity)
	if err != nil {
		return arena.Result{}, err
	}
	mctsCfg := c.Cfg.MCTSConfig()
	acfg := arena.Config{
		Games:            c.Cfg.ArenaGames,
		ThinkTime:        c.Cfg.ArenaThinkTime(),
		Threshold:        c.Cfg.ArenaThreshold,
		PromotionEnabled: true,
		UseSwap2:         c.Cfg.UseSwap2,
		PastModelsDir:    c.Cfg.PastModelsDir,
	}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	res, err := arena.Run(candidate, prod, c.Cfg.BoardSize, mctsCfg, tt, acfg, rnd)
	if err != nil {
		return res, err
	}
	if c.Cfg.ArenaResultPath != "" {
		if werr := atomicWriteJSON(c.Cfg.ArenaResultPath, res); werr != nil {
			c.Logger.Printf("cycle: write arena result: %v", werr)
		}
	}
	return res, nil
}

func (c *Controller) runCommand(ctx context.Context, cmdline string) error {
	if cmdline == "" {
		return nil
	}
	args := splitArgs(cmdline)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "cycle: command %q failed: %s", cmdline, out)
	}
	return nil
}

func splitArgs(s string) []string {
	var args []string
	cur := ""
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if cur != "" {
				args = append(args, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		args = append(args, cur)
	}
	return args
}

// nudgeTuning applies the arena winrate signal to the persisted
// tuning overrides, for pickup by the next cycle's search.
func (c *Controller) nudgeTuning(res arena.Result) {
	t, err := config.LoadTuningOverrides(c.Cfg.TuningPath)
	if err != nil {
		c.Logger.Printf("cycle: load tuning overrides: %v", err)
		return
	}
	t = t.Nudge(res.Winrate, res.Threshold)
	if err := config.SaveTuningOverrides(c.Cfg.TuningPath, t); err != nil {
		c.Logger.Printf("cycle: save tuning overrides: %v", err)
	}
}

// stage runs fn, records its status transition, posts to the webhook
// if configured, and returns fn's error (wrapped with the stage name)
// for the caller to aggregate.
func (c *Controller) stage(cycleNum int, name string, fn func() error) error {
	start := nowMs()
	c.setStage(cycleNum, name, StageStatus{Status: "running", StartedAt: start})
	c.postWebhook(name, "running", "")

	err := fn()
	st := StageStatus{Status: "ok", StartedAt: start, FinishedAt: nowMs()}
	if err != nil {
		st.Status = "error"
		st.Error = err.Error()
		c.Logger.Printf("cycle: stage %s failed: %v", name, err)
	}
	c.setStage(cycleNum, name, st)
	c.postWebhook(name, st.Status, st.Error)
	if err != nil {
		return errors.Wrapf(err, "stage %s", name)
	}
	return nil
}

func (c *Controller) setStage(cycleNum int, name string, st StageStatus) {
	if _, err := c.status.update(cycleNum, func(s *Status) {
		s.Stages[name] = st
	}); err != nil {
		c.Logger.Printf("cycle: update status file: %v", err)
	}
}

// WebhookPayload is the JSON body posted to WebhookURL on every stage
// transition; a subset of the status document.
type WebhookPayload struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (c *Controller) postWebhook(stage, status, errMsg string) {
	if c.Cfg.WebhookURL == "" {
		return
	}
	body, _ := json.Marshal(WebhookPayload{Stage: stage, Status: status, Error: errMsg})
	resp, err := c.http.Post(c.Cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		c.Logger.Printf("cycle: webhook post failed: %v", err)
		return
	}
	resp.Body.Close()
}
