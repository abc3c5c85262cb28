// Package orchestrator drives the self-play fleet: it bootstraps the
// production model, spawns a pool of self-play workers against a mix
// of the current production model and past checkpoints, collects
// their sample batches onto a single goroutine, and flushes the
// replay buffer on a timer and at shutdown.
package orchestrator

import (
	"context"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/alphabeth/renju/board"
	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/mcts"
	"github.com/alphabeth/renju/model"
	"github.com/alphabeth/renju/sample"
	"github.com/alphabeth/renju/selfplay"
)

// Orchestrator owns the production model, the past-model opponent
// pool, and the replay buffer every worker ultimately writes into.
type Orchestrator struct {
	Cfg     *config.Config
	Prod    *model.Store
	Factory model.Factory
	Buffer  *sample.Buffer
	TT      *mcts.TranspositionTable
	Logger  *log.Logger

	mu         sync.Mutex
	pastModels []*model.Store
	rng        *rand.Rand
}

// New wires a fresh Orchestrator: a production model Store bound to
// cfg.ModelPath/ModelURL, a shared transposition table, and a replay
// buffer rooted at replayDir.
func New(cfg *config.Config, factory model.Factory, replayDir string, logger *log.Logger) (*Orchestrator, error) {
	tt, err := mcts.NewTranspositionTable(cfg.TTCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "orchestrator: build transposition table")
	}
	buf, err := sample.NewBuffer(replayDir)
	if err != nil {
		return nil, errors.Wrap(err, "orchestrator: build replay buffer")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		Cfg:     cfg,
		Prod:    model.NewStore(cfg.ModelPath, cfg.ModelURL, factory),
		Factory: factory,
		Buffer:  buf,
		TT:      tt,
		Logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Bootstrap loads the production model, bootstrapping a
// randomly-initialized one via the factory if it does not yet exist
// on disk, then loads up to MaxPastModels checkpoints from
// PastModelsDir as the opponent pool.
func (o *Orchestrator) Bootstrap() error {
	if err := o.Prod.Bootstrap(); err != nil {
		return errors.Wrap(err, "orchestrator: bootstrap production model")
	}
	return o.loadPastModels()
}

// loadPastModels scans PastModelsDir and loads the most recent
// MaxPastModels checkpoints (by lexicographic name, which the arena's
// prod_<timestamp> snapshot names sort correctly) into memory. Older
// checkpoints are left on disk untouched; retention is an operations
// concern.
func (o *Orchestrator) loadPastModels() error {
	entries, err := os.ReadDir(o.Cfg.PastModelsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "orchestrator: list past models")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) > o.Cfg.MaxPastModels {
		names = names[len(names)-o.Cfg.MaxPastModels:]
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.pastModels = o.pastModels[:0]
	for _, name := range names {
		path := filepath.Join(o.Cfg.PastModelsDir, name)
		s := model.NewStore(path, "", o.Factory)
		if err := s.Load(); err != nil {
			o.Logger.Printf("orchestrator: skipping past model %s: %v", path, err)
			continue
		}
		o.pastModels = append(o.pastModels, s)
	}
	return nil
}

// opponent picks the opponent Store for one game: with probability
// PastModelProbability a uniformly-random past checkpoint, otherwise
// the production model itself.
func (o *Orchestrator) opponent() *model.Store {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pastModels) > 0 && o.rng.Float64() < o.Cfg.PastModelProbability {
		return o.pastModels[o.rng.Intn(len(o.pastModels))]
	}
	return o.Prod
}

// Stats are one Run's self-play counters, reported back so the cycle
// controller can fold them into the status document.
type Stats struct {
	Games   int `json:"games"`
	Samples int `json:"samples"`
}

func (s *Stats) add(res selfplay.GameResult) {
	s.Games++
	s.Samples += len(res.Samples)
}

// Run spawns NumWorkers self-play workers and runs them for
// SelfPlayDurationMs, collecting sample batches on a single goroutine
// and flushing the replay buffer every SaveIntervalMs and once more at
// shutdown. The returned Stats count every completed game, including
// those that finished after the deadline.
func (o *Orchestrator) Run(ctx context.Context) (Stats, error) {
	deadline := time.Now().Add(o.Cfg.SelfPlayDuration())
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	results := make(chan selfplay.GameResult, o.Cfg.NumWorkers)
	var wg sync.WaitGroup
	for i := 0; i < o.Cfg.NumWorkers; i++ {
		wg.Add(1)
		go o.runWorker(runCtx, &wg, i, results)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(o.Cfg.SaveInterval())
	defer ticker.Stop()

	var stats Stats
	for {
		select {
		case res, ok := <-results:
			if !ok {
				continue
			}
			stats.add(res)
			o.Buffer.Append(res.Samples...)
		case <-ticker.C:
			o.flush()
		case <-done:
			o.drain(results, &stats)
			if _, _, err := o.Buffer.Flush(); err != nil {
				return stats, errors.Wrap(err, "orchestrator: final flush")
			}
			return stats, nil
		}
	}
}

// drain empties any results the workers delivered between the last
// collector iteration and shutdown.
func (o *Orchestrator) drain(results chan selfplay.GameResult, stats *Stats) {
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return
			}
			stats.add(res)
			o.Buffer.Append(res.Samples...)
		default:
			return
		}
	}
}

func (o *Orchestrator) flush() {
	path, n, err := o.Buffer.Flush()
	if err != nil {
		o.Logger.Printf("orchestrator: flush failed: %v", err)
		return
	}
	if n > 0 {
		o.Logger.Printf("orchestrator: flushed %d samples to %s", n, path)
	}
}

// runWorker restarts a selfplay.Worker on clean game completion until
// runCtx is done; a worker error is logged and that worker slot is not
// respawned.
func (o *Orchestrator) runWorker(runCtx context.Context, wg *sync.WaitGroup, idx int, results chan<- selfplay.GameResult) {
	defer wg.Done()
	w := selfplay.New(workerID(idx), o.Cfg, o.TT, time.Now().UnixNano()+int64(idx))
	defer w.Close()

	for {
		select {
		case <-runCtx.Done():
			return
		default:
		}

		opp := o.opponent()
		ownColor := board.Black
		if idx%2 == 1 {
			ownColor = board.White
		}

		res, err := w.PlayGame(o.Prod, opp, ownColor, o.Cfg.UseSwap2)
		if err != nil {
			o.Logger.Printf("orchestrator: worker %s crashed: %v", w.ID, err)
			return
		}
		// Always deliver: the orchestrator never kills a game in
		// flight, so one that outlived the deadline still counts. The
		// channel holds one slot per worker, so this cannot block past
		// the collector's shutdown drain.
		results <- res
	}
}

func workerID(idx int) string {
	return "selfplay-" + strconv.Itoa(idx)
}
