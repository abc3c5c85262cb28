package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/model"
	"github.com/alphabeth/renju/orchestrator"
)

var (
	replayDir = flag.String("replay_dir", "replay", "directory self-play batches are flushed into")
	modelURL  = flag.String("model_url", "", "override MODEL_URL: remote model to bootstrap/reload from")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("selfplay: load config: %s", err)
	}
	if *modelURL != "" {
		cfg.ModelURL = *modelURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, err := orchestrator.New(cfg, model.UniformFactory(cfg.BoardSize), *replayDir, log.Default())
	if err != nil {
		log.Fatalf("selfplay: build orchestrator: %s", err)
	}
	if err := orch.Bootstrap(); err != nil {
		log.Fatalf("selfplay: bootstrap: %s", err)
	}

	log.Printf("selfplay: running %d workers for %s", cfg.NumWorkers, cfg.SelfPlayDuration())
	stats, err := orch.Run(ctx)
	if err != nil {
		log.Fatalf("selfplay: run: %s", err)
	}
	log.Printf("selfplay: done, %d games, %d samples", stats.Games, stats.Samples)
}
