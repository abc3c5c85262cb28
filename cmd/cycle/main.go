package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/cycle"
	"github.com/alphabeth/renju/model"
)

var replayDir = flag.String("replay_dir", "replay", "directory self-play batches are flushed into")

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("cycle: load config: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl := cycle.New(cfg, model.UniformFactory(cfg.BoardSize), *replayDir, log.Default())
	if err := ctrl.RunLoop(ctx); err != nil {
		log.Fatalf("cycle: run loop: %s", err)
	}
}
