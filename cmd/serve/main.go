package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/alphabeth/renju/config"
	"github.com/alphabeth/renju/mcts"
	"github.com/alphabeth/renju/model"
	"github.com/alphabeth/renju/server"
)

var (
	addr     = flag.String("addr", ":8080", "listen address")
	bookPath = flag.String("book", "", "path to a preloaded opening book JSON file (optional)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("serve: load config: %s", err)
	}

	store := model.NewStore(cfg.ModelPath, cfg.ModelURL, model.UniformFactory(cfg.BoardSize))
	if err := store.Bootstrap(); err != nil {
		log.Fatalf("serve: bootstrap model: %s", err)
	}

	tt, err := mcts.NewTranspositionTable(cfg.TTCapacity)
	if err != nil {
		log.Fatalf("serve: build transposition table: %s", err)
	}

	var book *server.Book
	if *bookPath != "" {
		book, err = server.LoadBook(*bookPath)
		if err != nil {
			log.Fatalf("serve: load opening book: %s", err)
		}
	}

	srv := server.New(cfg, store, tt, book, log.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go srv.WatchModel(ctx)

	log.Printf("serve: listening on %s", *addr)
	httpSrv := &http.Server{Addr: *addr, Handler: srv.Router()}
	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("serve: listen: %s", err)
	}
}
