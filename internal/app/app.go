package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trunov/optihub/cmd/migrate"
	"github.com/trunov/optihub/internal/blobstore"
	"github.com/trunov/optihub/internal/config"
	"github.com/trunov/optihub/internal/queue"
	"github.com/trunov/optihub/internal/r2"
	"github.com/trunov/optihub/internal/reconcile"
	"github.com/trunov/optihub/internal/redisholder"
	"github.com/trunov/optihub/internal/repository/storage"
	"github.com/trunov/optihub/internal/stats"
	"github.com/trunov/optihub/internal/transport/handler"
	"github.com/trunov/optihub/internal/transport/router"
	use_case "github.com/trunov/optihub/internal/use-case"
)

type App struct {
	HttpServer *http.Server

	r2Storage *r2.S3
	worker    *queue.Worker
	cancel    context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations)
	if err != nil {
		cancel()
		return nil, err
	}

	repo, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		cancel()
		return nil, err
	}

	holder, err := redisholder.Build(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	rc := holder.Get()
	blobs := blobstore.NewStore("optihub", rc)

	engine := reconcile.New(blobs, repo, cfg.Reconcile.QueueTTL())
	aggregator := stats.New(blobs, repo)

	r2Storage, err := r2.NewStorage(&cfg.R2)
	if err != nil {
		cancel()
		return nil, err
	}

	producer := queue.NewProducer(rc, cfg.Rendition.Stream, cfg.Rendition.MaxLen)

	uc := use_case.New(repo, engine, r2Storage, producer)

	worker := queue.NewWorker(rc, cfg.Rendition, r2Storage, uc)
	go func() {
		if err := worker.Start(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[rendition-worker] stopped: %v", err)
		}
	}()

	h := handler.New(uc, aggregator, cfg)
	r := router.NewRouter(h)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return &App{
		HttpServer: s,
		r2Storage:  r2Storage,
		worker:     worker,
		cancel:     cancel,
	}, nil
}

// Run serves until SIGINT/SIGTERM, then drains the upload pool and stops the
// rendition worker.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on %s", a.HttpServer.Addr)
		errCh <- a.HttpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.cancel()
		return err
	case <-sigCh:
		log.Println("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	a.cancel()
	a.r2Storage.Close()

	log.Println("service stopped")
	return nil
}
