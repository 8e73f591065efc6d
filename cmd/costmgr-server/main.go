// costmgr-server runs the object storage cost optimization service: it
// scans buckets for savings opportunities, scores each recommendation,
// executes approved actions and can roll executed actions back.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/costmgr/costmgr/internal/api"
	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/executor"
	"github.com/costmgr/costmgr/internal/logger"
	"github.com/costmgr/costmgr/internal/metrics"
	"github.com/costmgr/costmgr/internal/scanner"
	"github.com/costmgr/costmgr/internal/scoring"
	"github.com/costmgr/costmgr/internal/service"
	"github.com/costmgr/costmgr/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize(logger.Config{Level: "info", Format: "json", Output: "stderr"})
		logger.Get().Fatal("load configuration", logger.Error(err))
	}
	logger.Initialize(cfg.Log)
	log := logger.New("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	objects, err := cloud.NewS3Store(ctx, cfg.Cloud)
	if err != nil {
		log.Fatal("initialize object store client", logger.Error(err))
	}

	runs, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatal("open run store", logger.Error(err), logger.String("path", cfg.StorePath))
	}
	defer runs.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := service.New(
		scanner.New(objects, cfg.Scanner, cfg.Pricing),
		scoring.NewScorer(cfg.Pricing, cfg.Scanner.ApprovalSizeBytes),
		executor.New(objects, cfg.Executor),
		executor.NewRollbackManager(objects, cfg.Executor),
		runs,
		metrics.New(registry),
	)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(svc, registry),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", cfg.Server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", logger.Error(err))
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Error(err))
	}
	log.Info("server stopped")
}
