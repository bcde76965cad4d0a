package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gradcafe/packages/analysis"
	"gradcafe/packages/app"
	"gradcafe/packages/config"
	"gradcafe/packages/logging"
	"gradcafe/packages/metrics"
	"gradcafe/packages/server"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("FATAL: Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogFile, cfg.LogLevel, "gradcafe")
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("--- Starting GradCafe Service ---", "http", cfg.HTTPAddr, "metrics", cfg.MetricsAddr)

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	catalog, err := analysis.ReadCatalog(cfg.QueryCatalog)
	if err != nil {
		slog.Error("Failed to read query catalog", "path", cfg.QueryCatalog, "error", err)
		a.Close()
		os.Exit(1)
	}
	runner := analysis.NewRunner(a.Storage.DB, catalog, a.Storage.Table())
	if err := a.Storage.EnsureTable(ctx); err != nil {
		slog.Warn("Could not prepare table", "error", err)
	}

	srv := server.New(ctx, &server.PullState{}, a.StartPull, runner)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return metrics.ExposeMetrics(gCtx, cfg.MetricsAddr) })
	g.Go(func() error { return srv.ListenAndServe(gCtx, cfg.HTTPAddr) })

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
	slog.Info("Shutdown signal received. Exiting...")
}
