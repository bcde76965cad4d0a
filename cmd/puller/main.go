package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gradcafe/packages/app"
	"gradcafe/packages/config"
	"gradcafe/packages/logging"
)

func main() {
	budget := flag.Duration("budget", 0, "scraping time budget (defaults to PULL_BUDGET)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("FATAL: Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *budget > 0 {
		cfg.PullBudget = *budget
	}
	logging.Setup(cfg.LogFile, cfg.LogLevel, "gradcafe-puller")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("--- Starting GradCafe Puller ---", "budget", cfg.PullBudget)

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	report, err := a.Worker.Pull(ctx)
	slog.Info("Pull summary",
		"pages", report.Pages,
		"records", report.Records,
		"duration", report.Duration,
	)
	if err != nil {
		slog.Error("Pull finished with errors", "error", err)
		a.Close()
		os.Exit(1)
	}
}
