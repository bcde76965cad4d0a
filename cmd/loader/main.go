package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gradcafe/packages/config"
	"gradcafe/packages/db"
	"gradcafe/packages/logging"
)

func main() {
	file := flag.String("file", "", "cleaned JSONL file to load (defaults to CLEANED_FILE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("FATAL: Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogFile, cfg.LogLevel, "gradcafe-loader")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := cfg.CleanedFile
	if *file != "" {
		path = *file
	}
	slog.Info("--- Starting GradCafe Loader ---", "file", path, "table", cfg.TableName)

	storage, err := db.New(ctx, cfg.DatabaseURL, cfg.TableName)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	report, err := storage.LoadFile(ctx, path)
	if err != nil {
		slog.Error("Load failed", "file", path, "error", err)
		storage.Close()
		os.Exit(1)
	}

	total, err := storage.RowCount(ctx)
	if err != nil {
		slog.Warn("Could not count rows", "error", err)
	}
	for _, bad := range report.BadRows {
		slog.Warn("Bad row", "url", bad.URL, "field", bad.Field, "error", bad.Error)
	}
	slog.Info("Load complete",
		"read", report.Read,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"bad_rows", len(report.BadRows),
		"table_rows", total,
	)
}
