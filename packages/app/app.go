// Package app wires the pipeline components from configuration. Every binary
// builds its dependencies through here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gradcafe/packages/cleaner"
	"gradcafe/packages/config"
	"gradcafe/packages/crawler"
	"gradcafe/packages/db"
	"gradcafe/packages/parser"
	"gradcafe/packages/store"
	"gradcafe/packages/worker"

	"github.com/redis/go-redis/v9"
)

type App struct {
	Config  config.Config
	Storage *db.Storage
	Cleaner *cleaner.Cleaner
	Worker  *worker.Worker

	redis *redis.Client
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	storage, err := db.New(ctx, cfg.DatabaseURL, cfg.TableName)
	if err != nil {
		return nil, err
	}

	p, err := parser.New(cfg.BaseURL)
	if err != nil {
		storage.Close()
		return nil, err
	}

	a := &App{Config: cfg, Storage: storage}

	var fetcher crawler.Fetcher = crawler.New(cfg.FetchTimeout)
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Warn("Redis unavailable, detail cache disabled", "addr", cfg.RedisAddr, "error", err)
			_ = a.redis.Close()
			a.redis = nil
		} else {
			slog.Info("Detail page cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.DetailCacheTTL)
			fetcher = crawler.NewCachedFetcher(fetcher, crawler.NewRedisCache(a.redis), cfg.DetailCacheTTL)
		}
	}

	a.Cleaner = cleaner.New(cleaner.Config{
		Command: cfg.CleanerCommand,
		Script:  cfg.CleanerScript,
		Input:   cfg.DataFile,
		Output:  cfg.CleanedFile,
	})

	a.Worker = worker.New(
		worker.Config{BaseURL: cfg.BaseURL, Budget: cfg.PullBudget, CleanedFile: cfg.CleanedFile},
		fetcher,
		p,
		store.New(cfg.DataFile),
		a.Cleaner,
		storage,
	)
	return a, nil
}

// StartPull checks the cleaner can run and then pulls in the background.
func (a *App) StartPull(ctx context.Context) (<-chan error, error) {
	if err := a.Cleaner.Check(); err != nil {
		return nil, fmt.Errorf("pull not started: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := a.Worker.Pull(ctx)
		done <- err
	}()
	return done, nil
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.Storage.Close()
}
