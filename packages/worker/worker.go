// Package worker
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gradcafe/packages/crawler"
	"gradcafe/packages/domain"
	"gradcafe/packages/metrics"
	"gradcafe/packages/parser"
)

// RecordStore is the intermediate file a pull writes into.
type RecordStore interface {
	Reset() error
	Append(records []*domain.ApplicantRecord) error
	Path() string
}

type Cleaner interface {
	Run(ctx context.Context) error
}

type Loader interface {
	LoadFile(ctx context.Context, path string) (*domain.LoadReport, error)
}

type Config struct {
	BaseURL string
	Budget  time.Duration
	// File the cleaner writes and the loader reads.
	CleanedFile string
}

type Worker struct {
	cfg     Config
	fetcher crawler.Fetcher
	parser  *parser.Parser
	store   RecordStore
	cleaner Cleaner
	loader  Loader
	now     func() time.Time
}

func New(cfg Config, fetcher crawler.Fetcher, p *parser.Parser, store RecordStore, cleaner Cleaner, loader Loader) *Worker {
	return &Worker{
		cfg:     cfg,
		fetcher: fetcher,
		parser:  p,
		store:   store,
		cleaner: cleaner,
		loader:  loader,
		now:     time.Now,
	}
}

// Pull runs one time-bounded pull: pages are fetched from 1 upward until the
// budget is spent or ctx is done, then the cleaner and the loader run once
// each. Both are checked between pages only, so a pull may overrun the budget
// by one page.
func (w *Worker) Pull(ctx context.Context) (*domain.PullReport, error) {
	start := w.now()
	report := &domain.PullReport{}
	defer func() {
		report.Duration = w.now().Sub(start)
		metrics.PullDuration.Observe(report.Duration.Seconds())
	}()

	slog.Info("Pull starting", "base_url", w.cfg.BaseURL, "budget", w.cfg.Budget)
	if err := w.store.Reset(); err != nil {
		slog.Error("Failed to reset intermediate store", "path", w.store.Path(), "error", err)
	}

	for page := 1; ctx.Err() == nil && w.now().Sub(start) < w.cfg.Budget; page++ {
		records := w.scrapePage(ctx, page)
		report.Pages++
		report.Records += len(records)
		if err := w.store.Append(records); err != nil {
			slog.Error("Failed to append records", "page", page, "path", w.store.Path(), "error", err)
		}
	}
	slog.Info("Scraping finished", "pages", report.Pages, "records", report.Records)

	if err := w.cleaner.Run(ctx); err != nil {
		slog.Error("Cleaning step failed", "error", err)
		report.CleanErr = err
	}

	load, err := w.loader.LoadFile(ctx, w.cfg.CleanedFile)
	report.Load = load
	if err != nil {
		slog.Error("Load step failed", "path", w.cfg.CleanedFile, "error", err)
		report.LoadErr = err
	} else {
		slog.Info("Pull complete", "inserted", load.Inserted, "skipped", load.Skipped, "bad_rows", len(load.BadRows))
	}

	return report, errors.Join(report.CleanErr, report.LoadErr)
}

// scrapePage fetches and parses one listing page and enriches every result
// from its detail page, one at a time. A failed listing fetch yields no
// records; a failed detail fetch leaves that record as the listing had it.
func (w *Worker) scrapePage(ctx context.Context, page int) []*domain.ApplicantRecord {
	pageURL := fmt.Sprintf("%s/survey/?page=%d", w.cfg.BaseURL, page)
	html, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		slog.Warn("Listing page unavailable", "page", page, "url", pageURL, "error", err)
		return nil
	}
	metrics.PagesScraped.Inc()

	links := w.parser.ParseListing(html)
	if len(links) == 0 {
		slog.Info("No results on page", "page", page)
		return nil
	}

	records := make([]*domain.ApplicantRecord, 0, len(links))
	for _, link := range links {
		detail, err := w.fetcher.Fetch(ctx, link.DetailURL)
		if err != nil {
			slog.Warn("Detail page unavailable", "result_id", link.Record.ID(), "url", link.DetailURL, "error", err)
		} else {
			w.parser.ParseDetail(detail, link.Record)
		}
		records = append(records, link.Record)
	}
	metrics.RecordsScraped.Add(float64(len(records)))
	slog.Info("Scraped page", "page", page, "records", len(records))
	return records
}
