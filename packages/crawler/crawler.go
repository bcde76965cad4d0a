package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"gradcafe/packages/metrics"
)

type FailureKind string

const (
	KindNetwork FailureKind = "network"
	KindStatus  FailureKind = "status"
	KindDecode  FailureKind = "decode"
)

// FetchError is the only error Fetch returns.
type FetchError struct {
	URL  string
	Kind FailureKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher returns the decoded text of one page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type Crawler struct {
	client *http.Client
}

func New(timeout time.Duration) *Crawler {
	return &Crawler{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch issues a single GET. Failures are logged and returned as *FetchError;
// there is no retry.
func (c *Crawler) Fetch(ctx context.Context, rawURL string) (string, error) {
	body, err := c.fetch(ctx, rawURL)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			metrics.FetchFailures.WithLabelValues(string(fe.Kind)).Inc()
		}
		slog.Warn("Page fetch failed", "url", rawURL, "error", err)
		return "", err
	}
	return body, nil
}

func (c *Crawler) fetch(ctx context.Context, rawURL string) (string, error) {
	slog.Debug("Fetching page", "url", rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Kind: KindNetwork, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{URL: rawURL, Kind: KindStatus, Err: fmt.Errorf("bad status code: %d", resp.StatusCode)}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: rawURL, Kind: KindNetwork, Err: err}
	}
	if !utf8.Valid(bodyBytes) {
		return "", &FetchError{URL: rawURL, Kind: KindDecode, Err: errors.New("body is not valid utf-8")}
	}
	return string(bodyBytes), nil
}
