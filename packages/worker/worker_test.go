package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gradcafe/packages/crawler"
	"gradcafe/packages/domain"
	"gradcafe/packages/parser"
	"gradcafe/packages/store"

	"github.com/stretchr/testify/require"
)

const base = "https://www.thegradcafe.com"

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

// fakeFetcher serves pages by url and advances the clock on every fetch.
type fakeFetcher struct {
	clock *fakeClock
	step  time.Duration
	pages map[string]string
	calls []string
	// runs after each fetch is recorded
	onFetch func()
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.calls = append(f.calls, url)
	f.clock.t = f.clock.t.Add(f.step)
	if f.onFetch != nil {
		f.onFetch()
	}
	if body, ok := f.pages[url]; ok {
		return body, nil
	}
	if strings.Contains(url, "/survey/") {
		return "<html><body><table></table></body></html>", nil
	}
	return "", &crawler.FetchError{URL: url, Kind: crawler.KindStatus, Err: errors.New("404")}
}

type countingCleaner struct {
	calls int
	err   error
}

func (c *countingCleaner) Run(ctx context.Context) error {
	c.calls++
	return c.err
}

type countingLoader struct {
	calls int
	path  string
}

func (l *countingLoader) LoadFile(ctx context.Context, path string) (*domain.LoadReport, error) {
	l.calls++
	l.path = path
	return &domain.LoadReport{}, nil
}

type harness struct {
	worker  *Worker
	fetcher *fakeFetcher
	store   *store.Store
	cleaner *countingCleaner
	loader  *countingLoader
}

func newHarness(t *testing.T, budget time.Duration, pages map[string]string) *harness {
	t.Helper()
	p, err := parser.New(base)
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := &harness{
		fetcher: &fakeFetcher{clock: clock, step: 300 * time.Millisecond, pages: pages},
		store:   store.New(filepath.Join(t.TempDir(), "applicants.json")),
		cleaner: &countingCleaner{},
		loader:  &countingLoader{},
	}
	h.worker = New(Config{BaseURL: base, Budget: budget, CleanedFile: "cleaned.jsonl"}, h.fetcher, p, h.store, h.cleaner, h.loader)
	h.worker.now = clock.now
	return h
}

func TestPullWithNoResultsStillCleansAndLoads(t *testing.T) {
	h := newHarness(t, time.Second, nil)

	report, err := h.worker.Pull(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, report.Pages)
	require.Zero(t, report.Records)
	require.Equal(t, base+"/survey/?page=1", h.fetcher.calls[0])
	require.Equal(t, base+"/survey/?page=4", h.fetcher.calls[3])

	b, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(b))

	require.Equal(t, 1, h.cleaner.calls)
	require.Equal(t, 1, h.loader.calls)
	require.Equal(t, "cleaned.jsonl", h.loader.path)
}

const listing = `<html><body><table>
<tr>
  <td><div class="tw-font-medium">Test University</div></td>
  <td><div class="tw-text-gray-900"><span>Physics</span><span>PhD</span></div></td>
  <td>January 1, 2026</td>
  <td></td>
  <td><a href="/result/1">See More</a></td>
</tr>
<tr>
  <td><div class="tw-font-medium">Other University</div></td>
  <td><div class="tw-text-gray-900"><span>Biology</span></div></td>
  <td>January 2, 2026</td>
  <td></td>
  <td><a href="/result/2">See More</a></td>
</tr>
</table></body></html>`

const detail = `<html><body><ul>
<li class="tw-flex"><span class="tw-font-medium">GRE General:</span><span class="tw-text-gray-400">325</span></li>
</ul></body></html>`

func TestPullEnrichesFromDetailPages(t *testing.T) {
	h := newHarness(t, time.Second, map[string]string{
		base + "/survey/?page=1": listing,
		base + "/result/1":       detail,
	})

	report, err := h.worker.Pull(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Records)

	records, err := h.store.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "1", *records[0].ResultID)
	require.Equal(t, "325.0", *records[0].GREQuant)

	// detail page 2 fails: the listing fields survive, nothing else is set
	require.Equal(t, "2", *records[1].ResultID)
	require.Equal(t, "Other University", *records[1].University)
	require.Nil(t, records[1].GREQuant)
	require.Nil(t, records[1].DegreeType)

	// one page fetch then its details, in order, before page 2
	require.Equal(t, []string{base + "/survey/?page=1", base + "/result/1", base + "/result/2"}, h.fetcher.calls[:3])
}

func TestPullLoadsEvenWhenCleanerFails(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	h.cleaner.err = errors.New("cleaner exited 1")

	report, err := h.worker.Pull(context.Background())
	require.Error(t, err)
	require.Equal(t, h.cleaner.err, report.CleanErr)
	require.Equal(t, 1, h.loader.calls)
}

func TestPullZeroBudgetFetchesNothing(t *testing.T) {
	h := newHarness(t, 0, nil)

	report, err := h.worker.Pull(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Pages)
	require.Empty(t, h.fetcher.calls)
	require.Equal(t, 1, h.cleaner.calls)
	require.Equal(t, 1, h.loader.calls)
}

func TestPullStopsPagingWhenCancelled(t *testing.T) {
	h := newHarness(t, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.fetcher.onFetch = func() {
		if len(h.fetcher.calls) == 2 {
			cancel()
		}
	}

	report, err := h.worker.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Pages)
	require.Len(t, h.fetcher.calls, 2)
	require.Equal(t, 1, h.cleaner.calls)
	require.Equal(t, 1, h.loader.calls)
}
