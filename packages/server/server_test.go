package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gradcafe/packages/analysis"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct {
	mu   sync.Mutex
	runs int
	last []analysis.Result
}

func (a *fakeAnalyzer) Run(ctx context.Context) ([]analysis.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs++
	a.last = []analysis.Result{{Question: "count", Answer: 3.0}}
	return a.last, nil
}

func (a *fakeAnalyzer) Last() []analysis.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// blockingPull starts pulls that only finish when release is closed.
type blockingPull struct {
	mu      sync.Mutex
	starts  int
	release chan struct{}
}

func newBlockingPull() *blockingPull {
	return &blockingPull{release: make(chan struct{})}
}

func (p *blockingPull) start(ctx context.Context) (<-chan error, error) {
	p.mu.Lock()
	p.starts++
	p.mu.Unlock()
	done := make(chan error, 1)
	go func() {
		<-p.release
		done <- nil
	}()
	return done, nil
}

func do(t *testing.T, h http.Handler, method, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if rec.Code != http.StatusFound {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec.Code, body
}

func TestPullDataRejectsSecondStart(t *testing.T) {
	pull := newBlockingPull()
	state := &PullState{}
	h := New(context.Background(), state, pull.start, &fakeAnalyzer{}).Handler()

	code, body := do(t, h, http.MethodPost, "/pull-data")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["ok"])

	code, body = do(t, h, http.MethodPost, "/pull-data")
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, true, body["busy"])

	code, body = do(t, h, http.MethodGet, "/pull-status")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["running"])

	code, _ = do(t, h, http.MethodPost, "/update-analysis")
	require.Equal(t, http.StatusConflict, code)

	close(pull.release)
	require.Eventually(t, func() bool { return !state.Running() }, time.Second, 5*time.Millisecond)

	code, body = do(t, h, http.MethodGet, "/pull-status")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, body["running"])
	require.Equal(t, 1, pull.starts)
}

func TestPullDataStartFailure(t *testing.T) {
	state := &PullState{}
	failing := func(ctx context.Context) (<-chan error, error) {
		return nil, errors.New("exec: python: not found")
	}
	h := New(context.Background(), state, failing, &fakeAnalyzer{}).Handler()

	code, body := do(t, h, http.MethodPost, "/pull-data")
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, false, body["ok"])
	require.False(t, state.Running())
}

func TestConcurrentPullRequestsStartOnce(t *testing.T) {
	pull := newBlockingPull()
	defer close(pull.release)
	h := New(context.Background(), &PullState{}, pull.start, &fakeAnalyzer{}).Handler()

	const n = 20
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pull-data", nil))
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	ok, busy := 0, 0
	for c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			busy++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, busy)
	require.Equal(t, 1, pull.starts)
}

func TestAnalysisRoutes(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	h := New(context.Background(), &PullState{}, newBlockingPull().start, analyzer).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/analysis", rec.Header().Get("Location"))

	code, body := do(t, h, http.MethodPost, "/update-analysis")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["ok"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analysis", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var results []analysis.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	require.Equal(t, "count", results[0].Question)
	// served from the last run, not re-queried
	require.Equal(t, 1, analyzer.runs)
}

func TestPullStateTryStart(t *testing.T) {
	var s PullState
	require.True(t, s.TryStart())
	require.False(t, s.TryStart())
	require.True(t, s.Running())
	s.Finish()
	require.False(t, s.Running())
	require.True(t, s.TryStart())
}
