package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := New(time.Second).Fetch(context.Background(), srv.URL+"/survey/?page=1")
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", body)
}

func TestFetchFailureKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/binary":
			_, _ = w.Write([]byte{0xff, 0xfe, 0xfd})
		}
	}))
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	defer srv.Close()

	testCases := []struct {
		url  string
		kind FailureKind
	}{
		{url: srv.URL + "/missing", kind: KindStatus},
		{url: srv.URL + "/binary", kind: KindDecode},
		{url: closedURL + "/gone", kind: KindNetwork},
	}

	c := New(time.Second)
	for _, test := range testCases {
		body, err := c.Fetch(context.Background(), test.url)
		require.Empty(t, body)
		var fe *FetchError
		require.True(t, errors.As(err, &fe), test.url)
		require.Equal(t, test.kind, fe.Kind, test.url)
	}
}

type memoryCache struct {
	pages  map[string]string
	getErr error
	sets   int
}

func (m *memoryCache) Get(_ context.Context, rawURL string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	body, ok := m.pages[rawURL]
	return body, ok, nil
}

func (m *memoryCache) Set(_ context.Context, rawURL, body string, _ time.Duration) error {
	m.pages[rawURL] = body
	m.sets++
	return nil
}

type countingFetcher struct {
	calls map[string]int
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	f.calls[rawURL]++
	if f.err != nil {
		return "", f.err
	}
	return "body:" + rawURL, nil
}

func TestCachedFetcherOnlyCachesDetailPages(t *testing.T) {
	next := &countingFetcher{calls: map[string]int{}}
	cache := &memoryCache{pages: map[string]string{}}
	f := NewCachedFetcher(next, cache, time.Hour)
	ctx := context.Background()

	detail := "https://example.com/result/42"
	listing := "https://example.com/survey/?page=1"

	for i := 0; i < 3; i++ {
		body, err := f.Fetch(ctx, detail)
		require.NoError(t, err)
		require.Equal(t, "body:"+detail, body)

		_, err = f.Fetch(ctx, listing)
		require.NoError(t, err)
	}

	require.Equal(t, 1, next.calls[detail])
	require.Equal(t, 3, next.calls[listing])
	require.Equal(t, 1, cache.sets)
}

func TestCachedFetcherFallsThroughOnCacheError(t *testing.T) {
	next := &countingFetcher{calls: map[string]int{}}
	cache := &memoryCache{pages: map[string]string{}, getErr: errors.New("redis down")}
	f := NewCachedFetcher(next, cache, time.Hour)

	body, err := f.Fetch(context.Background(), "https://example.com/result/7")
	require.NoError(t, err)
	require.Equal(t, "body:https://example.com/result/7", body)
}

func TestCachedFetcherDoesNotCacheFailures(t *testing.T) {
	next := &countingFetcher{calls: map[string]int{}, err: &FetchError{Kind: KindNetwork, Err: errors.New("boom")}}
	cache := &memoryCache{pages: map[string]string{}}
	f := NewCachedFetcher(next, cache, time.Hour)

	_, err := f.Fetch(context.Background(), "https://example.com/result/7")
	require.Error(t, err)
	require.Zero(t, cache.sets)
}
