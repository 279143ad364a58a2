package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InhaCentury20/pass/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:         "test-agent",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
	})
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte("공고문"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Get(context.Background(), srv.URL+"/view.do?boardId=1")
	require.NoError(t, err)
	assert.Equal(t, "공고문", string(body))
}

func TestPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "BMSR00015", r.PostForm.Get("bbsId"))
		assert.Equal(t, "2", r.PostForm.Get("pageIndex"))
		w.Write([]byte(`{"resultList":[]}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.PostForm(context.Background(), srv.URL+"/list.json", url.Values{
		"bbsId":     {"BMSR00015"},
		"pageIndex": {"2"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"resultList":[]}`, string(body))
}

func TestGet_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Get(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestGet_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_TransientStatus(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusBadGateway, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestFetcher().Get(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestGet_429ReducesHostRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.True(t, resilience.IsTransient(err))

	assert.InDelta(t, 50.0, float64(f.limiterFor(srv.URL).Limit()), 0.1)
}

func TestGet_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 32)))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{RequestsPerSecond: 100, MaxBodyBytes: 16})
	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}

func TestGet_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 20 * time.Millisecond, RequestsPerSecond: 100})
	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestGet_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Get(ctx, srv.URL)
	require.Error(t, err)
}

func TestLimiterFor_PerHost(t *testing.T) {
	f := newTestFetcher()
	a := f.limiterFor("https://soco.seoul.go.kr/a")
	b := f.limiterFor("https://soco.seoul.go.kr/b")
	c := f.limiterFor("https://apis.data.go.kr/x")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestLimiterFor_InvalidURL(t *testing.T) {
	f := newTestFetcher()
	assert.NotNil(t, f.limiterFor("://bad"))
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, DefaultUserAgent, f.opts.UserAgent)
	assert.Equal(t, DefaultTimeout, f.opts.Timeout)
	assert.Equal(t, DefaultRequestsPerSecond, f.opts.RequestsPerSecond)
	assert.Equal(t, int64(DefaultMaxBodyBytes), f.opts.MaxBodyBytes)
}

func TestAdaptiveLimiter_OnRateLimit_DecreasesRate(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)

	lim.OnRateLimit()
	assert.InDelta(t, 5.0, float64(lim.Limit()), 0.1)

	lim.OnRateLimit()
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_OnRateLimit_FloorAtQuarter(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)
	for range 10 {
		lim.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_OnSuccess_RecoversToConfigured(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)
	lim.OnRateLimit()
	lim.OnSuccess()
	assert.InDelta(t, 6.0, float64(lim.Limit()), 0.1)

	for range 20 {
		lim.OnSuccess()
	}
	assert.InDelta(t, 10.0, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_Wait_ContextCancelled(t *testing.T) {
	lim := NewAdaptiveLimiter(0.001, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, lim.Wait(ctx))
}
