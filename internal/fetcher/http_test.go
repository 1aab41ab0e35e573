package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/sanction-watch/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:         "test-agent",
		Timeout:           5 * time.Second,
		MaxRetries:        3,
		RetryBackoff:      time.Millisecond,
		RequestsPerSecond: 1000,
	})
}

func TestHTTPDownload_SendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "ApiKey secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	hdr := http.Header{}
	hdr.Set("Authorization", "ApiKey secret")

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/sdn.csv", hdr)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestHTTPDownload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	data, err := ReadAll(context.Background(), newTestFetcher(), srv.URL, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPDownload_ExhaustedRetriesAreTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, http.StatusBadGateway, resilience.StatusCode(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPDownload_PermanentStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPDownload_RateLimitSlowsHost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := ReadAll(context.Background(), f, srv.URL, nil, 0)
	require.NoError(t, err)

	lim := f.limiterFor(srv.Listener.Addr().String())
	assert.Less(t, float64(lim.Limit()), 1000.0)
}

func TestReadAll_Limit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	_, err := ReadAll(context.Background(), newTestFetcher(), srv.URL, nil, 5)
	assert.ErrorContains(t, err, "exceeds")
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter(rate.Limit(10), 1)
	for range 10 {
		a.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(a.Limit()), 1e-9)

	for range 10 {
		a.OnRateLimit("example.org")
	}
	assert.InDelta(t, 2.5, float64(a.Limit()), 1e-9)
}

func TestMulti_FileScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))

	m := NewMulti(nil, nil)
	data, err := ReadAll(context.Background(), m, "file://"+path, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	data, err = ReadAll(context.Background(), m, path, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

func TestMulti_MissingFetchers(t *testing.T) {
	m := NewMulti(nil, nil)
	_, err := m.Download(context.Background(), "https://example.org/x", nil)
	assert.Error(t, err)
	_, err = m.Download(context.Background(), "ftp://example.org/x", nil)
	assert.Error(t, err)
	_, err = m.Download(context.Background(), "gopher://example.org/x", nil)
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestParseFTPURL(t *testing.T) {
	tgt, err := parseFTPURL("ftp://mirror.example.org/pub/sdn.csv")
	require.NoError(t, err)
	assert.Equal(t, "mirror.example.org:21", tgt.addr)
	assert.Equal(t, "/pub/sdn.csv", tgt.path)
	assert.Equal(t, "anonymous", tgt.user)

	tgt, err = parseFTPURL("ftp://bob:pw@mirror.example.org:2121/list.xml")
	require.NoError(t, err)
	assert.Equal(t, "mirror.example.org:2121", tgt.addr)
	assert.Equal(t, "bob", tgt.user)
	assert.Equal(t, "pw", tgt.password)

	_, err = parseFTPURL("http://mirror.example.org/x")
	assert.Error(t, err)
	_, err = parseFTPURL("ftp://mirror.example.org/")
	assert.Error(t, err)
}
