package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConcurrentRequestsBoundedPerHost(t *testing.T) {
	var inFlight, maxInFlight int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		w.Write([]byte(`"ok"`))
	}))
	defer srv.Close()

	c := New(srv.URL, Config{MaxConcurrentPerHost: 2, MaxRetries: 0, CacheTTL: time.Millisecond}, testLogger())

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func(i int) {
			_, _ = c.Get(context.Background(), "/x", nil)
			done <- struct{}{}
		}(i)
	}

	// Give every goroutine a chance to reach the server or block on the
	// semaphore, then confirm at most 2 are ever inside the handler at once.
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2), "in-flight requests must not exceed MaxConcurrentPerHost")

	close(release)
	for i := 0; i < 5; i++ {
		<-done
	}
}

func TestStaleCacheServedOnRefreshError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Write([]byte(`"first"`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, Config{MaxRetries: 0, CacheTTL: time.Millisecond}, testLogger())

	body, err := c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	require.Equal(t, `"first"`, string(body))

	time.Sleep(5 * time.Millisecond) // let the cache entry expire

	body, err = c.Get(context.Background(), "/x", nil)
	require.NoError(t, err, "a refresh error with a stale entry present must not surface as an error")
	assert.Equal(t, `"first"`, string(body), "the expired value is returned when refresh fails")
}

func TestNoStaleEntryPropagatesRefreshError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, Config{MaxRetries: 0, CacheTTL: time.Minute}, testLogger())

	_, err := c.Get(context.Background(), "/x", nil)
	assert.Error(t, err, "with no stale entry to fall back to, the refresh error must propagate")
}
