// Package httpclient is a shared REST client for the upstream feeds
// (on-chain RPC fallback endpoints, yield aggregator API, price API):
// bounded per-host concurrency, a short-TTL response cache, and retry with
// exponential backoff plus full jitter.
package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// Config controls retry/backoff/caching/rate-limit/concurrency behavior.
// Zero values fall back to the defaults below.
type Config struct {
	Timeout              time.Duration
	MaxRetries           int
	BaseBackoff          time.Duration
	MaxBackoff           time.Duration
	RequestsPerSec       float64
	Burst                int
	CacheTTL             time.Duration
	MaxConcurrentPerHost int
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.RequestsPerSec == 0 {
		c.RequestsPerSec = 5
	}
	if c.Burst == 0 {
		c.Burst = 5
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 2 * time.Second
	}
	if c.MaxConcurrentPerHost == 0 {
		c.MaxConcurrentPerHost = 8
	}
	return c
}

// Client is a context-aware GET client shared by every upstream data
// source. One Client is built per host so the rate limiter's bucket and the
// concurrency semaphore both map to the host they protect.
type Client struct {
	baseURL string
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// sem bounds in-flight requests to this host to cfg.MaxConcurrentPerHost
	// (spec.md §4.1/§8): a buffered channel used as a semaphore, acquired
	// around doGet. Go's channel send/receive wakes blocked goroutines in
	// the order they started waiting, giving the FIFO queueing behavior
	// spec.md §4.1 calls for.
	sem chan struct{}

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

// New builds a Client against baseURL (e.g. "https://yields.example.com").
func New(baseURL string, cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		logger:  logger.With(slog.String("component", "httpclient"), slog.String("base_url", baseURL)),
		sem:     make(chan struct{}, cfg.MaxConcurrentPerHost),
		cache:   make(map[string]cacheEntry),
	}
}

// Get performs a GET against baseURL+path, serving a cached body if one is
// still fresh, and retrying transient failures with exponential backoff and
// full jitter (spec.md §7 upstream error handling). If every retry is
// exhausted (or the failure is non-retriable) and an expired cache entry
// exists, that stale value is returned instead of the error, which is
// logged rather than discarded (spec.md §4.1 "on refresh error the expired
// value is returned and the error is logged").
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	full := path
	if query != nil {
		full = path + "?" + query.Encode()
	}
	key := cacheKey(full)

	stale, fresh, hasStale := c.cachedGet(key)
	if fresh {
		return stale, nil
	}

	body, refreshErr := c.refresh(ctx, key, full)
	if refreshErr == nil {
		return body, nil
	}

	if hasStale {
		c.logger.Error("refresh failed, serving stale cached response",
			slog.String("path", full), slog.String("error", refreshErr.Error()))
		return stale, nil
	}
	return nil, refreshErr
}

// refresh retries doGet up to cfg.MaxRetries times, storing the body in the
// cache on success.
func (c *Client) refresh(ctx context.Context, key, full string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, domain.NewError(domain.KindCancelled, false, "rate limiter wait", err)
		}

		if err := c.acquire(ctx); err != nil {
			return nil, err
		}
		body, retriable, err := c.doGet(ctx, full)
		c.release()

		if err == nil {
			c.cachePut(key, body)
			return body, nil
		}
		lastErr = err
		if !retriable {
			return nil, err
		}
	}
	return nil, domain.NewError(domain.KindUpstream, false, "exhausted retries for "+full, lastErr)
}

// acquire reserves one of cfg.MaxConcurrentPerHost in-flight slots, blocking
// (in FIFO order) until one frees up or ctx is cancelled.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return domain.NewError(domain.KindCancelled, false, "concurrency slot wait cancelled", ctx.Err())
	}
}

func (c *Client) release() {
	<-c.sem
}

func (c *Client) doGet(ctx context.Context, full string) (body []byte, retriable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+full, nil)
	if err != nil {
		return nil, false, domain.NewError(domain.KindUpstream, false, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, domain.NewError(domain.KindCancelled, false, "request cancelled", err)
		}
		return nil, true, domain.NewError(domain.KindUpstream, true, "http request", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, domain.NewError(domain.KindUpstream, true, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return b, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, domain.NewError(domain.KindUpstream, true, fmt.Sprintf("status %d: %s", resp.StatusCode, string(b)), nil)
	default:
		return nil, false, domain.NewError(domain.KindUpstream, false, fmt.Sprintf("status %d: %s", resp.StatusCode, string(b)), nil)
	}
}

// sleepBackoff waits base*2^(attempt-1), capped at MaxBackoff, with full
// jitter (a uniform random duration in [0, capped]) — the standard AWS
// full-jitter retry shape.
func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := c.cfg.BaseBackoff << (attempt - 1)
	if backoff > c.cfg.MaxBackoff || backoff <= 0 {
		backoff = c.cfg.MaxBackoff
	}
	jittered := time.Duration(rand.Int63n(int64(backoff) + 1))

	timer := time.NewTimer(jittered)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return domain.NewError(domain.KindCancelled, false, "backoff wait cancelled", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func cacheKey(full string) string {
	sum := sha256.Sum256([]byte(full))
	return hex.EncodeToString(sum[:])
}

// cachedGet reports the cached body for key, if any, and whether it is
// still fresh. When the entry exists but has expired, body and hasStale are
// still returned so the caller can fall back to it on a refresh error.
func (c *Client) cachedGet(key string) (body []byte, fresh bool, hasStale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		return nil, false, false
	}
	if time.Now().After(e.expiresAt) {
		return e.body, false, true
	}
	return e.body, true, false
}

func (c *Client) cachePut(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{body: body, expiresAt: time.Now().Add(c.cfg.CacheTTL)}
}
