// Package supervisor starts every control-plane component in dependency
// order, restarts a component that fails with exponential backoff up to a
// fixed cap, marks the system degraded rather than tearing down unrelated
// components when a restart budget is exhausted, and on shutdown cancels the
// one context every component shares, so all components stop concurrently;
// teardown is not ordered and has no grace window (spec.md §4.10). Adapted from the teacher's
// internal/pipeline/orchestrator.go errgroup fan-out, generalized from a
// fixed three-goroutine set to a named, ordered, independently-restartable
// component list.
package supervisor

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/crossfluxx/rebalancer/internal/eventbus"
)

// MaxRestarts is spec.md §4.10's restart budget per component before it is
// marked degraded instead of retried further.
const MaxRestarts = 5

// Config controls the supervisor's restart backoff. Tests override both
// fields to keep the restart loop fast; production wiring leaves them at
// their defaults.
type Config struct {
	RestartBaseBackoff time.Duration
	RestartMaxBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RestartBaseBackoff == 0 {
		c.RestartBaseBackoff = time.Second
	}
	if c.RestartMaxBackoff == 0 {
		c.RestartMaxBackoff = 30 * time.Second
	}
	return c
}

// Component is one named, independently-restartable unit. Run must block
// until ctx is cancelled or a fatal error occurs, and must return promptly
// (nil or ctx.Err()) on cancellation — the same contract every pipeline
// Run(ctx) method in this module already follows.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

// status is one component's current supervised state, reported on
// eventbus.TopicHealthReport.
type status struct {
	Name      string
	Healthy   bool
	Degraded  bool
	Restarts  int
	LastError string
}

// String satisfies fmt.Stringer so internal/notify's health subscriber can
// render a status without importing this package.
func (s status) String() string {
	if s.Degraded {
		return s.Name + " degraded after " + strconv.Itoa(s.Restarts) + " restarts: " + s.LastError
	}
	return s.Name + " down, restarting (attempt " + strconv.Itoa(s.Restarts) + "): " + s.LastError
}

// Supervisor starts a fixed, ordered list of Components and keeps each one
// running independently: one component's restart loop never blocks or
// tears down another's.
type Supervisor struct {
	components []Component
	bus        *eventbus.Bus
	cfg        Config
	logger     *slog.Logger

	mu       sync.Mutex
	degraded map[string]bool
}

// New builds a Supervisor over components, started and restarted in the
// order given (spec.md §4.10: Config → HTTP → Feed → Aggregator → Agents →
// Voting → Upkeep → Orchestrator — the caller supplies that order).
func New(components []Component, bus *eventbus.Bus, cfg Config, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		components: components,
		bus:        bus,
		cfg:        cfg.withDefaults(),
		logger:     logger.With(slog.String("component", "supervisor")),
		degraded:   make(map[string]bool),
	}
}

// Run starts every component concurrently and blocks until ctx is
// cancelled, at which point it waits for every component's restart loop to
// return before returning itself. Components stop in whatever order their
// Run calls return; each component's own Close/cleanup runs in its deferred
// path when its Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor starting", slog.Int("components", len(s.components)))

	var wg sync.WaitGroup
	for _, c := range s.components {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.superviseComponent(ctx, c)
		}()
	}
	wg.Wait()

	s.logger.Info("supervisor stopped")
	return nil
}

// Degraded reports whether name has exhausted its restart budget.
func (s *Supervisor) Degraded(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded[name]
}

// superviseComponent runs c.Run, and on a non-cancellation error restarts
// it with exponential backoff up to MaxRestarts before marking it degraded
// and giving up — never propagating the failure to any other component.
func (s *Supervisor) superviseComponent(ctx context.Context, c Component) {
	backoff := s.cfg.RestartBaseBackoff
	for attempt := 0; ; attempt++ {
		err := c.Run(ctx)
		if ctx.Err() != nil {
			s.logger.Info("component stopped on shutdown", slog.String("name", c.Name))
			return
		}
		if err == nil {
			s.logger.Info("component exited cleanly, not restarting", slog.String("name", c.Name))
			return
		}

		if attempt >= MaxRestarts {
			s.markDegraded(c.Name, attempt, err)
			return
		}

		s.componentDown(c.Name, attempt+1, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.RestartMaxBackoff {
			backoff = s.cfg.RestartMaxBackoff
		}
	}
}

func (s *Supervisor) componentDown(name string, attempt int, cause error) {
	s.logger.Error("component failed, restarting",
		slog.String("name", name), slog.Int("attempt", attempt), slog.String("error", cause.Error()))
	s.bus.Publish(eventbus.TopicHealthReport, status{Name: name, Healthy: false, Restarts: attempt, LastError: cause.Error()})
}

func (s *Supervisor) markDegraded(name string, attempts int, cause error) {
	s.mu.Lock()
	s.degraded[name] = true
	s.mu.Unlock()

	s.logger.Error("component exhausted restart budget, marking degraded",
		slog.String("name", name), slog.Int("restarts", attempts), slog.String("error", cause.Error()))
	s.bus.Publish(eventbus.TopicHealthReport, status{Name: name, Degraded: true, Restarts: attempts, LastError: cause.Error()})
}
