package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
)

// Bus is the subset of eventbus.Bus the subscriber needs.
type Bus interface {
	Subscribe(ctx context.Context, topic string) <-chan any
}

// Subscriber bridges the eventbus to a Notifier: it watches the topics that
// matter to an operator (upkeep failures, component health, emergency-exit
// decisions) and turns each event into a title/message pair, using the
// event type names from config.NotifyConfig.Events as the Notifier's
// filter (spec.md §4.10's "operator alerting" surface).
type Subscriber struct {
	bus      Bus
	notifier *Notifier
	logger   *slog.Logger
}

// NewSubscriber builds a Subscriber. Run must be called to start watching.
func NewSubscriber(bus Bus, notifier *Notifier, logger *slog.Logger) *Subscriber {
	return &Subscriber{bus: bus, notifier: notifier, logger: logger.With(slog.String("component", "notify_subscriber"))}
}

// Run watches TopicDecision, TopicUpkeepFailed, and TopicHealthReport until
// ctx is cancelled, forwarding each to the Notifier under the matching
// event-type name.
func (s *Subscriber) Run(ctx context.Context) {
	decisions := s.bus.Subscribe(ctx, eventbus.TopicDecision)
	upkeepFailed := s.bus.Subscribe(ctx, eventbus.TopicUpkeepFailed)
	health := s.bus.Subscribe(ctx, eventbus.TopicHealthReport)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-decisions:
			if !ok {
				decisions = nil
				continue
			}
			s.handleDecision(ctx, ev)
		case ev, ok := <-upkeepFailed:
			if !ok {
				upkeepFailed = nil
				continue
			}
			s.handleUpkeepFailed(ctx, ev)
		case ev, ok := <-health:
			if !ok {
				health = nil
				continue
			}
			s.handleHealth(ctx, ev)
		}
	}
}

func (s *Subscriber) handleDecision(ctx context.Context, ev any) {
	d, ok := ev.(domain.Decision)
	if !ok || d.Action != domain.ActionEmergencyExit {
		return
	}
	title := "emergency exit triggered"
	message := fmt.Sprintf("decision %s: %d step(s), confidence %dppm — %v", d.Id, len(d.Steps), d.ConfidencePpm, d.Reasoning)
	if err := s.notifier.Notify(ctx, "emergency_exit", title, message); err != nil {
		s.logger.ErrorContext(ctx, "notify emergency_exit failed", slog.String("error", err.Error()))
	}
}

func (s *Subscriber) handleUpkeepFailed(ctx context.Context, ev any) {
	t, ok := ev.(domain.UpkeepTrigger)
	if !ok {
		return
	}
	title := fmt.Sprintf("upkeep %s failed", t.UpkeepId)
	if err := s.notifier.Notify(ctx, "upkeep_failed", title, t.Detail); err != nil {
		s.logger.ErrorContext(ctx, "notify upkeep_failed failed", slog.String("error", err.Error()))
	}
}

// handleHealth forwards component-down health reports. The supervisor
// publishes whatever health-report shape it settles on; this accepts any
// value with a String method and lets Notifier.Notify's filter drop it if
// "component_down" isn't in the configured event set.
func (s *Subscriber) handleHealth(ctx context.Context, ev any) {
	stringer, ok := ev.(fmt.Stringer)
	if !ok {
		return
	}
	if err := s.notifier.Notify(ctx, "component_down", "component health changed", stringer.String()); err != nil {
		s.logger.ErrorContext(ctx, "notify component_down failed", slog.String("error", err.Error()))
	}
}
