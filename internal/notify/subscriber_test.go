package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
)

type recordingSender struct {
	mu       sync.Mutex
	titles   []string
	messages []string
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForCount(t *testing.T, sender *recordingSender, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sender.count() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d notification(s), got %d", n, sender.count())
}

func TestSubscriberForwardsEmergencyExitDecision(t *testing.T) {
	bus := eventbus.New(4)
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, []string{"emergency_exit"}, testLogger())
	sub := NewSubscriber(bus, notifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	bus.Publish(eventbus.TopicDecision, domain.Decision{
		Id:     "d-1",
		Action: domain.ActionEmergencyExit,
	})

	waitForCount(t, sender, 1)
	assert.Contains(t, sender.titles[0], "emergency exit")
}

func TestSubscriberIgnoresNonEmergencyDecisions(t *testing.T) {
	bus := eventbus.New(4)
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, []string{"emergency_exit"}, testLogger())
	sub := NewSubscriber(bus, notifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	bus.Publish(eventbus.TopicDecision, domain.Decision{Id: "d-2", Action: domain.ActionHold})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, sender.count())
}

func TestSubscriberForwardsUpkeepFailed(t *testing.T) {
	bus := eventbus.New(4)
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, nil, testLogger())
	sub := NewSubscriber(bus, notifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	bus.Publish(eventbus.TopicUpkeepFailed, domain.UpkeepTrigger{UpkeepId: "u-1", Detail: "fee estimate exhausted retries"})

	waitForCount(t, sender, 1)
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "fee estimate")
}
