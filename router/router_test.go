package router

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/domain"
)

type recordingConsumer struct {
	name string
	fail int

	mu       sync.Mutex
	handled  []domain.Event
	attempts int
}

func (c *recordingConsumer) Name() string { return c.name }

func (c *recordingConsumer) Handle(ctx context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts <= c.fail {
		return errors.New("handler failure")
	}
	c.handled = append(c.handled, ev)
	return nil
}

func (c *recordingConsumer) events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.handled))
	copy(out, c.handled)
	return out
}

type memDeadLetter struct {
	mu      sync.Mutex
	parked  []domain.Event
	sources []string
}

func (d *memDeadLetter) Send(ctx context.Context, ev domain.Event, consumer string, cause error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parked = append(d.parked, ev)
	d.sources = append(d.sources, consumer)
	return nil
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		RetryInitial:   time.Millisecond,
		RetryMax:       5 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func recordEvent(id string) domain.Event {
	return domain.Event{ID: id, Source: domain.EventSource, Type: domain.TypeRecordChanged, RecordID: "p1"}
}

func TestDispatchDeliversToEveryMatchingConsumerOnly(t *testing.T) {
	matchA := &recordingConsumer{name: "audit"}
	matchB := &recordingConsumer{name: "notify"}
	other := &recordingConsumer{name: "billing"}

	bus := NewBus([]Subscription{
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: matchA},
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: matchB},
		{Source: "billing.invoices", Type: "InvoiceIssued", Consumer: other},
	}, &memDeadLetter{}, testConfig(), quietLogger())

	bus.Dispatch(context.Background(), recordEvent("ev-1"))

	if len(matchA.events()) != 1 || len(matchB.events()) != 1 {
		t.Fatalf("expected both subscribers to receive the event: %d/%d", len(matchA.events()), len(matchB.events()))
	}
	if len(other.events()) != 0 {
		t.Fatal("non-matching subscription received the event")
	}
}

func TestMatchingIsExactOnSourceAndType(t *testing.T) {
	sub := Subscription{Source: domain.EventSource, Type: domain.TypeRecordChanged}
	cases := []struct {
		source, typ string
		want        bool
	}{
		{domain.EventSource, domain.TypeRecordChanged, true},
		{domain.EventSource, "RecordDeleted", false},
		{"other.source", domain.TypeRecordChanged, false},
		{"", "", false},
	}
	for _, tc := range cases {
		got := sub.Matches(domain.Event{Source: tc.source, Type: tc.typ})
		if got != tc.want {
			t.Fatalf("match %s/%s = %v, want %v", tc.source, tc.typ, got, tc.want)
		}
	}
}

func TestOneConsumerFailureDoesNotBlockSiblings(t *testing.T) {
	// Audit keeps failing past its retry budget; the notifier must still
	// get its own delivery.
	audit := &recordingConsumer{name: "audit", fail: 100}
	notify := &recordingConsumer{name: "notify"}
	dlq := &memDeadLetter{}

	bus := NewBus([]Subscription{
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: audit},
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: notify},
	}, dlq, testConfig(), quietLogger())

	bus.Dispatch(context.Background(), recordEvent("ev-2"))

	if len(notify.events()) != 1 {
		t.Fatalf("sibling delivery lost: %d", len(notify.events()))
	}
	if len(dlq.parked) != 1 || dlq.sources[0] != "audit" {
		t.Fatalf("expected audit's event dead-lettered, got %+v", dlq.sources)
	}
}

func TestDeliveryRetriesBeforeDeadLettering(t *testing.T) {
	flaky := &recordingConsumer{name: "flaky", fail: 2}
	dlq := &memDeadLetter{}
	bus := NewBus([]Subscription{
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: flaky},
	}, dlq, testConfig(), quietLogger())

	bus.Dispatch(context.Background(), recordEvent("ev-3"))

	if len(flaky.events()) != 1 {
		t.Fatalf("expected delivery to succeed on third attempt, got %d", len(flaky.events()))
	}
	if flaky.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.attempts)
	}
	if len(dlq.parked) != 0 {
		t.Fatal("successful delivery must not dead-letter")
	}
}

func TestExhaustedDeliveryIsNeverDroppedSilently(t *testing.T) {
	broken := &recordingConsumer{name: "broken", fail: 100}
	dlq := &memDeadLetter{}
	bus := NewBus([]Subscription{
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: broken},
	}, dlq, testConfig(), quietLogger())

	ev := recordEvent("ev-4")
	bus.Dispatch(context.Background(), ev)

	if broken.attempts != 3 {
		t.Fatalf("expected the full attempt budget, got %d", broken.attempts)
	}
	if len(dlq.parked) != 1 || dlq.parked[0].ID != ev.ID {
		t.Fatalf("expected event parked on the dead-letter path, got %+v", dlq.parked)
	}
}

type slowConsumer struct {
	name     string
	duration time.Duration

	mu      sync.Mutex
	expired bool
	handled int
}

func (c *slowConsumer) Name() string { return c.name }

func (c *slowConsumer) Handle(ctx context.Context, ev domain.Event) error {
	select {
	case <-time.After(c.duration):
		c.mu.Lock()
		c.handled++
		c.mu.Unlock()
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		c.expired = true
		c.mu.Unlock()
		return ctx.Err()
	}
}

func TestTimeoutOfOneDeliveryDoesNotCancelSiblings(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.AttemptTimeout = 10 * time.Millisecond

	slow := &slowConsumer{name: "slow", duration: time.Second}
	fast := &recordingConsumer{name: "fast"}
	dlq := &memDeadLetter{}
	bus := NewBus([]Subscription{
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: slow},
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: fast},
	}, dlq, cfg, quietLogger())

	bus.Dispatch(context.Background(), recordEvent("ev-5"))

	slow.mu.Lock()
	expired := slow.expired
	slow.mu.Unlock()
	if !expired {
		t.Fatal("expected slow consumer to hit its attempt timeout")
	}
	if len(fast.events()) != 1 {
		t.Fatal("sibling delivery affected by another consumer's timeout")
	}
	if len(dlq.parked) != 1 {
		t.Fatalf("timed-out delivery should dead-letter, got %d", len(dlq.parked))
	}
}
