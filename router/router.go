// Package router fans published domain events out to subscribed consumers.
package router

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/domain"
	"github.com/grvram01/person-service-repo/retry"
)

// Consumer handles one event delivery. Handlers must be idempotent under
// redelivery of the same event id; the bus does not deduplicate for them.
type Consumer interface {
	Name() string
	Handle(ctx context.Context, ev domain.Event) error
}

// Subscription binds a consumer to an exact {source, type} pattern. The
// subscription table is static configuration, fixed at construction.
type Subscription struct {
	Source   string
	Type     string
	Consumer Consumer
}

// Matches reports whether the subscription wants the event.
func (s Subscription) Matches(ev domain.Event) bool {
	return s.Source == ev.Source && s.Type == ev.Type
}

// DeadLetter receives events a consumer could not process after exhausting
// its retries. Exhausted deliveries are parked there, never dropped silently.
type DeadLetter interface {
	Send(ctx context.Context, ev domain.Event, consumer string, cause error) error
}

// Config tunes per-consumer delivery.
type Config struct {
	MaxAttempts    int
	RetryInitial   time.Duration
	RetryMax       time.Duration
	AttemptTimeout time.Duration
}

// Bus matches each event against every subscription and delivers to all
// matching consumers concurrently. Deliveries are isolated: one consumer
// failing, timing out or dead-lettering never blocks a sibling.
type Bus struct {
	subs       []Subscription
	deadLetter DeadLetter
	cfg        Config
	logger     *log.Logger
}

func NewBus(subs []Subscription, deadLetter DeadLetter, cfg Config, logger *log.Logger) *Bus {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	return &Bus{subs: subs, deadLetter: deadLetter, cfg: cfg, logger: logger}
}

// Dispatch fans the event out and blocks until every matching consumer has
// either succeeded or been dead-lettered. Consumer failures never propagate
// to the publisher.
func (b *Bus) Dispatch(ctx context.Context, ev domain.Event) {
	var wg sync.WaitGroup
	for _, sub := range b.subs {
		if !sub.Matches(ev) {
			continue
		}
		wg.Add(1)
		go func(sub Subscription) {
			defer wg.Done()
			b.deliver(ctx, sub.Consumer, ev)
		}(sub)
	}
	wg.Wait()
}

func (b *Bus) deliver(ctx context.Context, c Consumer, ev domain.Event) {
	var lastErr error
	for attempt := 0; attempt < b.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(retry.Backoff(attempt-1, b.cfg.RetryInitial, b.cfg.RetryMax))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			timer.Stop()
		}
		attemptCtx, cancel := context.WithTimeout(ctx, b.cfg.AttemptTimeout)
		lastErr = c.Handle(attemptCtx, ev)
		cancel()
		if lastErr == nil {
			return
		}
		b.logger.WithError(lastErr).WithFields(log.Fields{
			"consumer": c.Name(),
			"event":    ev.ID,
			"attempt":  attempt + 1,
		}).Error("consumer delivery failed")
	}

	if err := b.deadLetter.Send(ctx, ev, c.Name(), lastErr); err != nil {
		b.logger.WithError(err).WithFields(log.Fields{
			"consumer": c.Name(),
			"event":    ev.ID,
		}).Error("dead-letter send failed")
		return
	}
	b.logger.WithFields(log.Fields{
		"consumer": c.Name(),
		"event":    ev.ID,
	}).Warn("event dead-lettered")
}
