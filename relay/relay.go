// Package relay turns captured change entries into domain events and
// publishes them onto the routing bus.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/domain"
)

// eventNamespace seeds the SHA1 UUID derivation for event ids. It must never
// change: id stability across retries is what lets consumers spot duplicates.
var eventNamespace = uuid.MustParse("9e0f7a46-2c84-46f3-8b8e-51d3e9f3a7c1")

// Publisher is the remote call onto the event router's bus.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Relay builds exactly one domain event per change entry and publishes it.
// It keeps no partial-batch state: a failed batch is retried whole by the
// invoking scheduler, and re-published entries carry the same event id.
type Relay struct {
	publisher Publisher
	logger    *log.Logger
}

func New(publisher Publisher, logger *log.Logger) *Relay {
	return &Relay{publisher: publisher, logger: logger}
}

// EventID derives the deterministic event id for a change entry.
func EventID(entry domain.ChangeEntry) string {
	return uuid.NewSHA1(eventNamespace, []byte(entry.EntryID())).String()
}

// HandleBatch publishes one event per entry, in order. The first publish
// failure fails the whole invocation; entries already published in this
// batch may be published again on retry (at-least-once, by contract).
func (r *Relay) HandleBatch(ctx context.Context, entries []domain.ChangeEntry) error {
	for _, entry := range entries {
		ev, err := buildEvent(entry)
		if err != nil {
			return fmt.Errorf("build event for %s: %w", entry.EntryID(), err)
		}
		if err := r.publisher.Publish(ctx, ev); err != nil {
			return &domain.UnavailableError{Dependency: "event router", Err: err}
		}
		// Best effort, observability only. Must never block or fail publish.
		r.logger.WithFields(log.Fields{
			"entry": entry.EntryID(),
			"event": ev.ID,
		}).Info("change entry published")
	}
	return nil
}

func buildEvent(entry domain.ChangeEntry) (domain.Event, error) {
	detail, err := json.Marshal(entry)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		ID:       EventID(entry),
		Source:   domain.EventSource,
		Type:     domain.TypeRecordChanged,
		RecordID: entry.RecordID,
		Detail:   detail,
		Time:     entry.Time,
	}, nil
}
