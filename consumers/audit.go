// Package consumers holds the downstream handlers events are fanned out to.
// Each consumer tolerates redelivery of the same event id; the router does
// not deduplicate on their behalf.
package consumers

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/domain"
)

// AuditEntry is the durable trace of one delivered event, keyed by event id.
type AuditEntry struct {
	EventID    string
	Source     string
	Type       string
	RecordID   string
	Detail     string
	ReceivedAt int64
}

// AuditStore persists audit entries. Put must be an upsert on EventID so
// redelivered events overwrite their own row instead of duplicating it.
type AuditStore interface {
	Put(ctx context.Context, entry AuditEntry) error
}

// AuditSink records every delivered event. Idempotency comes from keying
// the store on the event id.
type AuditSink struct {
	store  AuditStore
	logger *log.Logger
}

func NewAuditSink(store AuditStore, logger *log.Logger) *AuditSink {
	return &AuditSink{store: store, logger: logger}
}

func (s *AuditSink) Name() string { return "audit-sink" }

func (s *AuditSink) Handle(ctx context.Context, ev domain.Event) error {
	entry := AuditEntry{
		EventID:    ev.ID,
		Source:     ev.Source,
		Type:       ev.Type,
		RecordID:   ev.RecordID,
		Detail:     string(ev.Detail),
		ReceivedAt: ev.Time,
	}
	if err := s.store.Put(ctx, entry); err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{
		"event":  ev.ID,
		"record": ev.RecordID,
		"type":   ev.Type,
	}).Info("event audited")
	return nil
}
