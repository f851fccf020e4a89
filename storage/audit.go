package storage

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/grvram01/person-service-repo/consumers"
	"github.com/grvram01/person-service-repo/domain"
)

type auditEntity struct {
	aztables.Entity
	Source     string `json:"Source"`
	Type       string `json:"Type"`
	RecordID   string `json:"RecordId"`
	Detail     string `json:"Detail"`
	ReceivedAt int64  `json:"ReceivedAt"`
}

// Put upserts the audit row for an event. Rows are keyed by event id, so a
// redelivered event rewrites its own row instead of duplicating it.
func (s *Storage) Put(ctx context.Context, entry consumers.AuditEntry) error {
	ent := auditEntity{
		Entity:     aztables.Entity{PartitionKey: entry.EventID, RowKey: entry.EventID},
		Source:     entry.Source,
		Type:       entry.Type,
		RecordID:   entry.RecordID,
		Detail:     entry.Detail,
		ReceivedAt: entry.ReceivedAt,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.audit.UpsertEntity(ctx, payload, nil); err != nil {
		return &domain.UnavailableError{Dependency: "audit store", Err: err}
	}
	return nil
}
