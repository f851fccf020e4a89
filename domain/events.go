package domain

import "encoding/json"

const (
	// EventSource tags every event produced by this pipeline.
	EventSource = "persons.records"

	// TypeRecordChanged is the only event type published today. Matching is
	// exact equality on source and type, so adding a variant means adding a
	// constant and a subscription, nothing else.
	TypeRecordChanged = "RecordChanged"
)

// Event is the normalized, publishable representation of a change entry.
type Event struct {
	ID       string          `json:"id"`
	Source   string          `json:"source"`
	Type     string          `json:"type"`
	RecordID string          `json:"recordId"`
	Detail   json.RawMessage `json:"detail"`
	Time     int64           `json:"time"`
}
