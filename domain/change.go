package domain

import "fmt"

// ChangeKind identifies the mutation a change entry was captured from.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "Created"
	ChangeUpdated ChangeKind = "Updated"
)

// ChangeEntry is one captured mutation from the record store's change feed.
// SequenceToken is monotonically increasing per record id; tokens of
// different records are not ordered relative to each other.
type ChangeEntry struct {
	RecordID      string     `json:"recordId"`
	SequenceToken int64      `json:"sequenceToken"`
	Kind          ChangeKind `json:"changeKind"`
	NewImage      Person     `json:"newImage"`
	Time          int64      `json:"time"`
}

// EntryID is the stable identity of the entry. Retries of the same entry
// yield the same id, which is what makes downstream duplicates detectable.
func (c ChangeEntry) EntryID() string {
	return fmt.Sprintf("%s:%012d", c.RecordID, c.SequenceToken)
}
