// Package capture holds the ordered per-record change log the relay drains.
package capture

import (
	"context"
	"time"

	"github.com/grvram01/person-service-repo/domain"
)

// Checkpoint is an opaque position in the feed. Checkpoints order
// lexicographically; the zero value means "before everything retained".
type Checkpoint string

// Log is the change feed: one entry appended per successful mutation,
// sequence tokens monotonic per record id, readable by a single logical
// consumer from a checkpoint. Entries are retained for a bounded window
// only; a reader that falls behind the window misses entries for good.
type Log interface {
	Append(ctx context.Context, kind domain.ChangeKind, image domain.Person) (domain.ChangeEntry, error)
	ReadBatch(ctx context.Context, after Checkpoint, max int) ([]domain.ChangeEntry, Checkpoint, error)
	// LatestCheckpoint returns the position of the newest retained entry so
	// a reader can start "from latest" without replaying history.
	LatestCheckpoint(ctx context.Context) (Checkpoint, error)
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}
