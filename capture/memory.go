package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grvram01/person-service-repo/domain"
)

type stampedEntry struct {
	key      string
	appended time.Time
	entry    domain.ChangeEntry
}

// MemoryLog is an in-process Log used by tests and local runs. Appends,
// reads and pruning share one mutex, which also makes the record write and
// the change append observably atomic in this backend.
type MemoryLog struct {
	mu        sync.Mutex
	entries   []stampedEntry
	perRecord map[string]int64
	counter   int64
	retention time.Duration
	now       func() time.Time
}

// NewMemoryLog creates a log retaining entries for the given window. A zero
// window disables pruning.
func NewMemoryLog(retention time.Duration) *MemoryLog {
	return &MemoryLog{
		perRecord: make(map[string]int64),
		retention: retention,
		now:       time.Now,
	}
}

func (l *MemoryLog) Append(ctx context.Context, kind domain.ChangeKind, image domain.Person) (domain.ChangeEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	seq := l.perRecord[image.ID] + 1
	l.perRecord[image.ID] = seq
	l.counter++

	entry := domain.ChangeEntry{
		RecordID:      image.ID,
		SequenceToken: seq,
		Kind:          kind,
		NewImage:      image,
		Time:          now.UnixNano(),
	}
	l.entries = append(l.entries, stampedEntry{
		key:      fmt.Sprintf("%020d", l.counter),
		appended: now,
		entry:    entry,
	})
	return entry, nil
}

func (l *MemoryLog) ReadBatch(ctx context.Context, after Checkpoint, max int) ([]domain.ChangeEntry, Checkpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if max <= 0 {
		max = len(l.entries)
	}
	next := after
	var out []domain.ChangeEntry
	for _, se := range l.entries {
		if se.key <= string(after) {
			continue
		}
		out = append(out, se.entry)
		next = Checkpoint(se.key)
		if len(out) == max {
			break
		}
	}
	return out, next, nil
}

func (l *MemoryLog) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return "", nil
	}
	return Checkpoint(l.entries[len(l.entries)-1].key), nil
}

func (l *MemoryLog) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	before := len(l.entries)
	kept := l.entries[:0]
	for _, se := range l.entries {
		if !se.appended.Before(olderThan) {
			kept = append(kept, se)
		}
	}
	l.entries = kept
	return before - len(l.entries), nil
}

func (l *MemoryLog) pruneLocked(now time.Time) {
	if l.retention <= 0 {
		return
	}
	cutoff := now.Add(-l.retention)
	kept := l.entries[:0]
	for _, se := range l.entries {
		if !se.appended.Before(cutoff) {
			kept = append(kept, se)
		}
	}
	l.entries = kept
}
