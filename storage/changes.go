package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/grvram01/person-service-repo/capture"
	"github.com/grvram01/person-service-repo/domain"
)

// All change entries live in one partition so the feed scans in append
// order, the table-storage equivalent of a single stream shard.
const feedPartition = "feed"

const (
	checkpointPartition = "relay"
	checkpointRow       = "changefeed"
)

type changeEntity struct {
	aztables.Entity
	RecordID      string `json:"RecordId"`
	SequenceToken int64  `json:"SequenceToken"`
	Kind          string `json:"Kind"`
	NewImage      string `json:"NewImage"`
	ChangeTime    int64  `json:"ChangeTime"`
}

// Append captures one change entry for the given mutation. The sequence
// token and the feed row key are the same strictly increasing timestamp, so
// no two entries ever share a token even when mutations of one record race:
// tokens stay monotonic per record without a read-modify-write on the row.
func (s *Storage) Append(ctx context.Context, kind domain.ChangeKind, image domain.Person) (domain.ChangeEntry, error) {
	pos := nextTimestamp()
	entry := domain.ChangeEntry{
		RecordID:      image.ID,
		SequenceToken: pos,
		Kind:          kind,
		NewImage:      image,
		Time:          time.Now().UnixNano(),
	}
	imageJSON, err := json.Marshal(image)
	if err != nil {
		return domain.ChangeEntry{}, err
	}
	ent := changeEntity{
		Entity: aztables.Entity{
			PartitionKey: feedPartition,
			RowKey:       feedRowKey(pos),
		},
		RecordID:      entry.RecordID,
		SequenceToken: entry.SequenceToken,
		Kind:          string(entry.Kind),
		NewImage:      string(imageJSON),
		ChangeTime:    entry.Time,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.ChangeEntry{}, err
	}
	if _, err := s.changes.AddEntity(ctx, payload, nil); err != nil {
		return domain.ChangeEntry{}, &domain.UnavailableError{Dependency: "change feed", Err: err}
	}
	return entry, nil
}

// ReadBatch returns up to max entries newer than the checkpoint, oldest
// first, plus the checkpoint of the last entry returned.
func (s *Storage) ReadBatch(ctx context.Context, after capture.Checkpoint, max int) ([]domain.ChangeEntry, capture.Checkpoint, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", feedPartition)
	if after != "" {
		filter += fmt.Sprintf(" and RowKey gt '%s'", string(after))
	}
	options := &aztables.ListEntitiesOptions{Filter: &filter}
	if max > 0 {
		top := int32(max)
		options.Top = &top
	}

	pager := s.changes.NewListEntitiesPager(options)
	entries := []domain.ChangeEntry{}
	next := after
	for pager.More() && (max <= 0 || len(entries) < max) {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, after, &domain.UnavailableError{Dependency: "change feed", Err: err}
		}
		for _, raw := range resp.Entities {
			var ent changeEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, after, err
			}
			entry, err := ent.toEntry()
			if err != nil {
				return nil, after, err
			}
			entries = append(entries, entry)
			next = capture.Checkpoint(ent.RowKey)
			if max > 0 && len(entries) == max {
				break
			}
		}
	}
	return entries, next, nil
}

// LatestCheckpoint walks to the newest retained entry so a fresh reader can
// start from "latest".
func (s *Storage) LatestCheckpoint(ctx context.Context) (capture.Checkpoint, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", feedPartition)
	pager := s.changes.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var last capture.Checkpoint
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return "", &domain.UnavailableError{Dependency: "change feed", Err: err}
		}
		for _, raw := range resp.Entities {
			var ent changeEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return "", err
			}
			last = capture.Checkpoint(ent.RowKey)
		}
	}
	return last, nil
}

// Prune deletes entries older than the retention cutoff. Feed row keys are
// zero-padded append timestamps, so age compares lexicographically.
func (s *Storage) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and RowKey lt '%s'", feedPartition, feedRowKey(olderThan.UnixNano()))
	pager := s.changes.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	pruned := 0
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return pruned, &domain.UnavailableError{Dependency: "change feed", Err: err}
		}
		for _, raw := range resp.Entities {
			var ent changeEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return pruned, err
			}
			if _, err := s.changes.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil {
				return pruned, &domain.UnavailableError{Dependency: "change feed", Err: err}
			}
			pruned++
		}
	}
	return pruned, nil
}

func (e changeEntity) toEntry() (domain.ChangeEntry, error) {
	var image domain.Person
	if err := json.Unmarshal([]byte(e.NewImage), &image); err != nil {
		return domain.ChangeEntry{}, fmt.Errorf("decode change image %s: %w", e.RowKey, err)
	}
	return domain.ChangeEntry{
		RecordID:      e.RecordID,
		SequenceToken: e.SequenceToken,
		Kind:          domain.ChangeKind(e.Kind),
		NewImage:      image,
		Time:          e.ChangeTime,
	}, nil
}

type checkpointEntity struct {
	aztables.Entity
	Value string `json:"Value"`
}

// Load returns the persisted relay checkpoint, or empty when none exists.
func (s *Storage) Load(ctx context.Context) (capture.Checkpoint, error) {
	resp, err := s.checkpoints.GetEntity(ctx, checkpointPartition, checkpointRow, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return "", nil
		}
		return "", &domain.UnavailableError{Dependency: "checkpoint store", Err: err}
	}
	var ent checkpointEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return "", err
	}
	return capture.Checkpoint(ent.Value), nil
}

// Save persists the relay checkpoint.
func (s *Storage) Save(ctx context.Context, cp capture.Checkpoint) error {
	ent := checkpointEntity{
		Entity: aztables.Entity{PartitionKey: checkpointPartition, RowKey: checkpointRow},
		Value:  string(cp),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.checkpoints.UpsertEntity(ctx, payload, nil); err != nil {
		return &domain.UnavailableError{Dependency: "checkpoint store", Err: err}
	}
	return nil
}

func feedRowKey(ts int64) string {
	return fmt.Sprintf("%020d", ts)
}

var lastTimestamp int64

// nextTimestamp returns strictly increasing nanosecond timestamps within
// this process, used as feed row keys.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
