package storage

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/grvram01/person-service-repo/domain"
)

func TestStoreErrorMaps404ToNotFound(t *testing.T) {
	respErr := &azcore.ResponseError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  "ResourceNotFound",
	}
	if !errors.Is(storeError(respErr), domain.ErrNotFound) {
		t.Fatal("404 response must map to ErrNotFound")
	}
	wrapped := fmt.Errorf("get entity: %w", respErr)
	if !errors.Is(storeError(wrapped), domain.ErrNotFound) {
		t.Fatal("wrapped 404 response must map to ErrNotFound")
	}
}

func TestStoreErrorWrapsOtherFailuresAsUnavailable(t *testing.T) {
	respErr := &azcore.ResponseError{StatusCode: http.StatusServiceUnavailable}
	err := storeError(respErr)
	var unavailable *domain.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %T", err)
	}
	if unavailable.Dependency != "record store" {
		t.Fatalf("unexpected dependency: %s", unavailable.Dependency)
	}
	if !errors.Is(err, respErr) {
		t.Fatal("original error must stay reachable through Unwrap")
	}
}

func TestPersonEntityRoundTrip(t *testing.T) {
	p := domain.Person{
		ID:          "p1",
		FirstName:   "Tony",
		LastName:    "Stark",
		Address:     "123 Main St",
		PhoneNumber: "1234567890",
	}
	ent := personToEntity(p)
	if ent.PartitionKey != p.ID || ent.RowKey != p.ID {
		t.Fatalf("entity keys must both be the person id: %s/%s", ent.PartitionKey, ent.RowKey)
	}
	if got := ent.toPerson(); got != p {
		t.Fatalf("round trip lost fields: %+v", got)
	}
}

func TestChangeEntityToEntry(t *testing.T) {
	ent := changeEntity{
		Entity:        aztables.Entity{PartitionKey: feedPartition, RowKey: feedRowKey(42)},
		RecordID:      "p1",
		SequenceToken: 3,
		Kind:          string(domain.ChangeUpdated),
		NewImage:      `{"personId":"p1","firstName":"Tony","lastName":"Stark","address":"123 Main St","phoneNumber":"1234567890"}`,
		ChangeTime:    99,
	}
	entry, err := ent.toEntry()
	if err != nil {
		t.Fatalf("toEntry: %v", err)
	}
	if entry.RecordID != "p1" || entry.SequenceToken != 3 || entry.Kind != domain.ChangeUpdated || entry.Time != 99 {
		t.Fatalf("entry fields lost: %+v", entry)
	}
	if entry.NewImage.FirstName != "Tony" || entry.NewImage.PhoneNumber != "1234567890" {
		t.Fatalf("image fields lost: %+v", entry.NewImage)
	}
}

func TestChangeEntityToEntryRejectsCorruptImage(t *testing.T) {
	ent := changeEntity{NewImage: "not json"}
	if _, err := ent.toEntry(); err == nil {
		t.Fatal("expected a decode error for a corrupt image")
	}
}

func TestFeedRowKeysOrderLexicographically(t *testing.T) {
	timestamps := []int64{1, 9, 10, 99, 100, 1_000_000_000, time.Now().UnixNano()}
	prev := ""
	for _, ts := range timestamps {
		key := feedRowKey(ts)
		if len(key) != 20 {
			t.Fatalf("row key must be zero padded to 20 chars: %q", key)
		}
		if key <= prev {
			t.Fatalf("row keys out of order: %q <= %q", key, prev)
		}
		prev = key
	}
}

func TestNextTimestampIsStrictlyIncreasing(t *testing.T) {
	prev := nextTimestamp()
	for i := 0; i < 1000; i++ {
		ts := nextTimestamp()
		if ts <= prev {
			t.Fatalf("timestamp regressed: %d after %d", ts, prev)
		}
		prev = ts
	}
}

func TestNextTimestampUniqueUnderConcurrentAllocation(t *testing.T) {
	// Sequence tokens are allocated from this counter; racing mutations of
	// one record must never end up with the same token.
	const (
		workers = 8
		perWork = 500
	)
	results := make(chan int64, workers*perWork)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				results <- nextTimestamp()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, workers*perWork)
	for ts := range results {
		if seen[ts] {
			t.Fatalf("duplicate timestamp allocated: %d", ts)
		}
		seen[ts] = true
	}
}
