package storage

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/grvram01/person-service-repo/domain"
)

func TestQueuedEventFromTextDecodesValidEvents(t *testing.T) {
	ev := domain.Event{
		ID:       "ev-1",
		Source:   domain.EventSource,
		Type:     domain.TypeRecordChanged,
		RecordID: "p1",
		Detail:   json.RawMessage(`{"recordId":"p1"}`),
		Time:     42,
	}
	text, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	queued := queuedEventFromText(string(text), "msg-1", "pop-1")
	if queued.DecodeErr != nil {
		t.Fatalf("unexpected decode error: %v", queued.DecodeErr)
	}
	if queued.Event.ID != ev.ID || queued.Event.Source != ev.Source || queued.Event.RecordID != ev.RecordID {
		t.Fatalf("event fields lost: %+v", queued.Event)
	}
	if queued.MessageID != "msg-1" || queued.PopReceipt != "pop-1" {
		t.Fatalf("receipt fields lost: %s/%s", queued.MessageID, queued.PopReceipt)
	}
}

func TestQueuedEventFromTextKeepsUndecodablePayloads(t *testing.T) {
	// A corrupt message must still carry its receipt and raw body so the
	// caller can park it on the dead-letter queue and acknowledge it.
	queued := queuedEventFromText("not json", "msg-1", "pop-1")
	if queued.DecodeErr == nil {
		t.Fatal("expected a decode error")
	}
	if queued.Raw != "not json" {
		t.Fatalf("raw payload lost: %q", queued.Raw)
	}
	if queued.MessageID != "msg-1" || queued.PopReceipt != "pop-1" {
		t.Fatalf("receipt fields lost: %s/%s", queued.MessageID, queued.PopReceipt)
	}
}

func TestDeadLetterPayloadForEvent(t *testing.T) {
	ev := domain.Event{ID: "ev-1", Source: domain.EventSource, Type: domain.TypeRecordChanged}
	payload, err := deadLetterPayload(&ev, "", "notifier", errors.New("handler failure"))
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	var env deadLetterEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Consumer != "notifier" || env.Cause != "handler failure" {
		t.Fatalf("envelope fields lost: %+v", env)
	}
	if env.Event == nil || env.Event.ID != "ev-1" {
		t.Fatalf("event lost: %+v", env.Event)
	}
}

func TestDeadLetterPayloadForRawMessage(t *testing.T) {
	raw := `{"truncated":`
	payload, err := deadLetterPayload(nil, raw, "router", errors.New("unexpected end of JSON input"))
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	var env deadLetterEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Raw != raw {
		t.Fatalf("raw payload lost: %q", env.Raw)
	}
	if env.Event != nil {
		t.Fatalf("raw envelope must not carry an event: %+v", env.Event)
	}
}
