package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grvram01/person-service-repo/domain"
)

// Publish puts a domain event on the routing queue.
func (s *Storage) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.eventsQueue.EnqueueMessage(ctx, string(payload), nil); err != nil {
		return &domain.UnavailableError{Dependency: "event router", Err: err}
	}
	return nil
}

// QueuedEvent is one dequeued bus message. The event stays invisible, not
// deleted, until Delete is called, which is what makes delivery
// at-least-once across router crashes. A payload that does not decode as an
// event is still returned, with DecodeErr set, so the caller can park and
// acknowledge it instead of leaving it to reappear forever.
type QueuedEvent struct {
	Event      domain.Event
	Raw        string
	MessageID  string
	PopReceipt string
	DecodeErr  error
}

// Dequeue pops the next published event, or nil when the queue is empty.
func (s *Storage) Dequeue(ctx context.Context) (*QueuedEvent, error) {
	resp, err := s.eventsQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, &domain.UnavailableError{Dependency: "event queue", Err: err}
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	return queuedEventFromText(*msg.MessageText, *msg.MessageID, *msg.PopReceipt), nil
}

func queuedEventFromText(text, messageID, popReceipt string) *QueuedEvent {
	queued := &QueuedEvent{Raw: text, MessageID: messageID, PopReceipt: popReceipt}
	queued.DecodeErr = json.Unmarshal([]byte(text), &queued.Event)
	return queued
}

// Delete acknowledges a fully dispatched event.
func (s *Storage) Delete(ctx context.Context, messageID, popReceipt string) error {
	if _, err := s.eventsQueue.DeleteMessage(ctx, messageID, popReceipt, nil); err != nil {
		return &domain.UnavailableError{Dependency: "event queue", Err: err}
	}
	return nil
}

type deadLetterEnvelope struct {
	Consumer string        `json:"consumer"`
	Cause    string        `json:"cause"`
	Event    *domain.Event `json:"event,omitempty"`
	Raw      string        `json:"raw,omitempty"`
	At       int64         `json:"at"`
}

// Send parks an event a consumer gave up on, together with the failing
// consumer and the last error, on the dead-letter queue.
func (s *Storage) Send(ctx context.Context, ev domain.Event, consumer string, cause error) error {
	payload, err := deadLetterPayload(&ev, "", consumer, cause)
	if err != nil {
		return err
	}
	return s.park(ctx, payload)
}

// SendRaw parks a bus message that never decoded into an event. The payload
// travels as an opaque string so a corrupt body cannot corrupt the envelope.
func (s *Storage) SendRaw(ctx context.Context, raw string, cause error) error {
	payload, err := deadLetterPayload(nil, raw, "router", cause)
	if err != nil {
		return err
	}
	return s.park(ctx, payload)
}

func (s *Storage) park(ctx context.Context, payload []byte) error {
	if _, err := s.deadLetter.EnqueueMessage(ctx, string(payload), nil); err != nil {
		return &domain.UnavailableError{Dependency: "dead-letter queue", Err: err}
	}
	return nil
}

func deadLetterPayload(ev *domain.Event, raw, consumer string, cause error) ([]byte, error) {
	env := deadLetterEnvelope{
		Consumer: consumer,
		Event:    ev,
		Raw:      raw,
		At:       time.Now().UnixNano(),
	}
	if cause != nil {
		env.Cause = cause.Error()
	}
	return json.Marshal(env)
}
