package consumers

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/domain"
)

// Notifier is the email-notification stub. It renders a message per event
// and logs it where a mail client call would go. Duplicate deliveries are
// absorbed through the deduper.
type Notifier struct {
	deduper Deduper
	logger  *log.Logger
}

func NewNotifier(deduper Deduper, logger *log.Logger) *Notifier {
	return &Notifier{deduper: deduper, logger: logger}
}

func (n *Notifier) Name() string { return "notifier" }

func (n *Notifier) Handle(ctx context.Context, ev domain.Event) error {
	fresh, err := n.deduper.Add(ctx, n.Name(), ev.ID)
	if err != nil {
		// Dedup is an optimization, not a correctness gate; a duplicate
		// notification beats a dropped one.
		n.logger.WithError(err).WithField("event", ev.ID).Warn("dedup check failed, delivering anyway")
		fresh = true
	}
	if !fresh {
		n.logger.WithField("event", ev.ID).Debug("duplicate event skipped")
		return nil
	}

	msg, err := renderNotification(ev)
	if err != nil {
		if rmErr := n.deduper.Remove(ctx, n.Name(), ev.ID); rmErr != nil {
			n.logger.WithError(rmErr).WithField("event", ev.ID).Warn("dedup rollback failed")
		}
		return err
	}

	n.logger.WithFields(log.Fields{
		"event":  ev.ID,
		"record": ev.RecordID,
	}).Infof("sending email notification: %s", msg)
	return nil
}

func renderNotification(ev domain.Event) (string, error) {
	var entry domain.ChangeEntry
	if err := json.Unmarshal(ev.Detail, &entry); err != nil {
		return "", fmt.Errorf("decode event detail: %w", err)
	}
	verb := "updated"
	if entry.Kind == domain.ChangeCreated {
		verb = "created"
	}
	return fmt.Sprintf("person %s %s %s (%s)", entry.NewImage.FirstName, entry.NewImage.LastName, verb, entry.RecordID), nil
}
