package notification

import (
	"context"
	"log/slog"
)

// Publisher fans a stored notification out to realtime consumers.
type Publisher interface {
	Publish(ctx context.Context, recipientID string, payload []byte) error
}

// Dispatcher turns lifecycle transition events into durable notification
// records. Dispatch is at-least-once and fire-and-forget: it never returns an
// error to the state machine that triggered it. Failures are logged and
// swallowed so a broken notification path cannot fail a committed transition.
type Dispatcher struct {
	store     Store
	publisher Publisher
	email     EmailSender
	logger    *slog.Logger
}

func NewDispatcher(store Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, logger: logger}
}

// WithPublisher attaches a realtime fanout publisher.
func (d *Dispatcher) WithPublisher(p Publisher) *Dispatcher {
	d.publisher = p
	return d
}

// WithEmail attaches a best-effort email collaborator.
func (d *Dispatcher) WithEmail(sender EmailSender) *Dispatcher {
	d.email = sender
	return d
}

// Dispatch persists the notification and fans it out. Callers invoke it after
// their own transaction has committed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	if ev.RecipientID == "" || ev.Kind == "" {
		d.logger.Warn("notification: dropping malformed event", "kind", ev.Kind)
		return
	}

	rec, err := d.store.Insert(ctx, ev)
	if err != nil {
		d.logger.Error("notification: persist failed", "kind", ev.Kind, "recipient", ev.RecipientID, "err", err)
		return
	}

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, rec.RecipientID, rec.Payload); err != nil {
			d.logger.Warn("notification: realtime publish failed", "id", rec.ID, "err", err)
		}
	}

	if d.email != nil {
		if err := d.email.Send(ctx, ev.RecipientID, ev.Kind, ev.Payload); err != nil {
			d.logger.Warn("notification: email delivery failed", "id", rec.ID, "err", err)
		}
	}
}

// List returns the most recent notifications for the recipient.
func (d *Dispatcher) List(ctx context.Context, recipientID string, limit int) ([]Record, error) {
	return d.store.List(ctx, recipientID, limit)
}

// UnreadCount returns the recipient's unread notification count.
func (d *Dispatcher) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return d.store.UnreadCount(ctx, recipientID)
}

// MarkRead flips the read flag on one of the recipient's notifications.
func (d *Dispatcher) MarkRead(ctx context.Context, recipientID, id string) (Record, error) {
	return d.store.MarkRead(ctx, recipientID, id)
}

// MarkAllRead flips the read flag on all of the recipient's notifications.
func (d *Dispatcher) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	return d.store.MarkAllRead(ctx, recipientID)
}
