// Package notifybus provides business access to the tenant notification
// queue. Lifecycle transitions enqueue rows inside their own transaction so a
// notification is never recorded for a state change that rolled back.
// Delivery happens out of band.
package notifybus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/schoolplane/platform/foundation/otel"
)

// DeliverFunc sends one notification to the outside world. The dispatcher
// treats a returned error as a delivery failure for that row only.
type DeliverFunc func(ctx context.Context, n Notification) error

// Storer defines the behavior required by the notifybus to interact with the
// database.
type Storer interface {
	NewWithTx(tx sqldb.CommitRollbacker) (Storer, error)
	Create(ctx context.Context, n Notification) error
	Update(ctx context.Context, n Notification) error
	QueryPending(ctx context.Context, limit int) ([]Notification, error)
}

// Core manages the set of APIs for notification queue access.
type Core struct {
	storer Storer
	log    *logger.Logger
}

// NewCore constructs a core for notification queue access.
func NewCore(log *logger.Logger, storer Storer) *Core {
	return &Core{
		storer: storer,
		log:    log,
	}
}

// NewWithTx constructs a new Core value replacing the Storer
// value with a Storer value that is currently inside a transaction.
func (c *Core) NewWithTx(tx sqldb.CommitRollbacker) (*Core, error) {
	storer, err := c.storer.NewWithTx(tx)
	if err != nil {
		return nil, fmt.Errorf("newWithTx: %w", err)
	}

	return NewCore(c.log, storer), nil
}

// Enqueue adds a new pending notification to the queue.
func (c *Core) Enqueue(ctx context.Context, nn NewNotification) (Notification, error) {
	ctx, span := otel.AddSpan(ctx, "business.notifybus.enqueue")
	defer span.End()

	n := Notification{
		ID:        uuid.New(),
		TenantID:  nn.TenantID,
		Channel:   ChannelEmail,
		Recipient: nn.Recipient,
		Template:  nn.Template,
		Payload:   nn.Payload,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	if err := c.storer.Create(ctx, n); err != nil {
		return Notification{}, fmt.Errorf("create: %w", err)
	}

	return n, nil
}

// QueryPending returns up to limit notifications awaiting delivery, oldest
// first.
func (c *Core) QueryPending(ctx context.Context, limit int) ([]Notification, error) {
	ctx, span := otel.AddSpan(ctx, "business.notifybus.querypending")
	defer span.End()

	ns, err := c.storer.QueryPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("querypending: %w", err)
	}

	return ns, nil
}

// MarkSent records a successful delivery.
func (c *Core) MarkSent(ctx context.Context, n Notification) (Notification, error) {
	ctx, span := otel.AddSpan(ctx, "business.notifybus.marksent")
	defer span.End()

	now := time.Now()
	n.Status = StatusSent
	n.SentAt = &now

	if err := c.storer.Update(ctx, n); err != nil {
		return Notification{}, fmt.Errorf("update: %w", err)
	}

	return n, nil
}

// Dispatch drains up to limit pending notifications through the deliver
// func, oldest first. Each row is marked sent or failed on its own; one
// delivery failure does not stop the batch. Returns the sent and failed
// counts.
func (c *Core) Dispatch(ctx context.Context, deliver DeliverFunc, limit int) (int, int, error) {
	ctx, span := otel.AddSpan(ctx, "business.notifybus.dispatch")
	defer span.End()

	ns, err := c.QueryPending(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("querypending: %w", err)
	}

	var sent, failed int

	for _, n := range ns {
		if err := deliver(ctx, n); err != nil {
			failed++
			c.log.Error(ctx, "notify: delivery failed", "notification_id", n.ID, "template", n.Template, "err", err)

			if _, err := c.MarkFailed(ctx, n, err.Error()); err != nil {
				return sent, failed, fmt.Errorf("markfailed: notificationID[%s]: %w", n.ID, err)
			}

			continue
		}

		sent++

		if _, err := c.MarkSent(ctx, n); err != nil {
			return sent, failed, fmt.Errorf("marksent: notificationID[%s]: %w", n.ID, err)
		}
	}

	return sent, failed, nil
}

// MarkFailed records a delivery failure so the row can be retried or
// inspected.
func (c *Core) MarkFailed(ctx context.Context, n Notification, reason string) (Notification, error) {
	ctx, span := otel.AddSpan(ctx, "business.notifybus.markfailed")
	defer span.End()

	n.Status = StatusFailed
	n.FailReason = reason

	if err := c.storer.Update(ctx, n); err != nil {
		return Notification{}, fmt.Errorf("update: %w", err)
	}

	return n, nil
}
