// Package lifecyclebus owns the subscription state machine. Every transition
// runs inside a single transaction that locks the tenant row, updates it, and
// appends the audit entry, so concurrent transitions on the same tenant
// serialize instead of racing.
package lifecyclebus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/domain/notifybus"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/business/types/subscription"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/schoolplane/platform/foundation/otel"
)

// Set of error variables for lifecycle operations.
var (
	ErrNotFound          = errors.New("tenant not found")
	ErrInvalidTransition = errors.New("invalid subscription transition")
	ErrReasonRequired    = errors.New("suspension reason must be at least 10 characters")
	ErrInvalidExtension  = errors.New("extension days must be positive")
)

// Storer defines the behavior required by the lifecyclebus to interact with
// the database.
type Storer interface {
	NewWithTx(tx sqldb.CommitRollbacker) (Storer, error)
	QueryByIDForUpdate(ctx context.Context, tenantID uuid.UUID) (tenantbus.Tenant, error)
	Update(ctx context.Context, t tenantbus.Tenant) error
	QueryExpiredIDs(ctx context.Context, status subscription.Status, before time.Time) ([]uuid.UUID, error)
}

// CacheInvalidator drops a tenant's cached runtime config after a
// transition so the next request observes the new status.
type CacheInvalidator interface {
	Invalidate(t tenantbus.Tenant)
}

// Core manages the set of APIs for subscription lifecycle access.
type Core struct {
	storer      Storer
	audit       *auditbus.Core
	notify      *notifybus.Core
	invalidator CacheInvalidator
	beginner    sqldb.Beginner
	log         *logger.Logger
}

// NewCore constructs a core for subscription lifecycle access.
func NewCore(log *logger.Logger, beginner sqldb.Beginner, storer Storer, audit *auditbus.Core, notify *notifybus.Core, invalidator CacheInvalidator) *Core {
	return &Core{
		storer:      storer,
		audit:       audit,
		notify:      notify,
		invalidator: invalidator,
		beginner:    beginner,
		log:         log,
	}
}

// Validate evaluates a tenant's subscription for a single request. It is a
// pure function of the inputs and performs no transition.
func Validate(status subscription.Status, expiry *time.Time, now time.Time) Decision {
	switch {
	case status.Equal(subscription.Suspended):
		return Decision{Reason: ReasonSuspended}

	case status.Equal(subscription.Churned):
		return Decision{Reason: ReasonClosed}

	case status.Equal(subscription.Locked):
		return Decision{Reason: ReasonPaymentRequired, Expiry: expiry}
	}

	if expiry == nil {
		return Decision{Allowed: true}
	}

	switch {
	case now.After(expiry.Add(GracePeriod)):
		return Decision{Reason: ReasonPaymentRequired, Expiry: expiry}

	case now.After(*expiry):
		return Decision{
			Allowed: true,
			Warning: "subscription expired, access ends when the grace period lapses",
			Expiry:  expiry,
		}
	}

	return Decision{Allowed: true}
}

// Activate approves a payment for a trialing tenant.
func (c *Core) Activate(ctx context.Context, act Activation) (tenantbus.Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.lifecyclebus.activate")
	defer span.End()

	return c.transition(ctx, act.TenantID, act.Actor, ActionActivated, act.PaymentRef, "", func(t *tenantbus.Tenant, now time.Time) error {
		if !t.Status.Equal(subscription.Trial) {
			return fmt.Errorf("%s to active: %w", t.Status, ErrInvalidTransition)
		}

		t.Status = subscription.Active
		t.LastPaymentAt = &now

		return nil
	})
}

// Unlock reopens a locked account and pushes out its expiry.
func (c *Core) Unlock(ctx context.Context, ul Unlock) (tenantbus.Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.lifecyclebus.unlock")
	defer span.End()

	if ul.ExtensionDays <= 0 {
		return tenantbus.Tenant{}, ErrInvalidExtension
	}

	return c.transition(ctx, ul.TenantID, ul.Actor, ActionUnlocked, ul.PaymentRef, "", func(t *tenantbus.Tenant, now time.Time) error {
		if !t.Status.Equal(subscription.Locked) {
			return fmt.Errorf("%s to active: %w", t.Status, ErrInvalidTransition)
		}

		t.Status = subscription.Active
		t.LastPaymentAt = &now
		extendExpiry(t, now, ul.ExtensionDays)

		return nil
	})
}

// Extend pushes out the expiry without changing status. The extension adds
// to the current expiry, not to now, so a tenant that expired yesterday and
// buys 30 days gets 29 usable days.
func (c *Core) Extend(ctx context.Context, ext Extension) (tenantbus.Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.lifecyclebus.extend")
	defer span.End()

	if ext.ExtensionDays <= 0 {
		return tenantbus.Tenant{}, ErrInvalidExtension
	}

	return c.transition(ctx, ext.TenantID, ext.Actor, ActionExtended, ext.PaymentRef, "", func(t *tenantbus.Tenant, now time.Time) error {
		if t.Status.Terminal() {
			return fmt.Errorf("extend %s: %w", t.Status, ErrInvalidTransition)
		}

		extendExpiry(t, now, ext.ExtensionDays)

		return nil
	})
}

// Suspend forcibly closes access to an account pending review.
func (c *Core) Suspend(ctx context.Context, sus Suspension) (tenantbus.Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.lifecyclebus.suspend")
	defer span.End()

	if len(sus.Reason) < 10 {
		return tenantbus.Tenant{}, ErrReasonRequired
	}

	// Suspension is allowed from any status, churned included; the audit
	// entry keeps the previous status so the hold can be reversed later.
	return c.transition(ctx, sus.TenantID, sus.Actor, ActionSuspended, sus.Reason, notifybus.TemplateAccountSuspended, func(t *tenantbus.Tenant, now time.Time) error {
		t.Status = subscription.Suspended

		return nil
	})
}

// Churn closes an account and starts the retention clock.
func (c *Core) Churn(ctx context.Context, ch Churn) (tenantbus.Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.lifecyclebus.churn")
	defer span.End()

	return c.transition(ctx, ch.TenantID, ch.Actor, ActionChurned, ch.Reason, notifybus.TemplateAccountChurned, func(t *tenantbus.Tenant, now time.Time) error {
		if t.Status.Equal(subscription.Churned) {
			return fmt.Errorf("churned to churned: %w", ErrInvalidTransition)
		}

		deadline := now.Add(RetentionWindow)
		t.Status = subscription.Churned
		t.RetentionDeadline = &deadline

		return nil
	})
}

// SweepGrace moves every active tenant past its expiry into grace. Each
// tenant transitions in its own transaction; a failure on one tenant does
// not stop the sweep. Returns how many tenants transitioned.
func (c *Core) SweepGrace(ctx context.Context) (int, error) {
	ctx, span := otel.AddSpan(ctx, "business.lifecyclebus.sweepgrace")
	defer span.End()

	now := time.Now()

	ids, err := c.storer.QueryExpiredIDs(ctx, subscription.Active, now)
	if err != nil {
		return 0, fmt.Errorf("queryexpiredids: %w", err)
	}

	var swept int
	for _, tenantID := range ids {
		_, err := c.transition(ctx, tenantID, nil, ActionGraceSwept, "subscription expired", notifybus.TemplateGraceEntered, func(t *tenantbus.Tenant, now time.Time) error {
			// Re-check under lock: another sweep or an admin may have
			// moved the tenant since the candidate query ran.
			if !t.Status.Equal(subscription.Active) || t.SubscriptionExpiry == nil || !now.After(*t.SubscriptionExpiry) {
				return fmt.Errorf("grace sweep no longer eligible: %w", ErrInvalidTransition)
			}

			t.Status = subscription.Grace

			return nil
		})

		switch {
		case err == nil:
			swept++
		case errors.Is(err, ErrInvalidTransition):
			continue
		default:
			c.log.Error(ctx, "lifecycle: grace sweep", "tenant_id", tenantID, "err", err)
		}
	}

	return swept, nil
}

// SweepLocked moves every tenant whose grace window lapsed into locked.
func (c *Core) SweepLocked(ctx context.Context) (int, error) {
	ctx, span := otel.AddSpan(ctx, "business.lifecyclebus.sweeplocked")
	defer span.End()

	now := time.Now()

	ids, err := c.storer.QueryExpiredIDs(ctx, subscription.Grace, now.Add(-GracePeriod))
	if err != nil {
		return 0, fmt.Errorf("queryexpiredids: %w", err)
	}

	var swept int
	for _, tenantID := range ids {
		_, err := c.transition(ctx, tenantID, nil, ActionLockedSwept, "grace period lapsed", notifybus.TemplateAccountLocked, func(t *tenantbus.Tenant, now time.Time) error {
			if !t.Status.Equal(subscription.Grace) || t.SubscriptionExpiry == nil || !now.After(t.SubscriptionExpiry.Add(GracePeriod)) {
				return fmt.Errorf("lock sweep no longer eligible: %w", ErrInvalidTransition)
			}

			t.Status = subscription.Locked

			return nil
		})

		switch {
		case err == nil:
			swept++
		case errors.Is(err, ErrInvalidTransition):
			continue
		default:
			c.log.Error(ctx, "lifecycle: lock sweep", "tenant_id", tenantID, "err", err)
		}
	}

	return swept, nil
}

// =============================================================================

// transition runs a single state change: lock the row, apply the mutation,
// persist, audit, optionally enqueue a notification, commit. The cache entry
// for the tenant is dropped only after a successful commit.
func (c *Core) transition(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, action string, reason string, template string, apply func(t *tenantbus.Tenant, now time.Time) error) (tenantbus.Tenant, error) {
	tx, err := c.beginner.Begin()
	if err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("begin: %w", err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil {
			if errors.Is(err, sql.ErrTxDone) {
				return
			}
			c.log.Error(ctx, "lifecycle: rollback", "err", err)
		}
	}()

	storer, err := c.storer.NewWithTx(tx)
	if err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("storer newwithtx: %w", err)
	}

	audit, err := c.audit.NewWithTx(tx)
	if err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("audit newwithtx: %w", err)
	}

	notify, err := c.notify.NewWithTx(tx)
	if err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("notify newwithtx: %w", err)
	}

	t, err := storer.QueryByIDForUpdate(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenantbus.ErrNotFound) {
			return tenantbus.Tenant{}, fmt.Errorf("query: tenantID[%s]: %w", tenantID, ErrNotFound)
		}
		return tenantbus.Tenant{}, fmt.Errorf("query: tenantID[%s]: %w", tenantID, err)
	}

	now := time.Now()
	from := t.Status

	if err := apply(&t, now); err != nil {
		return tenantbus.Tenant{}, err
	}

	t.UpdatedAt = now

	if err := storer.Update(ctx, t); err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("update: %w", err)
	}

	if _, err := audit.Create(ctx, auditbus.NewEntry{
		TenantID:   t.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   t.Status,
		Actor:      actor,
		Reason:     reason,
	}); err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("audit: %w", err)
	}

	if template != "" {
		payload := map[string]string{
			"tenant": t.Name.String(),
			"status": t.Status.String(),
		}
		if t.SubscriptionExpiry != nil {
			payload["expiry"] = t.SubscriptionExpiry.UTC().Format(time.RFC3339)
		}

		if _, err := notify.Enqueue(ctx, notifybus.NewNotification{
			TenantID:  t.ID,
			Recipient: t.ContactEmail.Address,
			Template:  template,
			Payload:   payload,
		}); err != nil {
			return tenantbus.Tenant{}, fmt.Errorf("notify: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("commit: %w", err)
	}

	c.invalidator.Invalidate(t)

	c.log.Info(ctx, "lifecycle: transition", "tenant_id", t.ID, "action", action, "from", from, "to", t.Status)

	return t, nil
}

func extendExpiry(t *tenantbus.Tenant, now time.Time, days int) {
	base := now
	if t.SubscriptionExpiry != nil {
		base = *t.SubscriptionExpiry
	}

	expiry := base.Add(time.Duration(days) * 24 * time.Hour)
	t.SubscriptionExpiry = &expiry
}
