// Package auditbus provides business access to the subscription audit trail.
// Entries are append-only and always written inside the transaction of the
// state change they record.
package auditbus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/sdk/page"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/schoolplane/platform/foundation/otel"
)

// Storer defines the behavior required by the auditbus to interact with the
// database.
type Storer interface {
	NewWithTx(tx sqldb.CommitRollbacker) (Storer, error)
	Create(ctx context.Context, e Entry) error
	QueryByTenant(ctx context.Context, tenantID uuid.UUID, page page.Page) ([]Entry, error)
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// Core manages the set of APIs for audit trail access.
type Core struct {
	storer Storer
	log    *logger.Logger
}

// NewCore constructs a core for audit trail access.
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

// Create records a new audit entry. Actor is nil for entries written by
// automated sweeps.
func (c *Core) Create(ctx context.Context, ne NewEntry) (Entry, error) {
	ctx, span := otel.AddSpan(ctx, "business.auditbus.create")
	defer span.End()

	e := Entry{
		ID:         uuid.New(),
		TenantID:   ne.TenantID,
		Action:     ne.Action,
		FromStatus: ne.FromStatus,
		ToStatus:   ne.ToStatus,
		Actor:      ne.Actor,
		Reason:     ne.Reason,
		CreatedAt:  time.Now(),
	}

	if err := c.storer.Create(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("create: %w", err)
	}

	return e, nil
}

// QueryByTenant returns the audit entries for a tenant, newest first.
func (c *Core) QueryByTenant(ctx context.Context, tenantID uuid.UUID, page page.Page) ([]Entry, error) {
	ctx, span := otel.AddSpan(ctx, "business.auditbus.querybytenant")
	defer span.End()

	entries, err := c.storer.QueryByTenant(ctx, tenantID, page)
	if err != nil {
		return nil, fmt.Errorf("query: tenantID[%s]: %w", tenantID, err)
	}

	return entries, nil
}

// CountByTenant returns the total number of audit entries for a tenant.
func (c *Core) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	ctx, span := otel.AddSpan(ctx, "business.auditbus.countbytenant")
	defer span.End()

	count, err := c.storer.CountByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("count: tenantID[%s]: %w", tenantID, err)
	}

	return count, nil
}
