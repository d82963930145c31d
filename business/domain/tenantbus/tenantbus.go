// Package tenantbus provides business access to tenant accounts in the
// control plane.
package tenantbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/sdk/order"
	"github.com/schoolplane/platform/business/sdk/page"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/business/sdk/vault"
	"github.com/schoolplane/platform/business/types/descriptor"
	"github.com/schoolplane/platform/business/types/subscription"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/schoolplane/platform/foundation/otel"
)

// Set of error variables for tenant operations.
var (
	ErrNotFound        = errors.New("tenant not found")
	ErrUniqueSubdomain = errors.New("subdomain is not unique")
)

// Storer defines the behavior required by the tenantbus to interact with the
// database.
type Storer interface {
	NewWithTx(tx sqldb.CommitRollbacker) (Storer, error)
	Create(ctx context.Context, t Tenant) error
	Update(ctx context.Context, t Tenant) error
	Delete(ctx context.Context, t Tenant) error
	Query(ctx context.Context, filter QueryFilter, orderBy order.By, page page.Page) ([]Tenant, error)
	Count(ctx context.Context, filter QueryFilter) (int, error)
	QueryByID(ctx context.Context, tenantID uuid.UUID) (Tenant, error)
	QueryBySubdomain(ctx context.Context, sub string) (Tenant, error)
}

// Core manages the set of APIs for tenant access.
type Core struct {
	storer Storer
	vault  *vault.Vault
	log    *logger.Logger
}

// NewCore constructs a core for tenant api access.
func NewCore(log *logger.Logger, vlt *vault.Vault, storer Storer) *Core {
	return &Core{
		storer: storer,
		vault:  vlt,
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

	return NewCore(c.log, c.vault, storer), nil
}

// Create adds a new tenant to the system. The account starts its trial at
// creation time.
func (c *Core) Create(ctx context.Context, nt NewTenant) (Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.tenantbus.create")
	defer span.End()

	now := time.Now()

	t := Tenant{
		ID:                 uuid.New(),
		Name:               nt.Name,
		Subdomain:          nt.Subdomain,
		ContactEmail:       nt.ContactEmail,
		Status:             subscription.Trial,
		Credentials:        nt.Credentials,
		TrialStart:         now,
		SubscriptionExpiry: nt.SubscriptionExpiry,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := c.storer.Create(ctx, t); err != nil {
		return Tenant{}, fmt.Errorf("create: %w", err)
	}

	return t, nil
}

// Update modifies contact data about a tenant. Subscription state is owned
// by the lifecycle and never changes through this path.
func (c *Core) Update(ctx context.Context, t Tenant, ut UpdateTenant) (Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.tenantbus.update")
	defer span.End()

	if ut.Name != nil {
		t.Name = *ut.Name
	}

	if ut.ContactEmail != nil {
		t.ContactEmail = *ut.ContactEmail
	}

	t.UpdatedAt = time.Now()

	if err := c.storer.Update(ctx, t); err != nil {
		return Tenant{}, fmt.Errorf("update: %w", err)
	}

	return t, nil
}

// Delete removes the specified tenant from the system.
func (c *Core) Delete(ctx context.Context, t Tenant) error {
	ctx, span := otel.AddSpan(ctx, "business.tenantbus.delete")
	defer span.End()

	if err := c.storer.Delete(ctx, t); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	c.vault.Invalidate(t.ID)

	return nil
}

// Query retrieves a list of existing tenants.
func (c *Core) Query(ctx context.Context, filter QueryFilter, orderBy order.By, page page.Page) ([]Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.tenantbus.query")
	defer span.End()

	tenants, err := c.storer.Query(ctx, filter, orderBy, page)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	return tenants, nil
}

// Count returns the total number of tenants.
func (c *Core) Count(ctx context.Context, filter QueryFilter) (int, error) {
	ctx, span := otel.AddSpan(ctx, "business.tenantbus.count")
	defer span.End()

	return c.storer.Count(ctx, filter)
}

// QueryByID finds the tenant by the specified ID.
func (c *Core) QueryByID(ctx context.Context, tenantID uuid.UUID) (Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.tenantbus.querybyid")
	defer span.End()

	tenant, err := c.storer.QueryByID(ctx, tenantID)
	if err != nil {
		return Tenant{}, fmt.Errorf("query: tenantID[%s]: %w", tenantID, err)
	}

	return tenant, nil
}

// QueryBySubdomain finds the tenant owning the specified subdomain label.
func (c *Core) QueryBySubdomain(ctx context.Context, sub string) (Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.tenantbus.querybysubdomain")
	defer span.End()

	tenant, err := c.storer.QueryBySubdomain(ctx, sub)
	if err != nil {
		return Tenant{}, fmt.Errorf("query: subdomain[%s]: %w", sub, err)
	}

	return tenant, nil
}

// QueryByKey resolves a tenant by ID when the key parses as a UUID,
// otherwise by subdomain label.
func (c *Core) QueryByKey(ctx context.Context, key string) (Tenant, error) {
	if id, err := uuid.Parse(key); err == nil {
		return c.QueryByID(ctx, id)
	}

	return c.QueryBySubdomain(ctx, key)
}

// Credentials returns the decrypted connection material for the tenant.
func (c *Core) Credentials(ctx context.Context, tenantID uuid.UUID) (vault.Credentials, error) {
	ctx, span := otel.AddSpan(ctx, "business.tenantbus.credentials")
	defer span.End()

	t, err := c.storer.QueryByID(ctx, tenantID)
	if err != nil {
		return vault.Credentials{}, fmt.Errorf("query: tenantID[%s]: %w", tenantID, err)
	}

	creds, err := c.vault.DecryptCredentials(ctx, t.ID, t.Credentials)
	if err != nil {
		return vault.Credentials{}, fmt.Errorf("decrypt credentials: tenantID[%s]: %w", tenantID, err)
	}

	return creds, nil
}

// RotateCredentials re-encrypts new connection material for the tenant and
// stores it. Live pools keep running on the old credentials until the caller
// evicts them from the router.
func (c *Core) RotateCredentials(ctx context.Context, t Tenant, d descriptor.Descriptor, secret string) (Tenant, error) {
	ctx, span := otel.AddSpan(ctx, "business.tenantbus.rotatecredentials")
	defer span.End()

	enc, err := c.vault.Rotate(ctx, t.ID, d, secret)
	if err != nil {
		return Tenant{}, fmt.Errorf("rotate: %w", err)
	}

	t.Credentials = enc
	t.UpdatedAt = time.Now()

	if err := c.storer.Update(ctx, t); err != nil {
		return Tenant{}, fmt.Errorf("update: %w", err)
	}

	return t, nil
}
