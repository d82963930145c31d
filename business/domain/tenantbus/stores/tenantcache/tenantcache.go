// Package tenantcache contains tenant related CRUD functionality with a
// read-through cache. Tenant rows are resolved on every request by the
// middleware, so lookups by ID and by subdomain are both cached.
package tenantcache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/order"
	"github.com/schoolplane/platform/business/sdk/page"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/viccon/sturdyc"
)

// Store manages the set of APIs for tenant data and caching.
type Store struct {
	log    *logger.Logger
	storer tenantbus.Storer
	cache  *sturdyc.Client[tenantbus.Tenant]
}

// NewStore constructs the api for data and caching access.
func NewStore(log *logger.Logger, storer tenantbus.Storer, capacity int, ttl time.Duration) *Store {
	const numShards = 16
	const evictionPercentage = 10

	return &Store{
		log:    log,
		storer: storer,
		cache:  sturdyc.New[tenantbus.Tenant](capacity, numShards, ttl, evictionPercentage),
	}
}

// NewWithTx constructs a new Store value replacing the storer value with a
// storer value that is currently inside a transaction. The cache is shared
// so writes inside the transaction invalidate it for everyone.
func (s *Store) NewWithTx(tx sqldb.CommitRollbacker) (tenantbus.Storer, error) {
	storer, err := s.storer.NewWithTx(tx)
	if err != nil {
		return nil, err
	}

	store := Store{
		log:    s.log,
		storer: storer,
		cache:  s.cache,
	}

	return &store, nil
}

// Create inserts a new tenant into the database.
func (s *Store) Create(ctx context.Context, t tenantbus.Tenant) error {
	if err := s.storer.Create(ctx, t); err != nil {
		return err
	}

	s.writeCache(t)

	return nil
}

// Update replaces a tenant document in the database.
func (s *Store) Update(ctx context.Context, t tenantbus.Tenant) error {
	if err := s.storer.Update(ctx, t); err != nil {
		return err
	}

	s.writeCache(t)

	return nil
}

// Delete removes a tenant from the database.
func (s *Store) Delete(ctx context.Context, t tenantbus.Tenant) error {
	if err := s.storer.Delete(ctx, t); err != nil {
		return err
	}

	s.deleteCache(t)

	return nil
}

// Query retrieves a list of existing tenants from the database.
func (s *Store) Query(ctx context.Context, filter tenantbus.QueryFilter, orderBy order.By, page page.Page) ([]tenantbus.Tenant, error) {
	return s.storer.Query(ctx, filter, orderBy, page)
}

// Count returns the total number of tenants in the DB.
func (s *Store) Count(ctx context.Context, filter tenantbus.QueryFilter) (int, error) {
	return s.storer.Count(ctx, filter)
}

// QueryByID gets the specified tenant from the database.
func (s *Store) QueryByID(ctx context.Context, tenantID uuid.UUID) (tenantbus.Tenant, error) {
	cached, ok := s.readCache(tenantID.String())
	if ok {
		return cached, nil
	}

	t, err := s.storer.QueryByID(ctx, tenantID)
	if err != nil {
		return tenantbus.Tenant{}, err
	}

	s.writeCache(t)

	return t, nil
}

// QueryBySubdomain gets the tenant owning the specified subdomain label.
func (s *Store) QueryBySubdomain(ctx context.Context, sub string) (tenantbus.Tenant, error) {
	cached, ok := s.readCache(sub)
	if ok {
		return cached, nil
	}

	t, err := s.storer.QueryBySubdomain(ctx, sub)
	if err != nil {
		return tenantbus.Tenant{}, err
	}

	s.writeCache(t)

	return t, nil
}

// Invalidate drops the cached entries for the tenant. Called after
// transitions that bypass this store's write path.
func (s *Store) Invalidate(t tenantbus.Tenant) {
	s.deleteCache(t)
}

// =============================================================================

func (s *Store) readCache(key string) (tenantbus.Tenant, bool) {
	t, exists := s.cache.Get(key)
	if !exists {
		return tenantbus.Tenant{}, false
	}

	return t, true
}

func (s *Store) writeCache(t tenantbus.Tenant) {
	s.cache.Set(t.ID.String(), t)
	s.cache.Set(t.Subdomain.String(), t)
}

func (s *Store) deleteCache(t tenantbus.Tenant) {
	s.cache.Delete(t.ID.String())
	s.cache.Delete(t.Subdomain.String())
}
