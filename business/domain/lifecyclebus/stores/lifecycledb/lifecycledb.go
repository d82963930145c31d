// Package lifecycledb contains the row-locking tenant access used by
// subscription transitions.
package lifecycledb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/schoolplane/platform/business/domain/lifecyclebus"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/domain/tenantbus/stores/tenantdb"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/business/types/subscription"
	"github.com/schoolplane/platform/foundation/logger"
)

// Store manages the set of APIs for lifecycle database access. It reuses the
// tenantdb mapping for writes and adds the locking read.
type Store struct {
	log     *logger.Logger
	db      sqlx.ExtContext
	tenants tenantbus.Storer
}

// NewStore constructs the api for data access.
func NewStore(log *logger.Logger, db *sqlx.DB) *Store {
	return &Store{
		log:     log,
		db:      db,
		tenants: tenantdb.NewStore(log, db),
	}
}

// NewWithTx constructs a new Store value replacing the sqlx DB
// value with a sqlx DB value that is currently inside a transaction.
func (s *Store) NewWithTx(tx sqldb.CommitRollbacker) (lifecyclebus.Storer, error) {
	ec, err := sqldb.GetExtContext(tx)
	if err != nil {
		return nil, err
	}

	txTenantDB, err := s.tenants.NewWithTx(tx)
	if err != nil {
		return nil, err
	}

	store := Store{
		log:     s.log,
		db:      ec,
		tenants: txTenantDB,
	}

	return &store, nil
}

// QueryByIDForUpdate reads the tenant row and holds a row lock until the
// surrounding transaction ends.
func (s *Store) QueryByIDForUpdate(ctx context.Context, tenantID uuid.UUID) (tenantbus.Tenant, error) {
	data := struct {
		ID string `db:"tenant_id"`
	}{
		ID: tenantID.String(),
	}

	const q = `
	SELECT
		tenant_id, name, subdomain, contact_email, status, enc_descriptor, enc_secret,
		trial_start, subscription_expiry, last_payment_at, retention_deadline, created_at, updated_at
	FROM
		"public"."tenants"
	WHERE
		tenant_id = :tenant_id
	FOR UPDATE`

	var dbTn tenantRow
	if err := sqldb.NamedQueryStruct(ctx, s.log, s.db, q, data, &dbTn); err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			return tenantbus.Tenant{}, fmt.Errorf("db: %w", tenantbus.ErrNotFound)
		}
		return tenantbus.Tenant{}, fmt.Errorf("db: %w", err)
	}

	return toBusTenant(dbTn)
}

// Update persists a transitioned tenant row.
func (s *Store) Update(ctx context.Context, t tenantbus.Tenant) error {
	return s.tenants.Update(ctx, t)
}

// QueryExpiredIDs returns the tenants in the given status whose expiry is
// strictly before the cutoff. Candidates only; eligibility is re-checked
// under the row lock before transitioning.
func (s *Store) QueryExpiredIDs(ctx context.Context, status subscription.Status, before time.Time) ([]uuid.UUID, error) {
	data := map[string]any{
		"status": status.String(),
		"before": before.UTC(),
	}

	const q = `
	SELECT
		tenant_id
	FROM
		"public"."tenants"
	WHERE
		status = :status AND subscription_expiry IS NOT NULL AND subscription_expiry < :before
	ORDER BY
		subscription_expiry ASC`

	var rows []struct {
		ID uuid.UUID `db:"tenant_id"`
	}
	if err := sqldb.NamedQuerySlice(ctx, s.log, s.db, q, data, &rows); err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	return ids, nil
}
