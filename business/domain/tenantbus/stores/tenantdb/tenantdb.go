// Package tenantdb contains tenant related CRUD functionality.
package tenantdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/order"
	"github.com/schoolplane/platform/business/sdk/page"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/foundation/logger"
)

// Store manages the set of APIs for tenant database access.
type Store struct {
	log *logger.Logger
	db  sqlx.ExtContext
}

// NewStore constructs the api for data access.
func NewStore(log *logger.Logger, db *sqlx.DB) *Store {
	return &Store{
		log: log,
		db:  db,
	}
}

// NewWithTx constructs a new Store value replacing the sqlx DB
// value with a sqlx DB value that is currently inside a transaction.
func (s *Store) NewWithTx(tx sqldb.CommitRollbacker) (tenantbus.Storer, error) {
	ec, err := sqldb.GetExtContext(tx)
	if err != nil {
		return nil, err
	}

	store := Store{
		log: s.log,
		db:  ec,
	}

	return &store, nil
}

// Create inserts a new tenant into the database.
func (s *Store) Create(ctx context.Context, t tenantbus.Tenant) error {
	const q = `
	INSERT INTO "public"."tenants"
		(tenant_id, name, subdomain, contact_email, status, enc_descriptor, enc_secret,
		 trial_start, subscription_expiry, last_payment_at, retention_deadline, created_at, updated_at)
	VALUES
		(:tenant_id, :name, :subdomain, :contact_email, :status, :enc_descriptor, :enc_secret,
		 :trial_start, :subscription_expiry, :last_payment_at, :retention_deadline, :created_at, :updated_at)`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, toDBTenant(t)); err != nil {
		var dupErr sqldb.ErrDBDuplicatedEntry
		if errors.As(err, &dupErr) {
			return fmt.Errorf("namedexeccontext: %w", tenantbus.ErrUniqueSubdomain)
		}
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// Update replaces a tenant document in the database.
func (s *Store) Update(ctx context.Context, t tenantbus.Tenant) error {
	const q = `
	UPDATE
		"public"."tenants"
	SET
		name = :name,
		contact_email = :contact_email,
		status = :status,
		enc_descriptor = :enc_descriptor,
		enc_secret = :enc_secret,
		subscription_expiry = :subscription_expiry,
		last_payment_at = :last_payment_at,
		retention_deadline = :retention_deadline,
		updated_at = :updated_at
	WHERE
		tenant_id = :tenant_id`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, toDBTenant(t)); err != nil {
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// Delete removes a tenant from the database.
func (s *Store) Delete(ctx context.Context, t tenantbus.Tenant) error {
	const q = `
	DELETE FROM
		"public"."tenants"
	WHERE
		tenant_id = :tenant_id`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, toDBTenant(t)); err != nil {
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// Query retrieves a list of existing tenants from the database.
func (s *Store) Query(ctx context.Context, filter tenantbus.QueryFilter, orderBy order.By, page page.Page) ([]tenantbus.Tenant, error) {
	data := map[string]any{
		"offset":        (page.Number() - 1) * page.RowsPerPage(),
		"rows_per_page": page.RowsPerPage(),
	}

	const q = `
	SELECT
		tenant_id, name, subdomain, contact_email, status, enc_descriptor, enc_secret,
		trial_start, subscription_expiry, last_payment_at, retention_deadline, created_at, updated_at
	FROM
		"public"."tenants"`

	buf := bytes.NewBufferString(q)
	applyFilter(filter, data, buf)

	orderByClause, err := orderByClause(orderBy)
	if err != nil {
		return nil, err
	}

	buf.WriteString(orderByClause)
	buf.WriteString(" OFFSET :offset ROWS FETCH NEXT :rows_per_page ROWS ONLY")

	var dbTns []tenantDB
	if err := sqldb.NamedQuerySlice(ctx, s.log, s.db, buf.String(), data, &dbTns); err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	return toBusTenants(dbTns)
}

// Count returns the total number of tenants in the DB.
func (s *Store) Count(ctx context.Context, filter tenantbus.QueryFilter) (int, error) {
	data := map[string]any{}

	const q = `
	SELECT
		count(1)
	FROM
		"public"."tenants"`

	buf := bytes.NewBufferString(q)
	applyFilter(filter, data, buf)

	var count struct {
		Count int `db:"count"`
	}
	if err := sqldb.NamedQueryStruct(ctx, s.log, s.db, buf.String(), data, &count); err != nil {
		return 0, fmt.Errorf("db: %w", err)
	}

	return count.Count, nil
}

// QueryByID gets the specified tenant from the database.
func (s *Store) QueryByID(ctx context.Context, tenantID uuid.UUID) (tenantbus.Tenant, error) {
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
		tenant_id = :tenant_id`

	var dbTn tenantDB
	if err := sqldb.NamedQueryStruct(ctx, s.log, s.db, q, data, &dbTn); err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			return tenantbus.Tenant{}, fmt.Errorf("db: %w", tenantbus.ErrNotFound)
		}
		return tenantbus.Tenant{}, fmt.Errorf("db: %w", err)
	}

	return toBusTenant(dbTn)
}

// QueryBySubdomain gets the tenant owning the specified subdomain label.
func (s *Store) QueryBySubdomain(ctx context.Context, sub string) (tenantbus.Tenant, error) {
	data := struct {
		Subdomain string `db:"subdomain"`
	}{
		Subdomain: sub,
	}

	const q = `
	SELECT
		tenant_id, name, subdomain, contact_email, status, enc_descriptor, enc_secret,
		trial_start, subscription_expiry, last_payment_at, retention_deadline, created_at, updated_at
	FROM
		"public"."tenants"
	WHERE
		subdomain = :subdomain`

	var dbTn tenantDB
	if err := sqldb.NamedQueryStruct(ctx, s.log, s.db, q, data, &dbTn); err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			return tenantbus.Tenant{}, fmt.Errorf("db: %w", tenantbus.ErrNotFound)
		}
		return tenantbus.Tenant{}, fmt.Errorf("db: %w", err)
	}

	return toBusTenant(dbTn)
}
