// Package auditdb contains audit trail related CRUD functionality.
package auditdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/sdk/page"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/foundation/logger"
)

// Store manages the set of APIs for audit trail database access.
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
func (s *Store) NewWithTx(tx sqldb.CommitRollbacker) (auditbus.Storer, error) {
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

// Create inserts a new audit entry into the database.
func (s *Store) Create(ctx context.Context, e auditbus.Entry) error {
	const q = `
	INSERT INTO "public"."audit_log"
		(audit_id, tenant_id, action, from_status, to_status, actor_id, reason, created_at)
	VALUES
		(:audit_id, :tenant_id, :action, :from_status, :to_status, :actor_id, :reason, :created_at)`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, toDBEntry(e)); err != nil {
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// QueryByTenant retrieves the audit entries for the tenant, newest first.
func (s *Store) QueryByTenant(ctx context.Context, tenantID uuid.UUID, page page.Page) ([]auditbus.Entry, error) {
	data := map[string]any{
		"tenant_id":     tenantID.String(),
		"offset":        (page.Number() - 1) * page.RowsPerPage(),
		"rows_per_page": page.RowsPerPage(),
	}

	const q = `
	SELECT
		audit_id, tenant_id, action, from_status, to_status, actor_id, reason, created_at
	FROM
		"public"."audit_log"
	WHERE
		tenant_id = :tenant_id
	ORDER BY
		created_at DESC
	OFFSET :offset ROWS FETCH NEXT :rows_per_page ROWS ONLY`

	var dbEntries []entryDB
	if err := sqldb.NamedQuerySlice(ctx, s.log, s.db, q, data, &dbEntries); err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	return toBusEntries(dbEntries)
}

// CountByTenant returns the total number of audit entries for the tenant.
func (s *Store) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	data := map[string]any{
		"tenant_id": tenantID.String(),
	}

	const q = `
	SELECT
		COUNT(1) AS count
	FROM
		"public"."audit_log"
	WHERE
		tenant_id = :tenant_id`

	var count struct {
		Count int `db:"count"`
	}
	if err := sqldb.NamedQueryStruct(ctx, s.log, s.db, q, data, &count); err != nil {
		return 0, fmt.Errorf("namedquerystruct: %w", err)
	}

	return count.Count, nil
}
