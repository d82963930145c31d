// Package notifydb contains notification queue related CRUD functionality.
package notifydb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/schoolplane/platform/business/domain/notifybus"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/foundation/logger"
)

// Store manages the set of APIs for notification queue database access.
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
func (s *Store) NewWithTx(tx sqldb.CommitRollbacker) (notifybus.Storer, error) {
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

// Create inserts a new notification into the database.
func (s *Store) Create(ctx context.Context, n notifybus.Notification) error {
	dbNtf, err := toDBNotification(n)
	if err != nil {
		return err
	}

	const q = `
	INSERT INTO "public"."notification_queue"
		(notification_id, tenant_id, channel, recipient, template, payload, status, fail_reason, created_at, sent_at)
	VALUES
		(:notification_id, :tenant_id, :channel, :recipient, :template, :payload, :status, :fail_reason, :created_at, :sent_at)`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, dbNtf); err != nil {
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// Update replaces the delivery state of a notification.
func (s *Store) Update(ctx context.Context, n notifybus.Notification) error {
	dbNtf, err := toDBNotification(n)
	if err != nil {
		return err
	}

	const q = `
	UPDATE
		"public"."notification_queue"
	SET
		status = :status,
		fail_reason = :fail_reason,
		sent_at = :sent_at
	WHERE
		notification_id = :notification_id`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, dbNtf); err != nil {
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// QueryPending retrieves notifications awaiting delivery, oldest first.
func (s *Store) QueryPending(ctx context.Context, limit int) ([]notifybus.Notification, error) {
	data := map[string]any{
		"status": notifybus.StatusPending,
		"limit":  limit,
	}

	const q = `
	SELECT
		notification_id, tenant_id, channel, recipient, template, payload, status, fail_reason, created_at, sent_at
	FROM
		"public"."notification_queue"
	WHERE
		status = :status
	ORDER BY
		created_at ASC
	FETCH FIRST :limit ROWS ONLY`

	var dbNtfs []notificationDB
	if err := sqldb.NamedQuerySlice(ctx, s.log, s.db, q, data, &dbNtfs); err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	return toBusNotifications(dbNtfs)
}
