package auditdb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/types/subscription"
)

type entryDB struct {
	ID         uuid.UUID  `db:"audit_id"`
	TenantID   uuid.UUID  `db:"tenant_id"`
	Action     string     `db:"action"`
	FromStatus string     `db:"from_status"`
	ToStatus   string     `db:"to_status"`
	ActorID    *uuid.UUID `db:"actor_id"`
	Reason     string     `db:"reason"`
	CreatedAt  time.Time  `db:"created_at"`
}

func toDBEntry(e auditbus.Entry) entryDB {
	return entryDB{
		ID:         e.ID,
		TenantID:   e.TenantID,
		Action:     e.Action,
		FromStatus: e.FromStatus.String(),
		ToStatus:   e.ToStatus.String(),
		ActorID:    e.Actor,
		Reason:     e.Reason,
		CreatedAt:  e.CreatedAt.UTC(),
	}
}

func toBusEntry(db entryDB) (auditbus.Entry, error) {
	fromStatus, err := subscription.Parse(db.FromStatus)
	if err != nil {
		return auditbus.Entry{}, fmt.Errorf("parse from_status: %w", err)
	}

	toStatus, err := subscription.Parse(db.ToStatus)
	if err != nil {
		return auditbus.Entry{}, fmt.Errorf("parse to_status: %w", err)
	}

	e := auditbus.Entry{
		ID:         db.ID,
		TenantID:   db.TenantID,
		Action:     db.Action,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Actor:      db.ActorID,
		Reason:     db.Reason,
		CreatedAt:  db.CreatedAt.In(time.Local),
	}

	return e, nil
}

func toBusEntries(dbs []entryDB) ([]auditbus.Entry, error) {
	entries := make([]auditbus.Entry, len(dbs))

	for i, db := range dbs {
		e, err := toBusEntry(db)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}

	return entries, nil
}
