package notifydb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/domain/notifybus"
)

type notificationDB struct {
	ID         uuid.UUID      `db:"notification_id"`
	TenantID   uuid.UUID      `db:"tenant_id"`
	Channel    string         `db:"channel"`
	Recipient  string         `db:"recipient"`
	Template   string         `db:"template"`
	Payload    []byte         `db:"payload"`
	Status     string         `db:"status"`
	FailReason sql.NullString `db:"fail_reason"`
	CreatedAt  time.Time      `db:"created_at"`
	SentAt     sql.NullTime   `db:"sent_at"`
}

func toDBNotification(n notifybus.Notification) (notificationDB, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return notificationDB{}, fmt.Errorf("marshal payload: %w", err)
	}

	dbNtf := notificationDB{
		ID:        n.ID,
		TenantID:  n.TenantID,
		Channel:   n.Channel,
		Recipient: n.Recipient,
		Template:  n.Template,
		Payload:   payload,
		Status:    n.Status,
		FailReason: sql.NullString{
			String: n.FailReason,
			Valid:  n.FailReason != "",
		},
		CreatedAt: n.CreatedAt.UTC(),
	}

	if n.SentAt != nil {
		dbNtf.SentAt = sql.NullTime{
			Time:  n.SentAt.UTC(),
			Valid: true,
		}
	}

	return dbNtf, nil
}

func toBusNotification(db notificationDB) (notifybus.Notification, error) {
	var payload map[string]string
	if len(db.Payload) > 0 {
		if err := json.Unmarshal(db.Payload, &payload); err != nil {
			return notifybus.Notification{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	n := notifybus.Notification{
		ID:         db.ID,
		TenantID:   db.TenantID,
		Channel:    db.Channel,
		Recipient:  db.Recipient,
		Template:   db.Template,
		Payload:    payload,
		Status:     db.Status,
		FailReason: db.FailReason.String,
		CreatedAt:  db.CreatedAt.In(time.Local),
	}

	if db.SentAt.Valid {
		sentAt := db.SentAt.Time.In(time.Local)
		n.SentAt = &sentAt
	}

	return n, nil
}

func toBusNotifications(dbs []notificationDB) ([]notifybus.Notification, error) {
	ns := make([]notifybus.Notification, len(dbs))

	for i, db := range dbs {
		n, err := toBusNotification(db)
		if err != nil {
			return nil, err
		}
		ns[i] = n
	}

	return ns, nil
}
