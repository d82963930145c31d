package lifecycledb

import (
	"database/sql"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/vault"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/subdomain"
	"github.com/schoolplane/platform/business/types/subscription"
)

type tenantRow struct {
	ID                 uuid.UUID    `db:"tenant_id"`
	Name               string       `db:"name"`
	Subdomain          string       `db:"subdomain"`
	ContactEmail       string       `db:"contact_email"`
	Status             string       `db:"status"`
	EncDescriptor      string       `db:"enc_descriptor"`
	EncSecret          string       `db:"enc_secret"`
	TrialStart         time.Time    `db:"trial_start"`
	SubscriptionExpiry sql.NullTime `db:"subscription_expiry"`
	LastPaymentAt      sql.NullTime `db:"last_payment_at"`
	RetentionDeadline  sql.NullTime `db:"retention_deadline"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

func toBusTenant(db tenantRow) (tenantbus.Tenant, error) {
	nme, err := name.Parse(db.Name)
	if err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("parse name: %w", err)
	}

	sub, err := subdomain.Parse(db.Subdomain)
	if err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("parse subdomain: %w", err)
	}

	status, err := subscription.Parse(db.Status)
	if err != nil {
		return tenantbus.Tenant{}, fmt.Errorf("parse status: %w", err)
	}

	t := tenantbus.Tenant{
		ID:           db.ID,
		Name:         nme,
		Subdomain:    sub,
		ContactEmail: mail.Address{Address: db.ContactEmail},
		Status:       status,
		Credentials: vault.EncryptedCredentials{
			Descriptor: db.EncDescriptor,
			Secret:     db.EncSecret,
		},
		TrialStart:         db.TrialStart.In(time.Local),
		SubscriptionExpiry: toTimePtr(db.SubscriptionExpiry),
		LastPaymentAt:      toTimePtr(db.LastPaymentAt),
		RetentionDeadline:  toTimePtr(db.RetentionDeadline),
		CreatedAt:          db.CreatedAt.In(time.Local),
		UpdatedAt:          db.UpdatedAt.In(time.Local),
	}

	return t, nil
}

func toTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}

	t := nt.Time.In(time.Local)
	return &t
}
