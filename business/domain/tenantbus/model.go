package tenantbus

import (
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/sdk/vault"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/subdomain"
	"github.com/schoolplane/platform/business/types/subscription"
)

// Tenant represents a customer account in the control plane.
type Tenant struct {
	ID                 uuid.UUID
	Name               name.Name
	Subdomain          subdomain.Subdomain
	ContactEmail       mail.Address
	Status             subscription.Status
	Credentials        vault.EncryptedCredentials
	TrialStart         time.Time
	SubscriptionExpiry *time.Time
	LastPaymentAt      *time.Time
	RetentionDeadline  *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewTenant contains the information needed to create a new tenant.
type NewTenant struct {
	Name               name.Name
	Subdomain          subdomain.Subdomain
	ContactEmail       mail.Address
	Credentials        vault.EncryptedCredentials
	SubscriptionExpiry *time.Time
}

// UpdateTenant contains the information needed to update a tenant. Fields
// left nil are not changed.
type UpdateTenant struct {
	Name         *name.Name
	ContactEmail *mail.Address
}
