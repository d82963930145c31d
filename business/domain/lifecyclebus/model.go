package lifecyclebus

import (
	"time"

	"github.com/google/uuid"
)

// GracePeriod is the window after subscription expiry during which requests
// are still allowed with a warning attached.
const GracePeriod = 24 * time.Hour

// RetentionWindow is how long a churned tenant's data is kept before it
// becomes eligible for physical deletion.
const RetentionWindow = 90 * 24 * time.Hour

// Set of stable rejection reasons surfaced to API clients.
const (
	ReasonSuspended       = "ACCOUNT_SUSPENDED"
	ReasonClosed          = "ACCOUNT_CLOSED"
	ReasonPaymentRequired = "PAYMENT_REQUIRED"
)

// Set of audit actions recorded by transitions.
const (
	ActionActivated   = "subscription_activated"
	ActionGraceSwept  = "grace_period_started"
	ActionLockedSwept = "account_locked"
	ActionUnlocked    = "account_unlocked"
	ActionExtended    = "subscription_extended"
	ActionSuspended   = "account_suspended"
	ActionChurned     = "account_churned"
)

// Decision is the outcome of validating a tenant's subscription for a single
// request. No state is changed by producing one.
type Decision struct {
	Allowed bool
	Reason  string
	Warning string
	Expiry  *time.Time
}

// Activation contains the information needed to approve a payment.
type Activation struct {
	TenantID   uuid.UUID
	Actor      *uuid.UUID
	PaymentRef string
}

// Unlock contains the information needed to reopen a locked account.
type Unlock struct {
	TenantID      uuid.UUID
	Actor         *uuid.UUID
	ExtensionDays int
	PaymentRef    string
}

// Extension contains the information needed to push out an expiry.
type Extension struct {
	TenantID      uuid.UUID
	Actor         *uuid.UUID
	ExtensionDays int
	PaymentRef    string
}

// Suspension contains the information needed to suspend an account.
type Suspension struct {
	TenantID uuid.UUID
	Actor    *uuid.UUID
	Reason   string
}

// Churn contains the information needed to close an account.
type Churn struct {
	TenantID uuid.UUID
	Actor    *uuid.UUID
	Reason   string
}
