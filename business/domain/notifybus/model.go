package notifybus

import (
	"time"

	"github.com/google/uuid"
)

// Set of delivery channels and statuses.
const (
	ChannelEmail = "email"

	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Set of templates enqueued by lifecycle transitions.
const (
	TemplateTrialStarted     = "trial_started"
	TemplateSubscriptionOpen = "subscription_activated"
	TemplateGraceEntered     = "grace_entered"
	TemplateAccountLocked    = "account_locked"
	TemplateAccountSuspended = "account_suspended"
	TemplateAccountChurned   = "account_churned"
)

// Notification represents a queued message for a tenant contact.
type Notification struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Channel    string
	Recipient  string
	Template   string
	Payload    map[string]string
	Status     string
	FailReason string
	CreatedAt  time.Time
	SentAt     *time.Time
}

// NewNotification contains the information needed to enqueue a message.
type NewNotification struct {
	TenantID  uuid.UUID
	Recipient string
	Template  string
	Payload   map[string]string
}
