package auditbus

import (
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/types/subscription"
)

// Entry represents a single recorded subscription state change.
type Entry struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Action     string
	FromStatus subscription.Status
	ToStatus   subscription.Status
	Actor      *uuid.UUID
	Reason     string
	CreatedAt  time.Time
}

// NewEntry contains the information needed to record a state change.
type NewEntry struct {
	TenantID   uuid.UUID
	Action     string
	FromStatus subscription.Status
	ToStatus   subscription.Status
	Actor      *uuid.UUID
	Reason     string
}
