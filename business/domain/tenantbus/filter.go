package tenantbus

import (
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/subscription"
)

type QueryFilter struct {
	ID             *uuid.UUID
	Name           *name.Name
	Subdomain      *string
	Status         *subscription.Status
	StartCreatedAt *time.Time
	EndCreatedAt   *time.Time
}
