package tenantapp

import (
	"github.com/schoolplane/platform/business/domain/tenantbus"
)

var orderByFields = map[string]string{
	"tenant_id":    tenantbus.OrderByID,
	"name":         tenantbus.OrderByName,
	"subdomain":    tenantbus.OrderBySubdomain,
	"status":       tenantbus.OrderByStatus,
	"date_created": tenantbus.OrderByCreatedAt,
}
