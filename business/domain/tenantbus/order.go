package tenantbus

import "github.com/schoolplane/platform/business/sdk/order"

var DefaultOrderBy = order.NewBy(OrderByCreatedAt, order.DESC)

const (
	OrderByID        = "a"
	OrderByName      = "b"
	OrderBySubdomain = "c"
	OrderByStatus    = "d"
	OrderByCreatedAt = "e"
)
