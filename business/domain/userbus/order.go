package userbus

import "github.com/schoolplane/platform/business/sdk/order"

var DefaultOrderBy = order.NewBy(OrderByID, order.ASC)

const (
	OrderByID      = "a"
	OrderByName    = "b"
	OrderByEmail   = "c"
	OrderByRole    = "d"
	OrderByEnabled = "e"
)
