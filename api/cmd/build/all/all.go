// Package all binds all the routes into the specified app.
package all

import (
	"github.com/schoolplane/platform/app/domain/authapp"
	"github.com/schoolplane/platform/app/domain/checkapp"
	"github.com/schoolplane/platform/app/domain/tenantapp"
	"github.com/schoolplane/platform/app/domain/userapp"
	"github.com/schoolplane/platform/app/sdk/mux"
	"github.com/schoolplane/platform/business/sdk/web"
)

// Routes constructs the add value which provides the implementation of
// of RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

func (add) Add(app *web.App, cfg mux.Config) {
	checkapp.Routes(app, checkapp.Config{
		Build: cfg.Build,
		Log:   cfg.Log,
		DB:    cfg.DB,
	})

	authapp.Routes(app, authapp.Config{
		Auth:      cfg.AuthConfig.Auth,
		ActiveKID: cfg.AuthConfig.ActiveKID,
	})

	userapp.Routes(app, userapp.Config{
		Auth:    cfg.AuthConfig.Auth,
		UserBus: cfg.BusConfig.UserBus,
	})

	tenantapp.Routes(app, tenantapp.Config{
		Auth:         cfg.AuthConfig.Auth,
		TenantBus:    cfg.BusConfig.TenantBus,
		LifecycleBus: cfg.BusConfig.LifecycleBus,
		ProvisionBus: cfg.BusConfig.ProvisionBus,
		AuditBus:     cfg.BusConfig.AuditBus,
		Router:       cfg.BusConfig.Router,
	})
}
