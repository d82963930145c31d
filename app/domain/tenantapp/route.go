package tenantapp

import (
	"net/http"

	"github.com/schoolplane/platform/app/sdk/auth"
	"github.com/schoolplane/platform/app/sdk/mid"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/domain/lifecyclebus"
	"github.com/schoolplane/platform/business/domain/provisionbus"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/dbrouter"
	"github.com/schoolplane/platform/business/sdk/web"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Auth         *auth.Auth
	TenantBus    *tenantbus.Core
	LifecycleBus *lifecyclebus.Core
	ProvisionBus *provisionbus.Core
	AuditBus     *auditbus.Core
	Router       *dbrouter.Router
}

// Routes adds specific routes for this group.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	authen := mid.Authenticate(cfg.Auth)
	read := mid.Authorize(cfg.Auth, auth.ObjectTenants, auth.ActionRead)
	create := mid.Authorize(cfg.Auth, auth.ObjectTenants, auth.ActionCreate)
	update := mid.Authorize(cfg.Auth, auth.ObjectTenants, auth.ActionUpdate)
	lifecycle := mid.Authorize(cfg.Auth, auth.ObjectTenants, auth.ActionLifecycle)
	rotate := mid.Authorize(cfg.Auth, auth.ObjectTenants, auth.ActionRotate)

	api := newApp(cfg.TenantBus, cfg.LifecycleBus, cfg.ProvisionBus, cfg.AuditBus, cfg.Router)

	app.HandlerFunc(http.MethodPost, version, "/admin/tenants", api.create, authen, create)
	app.HandlerFunc(http.MethodGet, version, "/admin/tenants", api.query, authen, read)
	app.HandlerFunc(http.MethodGet, version, "/admin/tenants/{tenant_id}", api.queryByID, authen, read)
	app.HandlerFunc(http.MethodPut, version, "/admin/tenants/{tenant_id}", api.update, authen, update)

	app.HandlerFunc(http.MethodPost, version, "/admin/tenants/{tenant_id}/activate", api.activate, authen, lifecycle)
	app.HandlerFunc(http.MethodPost, version, "/admin/tenants/{tenant_id}/unlock", api.unlock, authen, lifecycle)
	app.HandlerFunc(http.MethodPost, version, "/admin/tenants/{tenant_id}/extend", api.extend, authen, lifecycle)
	app.HandlerFunc(http.MethodPost, version, "/admin/tenants/{tenant_id}/suspend", api.suspend, authen, lifecycle)
	app.HandlerFunc(http.MethodPost, version, "/admin/tenants/{tenant_id}/churn", api.churn, authen, lifecycle)

	app.HandlerFunc(http.MethodPost, version, "/admin/tenants/{tenant_id}/credentials", api.rotateCredentials, authen, rotate)
	app.HandlerFunc(http.MethodGet, version, "/admin/tenants/{tenant_id}/audit", api.queryAudit, authen, read)
}
