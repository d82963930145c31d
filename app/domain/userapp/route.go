package userapp

import (
	"net/http"

	"github.com/schoolplane/platform/app/sdk/auth"
	"github.com/schoolplane/platform/app/sdk/mid"
	"github.com/schoolplane/platform/business/domain/userbus"
	"github.com/schoolplane/platform/business/sdk/web"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Auth    *auth.Auth
	UserBus *userbus.Core
}

// Routes adds specific routes for this group.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	authen := mid.Authenticate(cfg.Auth)

	api := newApp(cfg.UserBus)

	app.HandlerFunc(http.MethodGet, version, "/admin/users", api.query, authen, mid.Authorize(cfg.Auth, auth.ObjectUsers, auth.ActionRead))
	app.HandlerFunc(http.MethodGet, version, "/admin/users/{user_id}", api.queryByID, authen, mid.Authorize(cfg.Auth, auth.ObjectUsers, auth.ActionRead))
	app.HandlerFunc(http.MethodPost, version, "/admin/users", api.create, authen, mid.Authorize(cfg.Auth, auth.ObjectUsers, auth.ActionCreate))
	app.HandlerFunc(http.MethodPut, version, "/admin/users/{user_id}", api.update, authen, mid.Authorize(cfg.Auth, auth.ObjectUsers, auth.ActionUpdate))
	app.HandlerFunc(http.MethodDelete, version, "/admin/users/{user_id}", api.delete, authen, mid.Authorize(cfg.Auth, auth.ObjectUsers, auth.ActionDelete))
}
