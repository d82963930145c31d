package checkapp

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/schoolplane/platform/business/sdk/web"
	"github.com/schoolplane/platform/foundation/logger"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build string
	Log   *logger.Logger
	DB    *sqlx.DB
}

// Routes adds specific routes for this group. The health checks run without
// the application middleware so a failing dependency cannot mask them.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	api := newApp(cfg.Build, cfg.Log, cfg.DB)

	app.HandlerFuncNoMid(http.MethodGet, version, "/liveness", api.liveness)
	app.HandlerFuncNoMid(http.MethodGet, version, "/readiness", api.readiness)
}
