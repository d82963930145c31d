package main

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/schoolplane/platform/api/cmd/build/all"
	"github.com/schoolplane/platform/app/sdk/auth"
	"github.com/schoolplane/platform/app/sdk/mux"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/domain/auditbus/stores/auditdb"
	"github.com/schoolplane/platform/business/domain/lifecyclebus"
	"github.com/schoolplane/platform/business/domain/lifecyclebus/stores/lifecycledb"
	"github.com/schoolplane/platform/business/domain/notifybus"
	"github.com/schoolplane/platform/business/domain/notifybus/stores/notifydb"
	"github.com/schoolplane/platform/business/domain/provisionbus"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/domain/tenantbus/stores/tenantcache"
	"github.com/schoolplane/platform/business/domain/tenantbus/stores/tenantdb"
	"github.com/schoolplane/platform/business/domain/userbus"
	"github.com/schoolplane/platform/business/domain/userbus/stores/userdb"
	"github.com/schoolplane/platform/business/sdk/dbrouter"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/business/sdk/vault"
	"github.com/schoolplane/platform/foundation/keystore"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/schoolplane/platform/foundation/otel"
	"github.com/schoolplane/platform/foundation/webhook"
)

var build = "develop"

type Config struct {
	Version struct {
		Build string `json:"build"`
		Desc  string `json:"desc"`
	} `json:"version"`

	Web struct {
		ReadTimeout        time.Duration `envconfig:"WEB_READ_TIMEOUT" default:"5s"`
		WriteTimeout       time.Duration `envconfig:"WEB_WRITE_TIMEOUT" default:"10s"`
		IdleTimeout        time.Duration `envconfig:"WEB_IDLE_TIMEOUT" default:"120s"`
		ShutdownTimeout    time.Duration `envconfig:"WEB_SHUTDOWN_TIMEOUT" default:"20s"`
		APIHost            string        `envconfig:"WEB_API_HOST" default:"0.0.0.0:3000"`
		CORSAllowedOrigins []string      `envconfig:"WEB_CORS_ALLOWED_ORIGINS" default:"*"`
	}
	Auth struct {
		KeysFolder string `envconfig:"AUTH_KEYS_FOLDER" default:"foundation/zarf/keys"`
		Issuer     string `envconfig:"AUTH_ISSUER" default:"https://schoolplane.com/auth/"`
	}
	DB struct {
		User         string `envconfig:"DB_USER" default:"postgres"`
		Password     string `envconfig:"DB_PASSWORD" default:"postgres"`
		Host         string `envconfig:"DB_HOST" default:"localhost"`
		Name         string `envconfig:"DB_NAME" default:"platform"`
		MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"0"`
		MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"0"`
		DisableTLS   bool   `envconfig:"DB_DISABLE_TLS" default:"true"`
	}
	Vault struct {
		MasterKey     string        `envconfig:"VAULT_MASTER_KEY" required:"true"`
		CacheCapacity int           `envconfig:"VAULT_CACHE_CAPACITY" default:"1000"`
		CacheTTL      time.Duration `envconfig:"VAULT_CACHE_TTL" default:"5m"`
	}
	Router struct {
		MaxPools     int           `envconfig:"ROUTER_MAX_POOLS" default:"128"`
		MaxOpenConns int           `envconfig:"ROUTER_MAX_OPEN_CONNS" default:"10"`
		MaxIdleConns int           `envconfig:"ROUTER_MAX_IDLE_CONNS" default:"2"`
		OpenTimeout  time.Duration `envconfig:"ROUTER_OPEN_TIMEOUT" default:"10s"`
	}
	Tenant struct {
		TrialDays     int           `envconfig:"TENANT_TRIAL_DAYS" default:"7"`
		CacheCapacity int           `envconfig:"TENANT_CACHE_CAPACITY" default:"1000"`
		CacheTTL      time.Duration `envconfig:"TENANT_CACHE_TTL" default:"5m"`
		SweepInterval time.Duration `envconfig:"TENANT_SWEEP_INTERVAL" default:"5m"`
	}
	Notify struct {
		WebhookURL string        `envconfig:"NOTIFY_WEBHOOK_URL" default:""`
		Timeout    time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
		BatchLimit int           `envconfig:"NOTIFY_BATCH_LIMIT" default:"100"`
	}
	Tempo struct {
		Host        string  `envconfig:"TEMPO_HOST" default:"tempo:4317"`
		ServiceName string  `envconfig:"TEMPO_SERVICE_NAME" default:"PLATFORM"`
		Probability float64 `envconfig:"TEMPO_PROBABILITY" default:"0.05"`
		Enabled     bool    `envconfig:"TEMPO_ENABLED" default:"true"`
	}
}

func main() {
	var log *logger.Logger

	events := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			log.Info(ctx, "******* SEND ALERT *******")
		},
	}

	log = logger.NewWithEvents(os.Stdout, logger.LevelInfo, "PLATFORM", otel.GetTraceID, events)

	// -------------------------------------------------------------------------

	ctx := context.Background()

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {

	// -------------------------------------------------------------------------
	// GOMAXPROCS

	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Configuration

	var cfg Config

	cfg.Version.Build = build
	cfg.Version.Desc = "schoolplane control plane"

	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	log.Info(ctx, "startup", "version", cfg.Version)
	log.Info(ctx, "startup", "config", sanitizeConfig(cfg))

	// -------------------------------------------------------------------------
	// App Starting

	log.Info(ctx, "starting service", "version", cfg.Version.Build)
	defer log.Info(ctx, "shutdown complete")

	log.BuildInfo(ctx)

	expvar.NewString("build").Set(cfg.Version.Build)

	// -------------------------------------------------------------------------
	// Database Support

	log.Info(ctx, "startup", "status", "initializing database support", "hostport", cfg.DB.Host)

	db, err := sqldb.Open(sqldb.Config{
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		DisableTLS:   cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}

	defer db.Close()

	// -------------------------------------------------------------------------
	// Vault Support

	log.Info(ctx, "startup", "status", "initializing credential vault")

	vlt, err := vault.New(vault.Config{
		Log:           log,
		MasterKey:     cfg.Vault.MasterKey,
		CacheCapacity: cfg.Vault.CacheCapacity,
		CacheTTL:      cfg.Vault.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("constructing vault: %w", err)
	}

	// -------------------------------------------------------------------------
	// Business Layer

	beginner := sqldb.NewBeginner(db)

	userBus := userbus.NewCore(userdb.NewStore(log, db))

	tenantStore := tenantcache.NewStore(log, tenantdb.NewStore(log, db), cfg.Tenant.CacheCapacity, cfg.Tenant.CacheTTL)
	tenantBus := tenantbus.NewCore(log, vlt, tenantStore)

	auditBus := auditbus.NewCore(log, auditdb.NewStore(log, db))
	notifyBus := notifybus.NewCore(log, notifydb.NewStore(log, db))

	lifecycleBus := lifecyclebus.NewCore(log, beginner, lifecycledb.NewStore(log, db), auditBus, notifyBus, tenantStore)

	provisionBus := provisionbus.NewCore(provisionbus.Config{
		Log:       log,
		Beginner:  beginner,
		Vault:     vlt,
		TenantBus: tenantBus,
		AuditBus:  auditBus,
		NotifyBus: notifyBus,
		TrialDays: cfg.Tenant.TrialDays,
	})

	router := dbrouter.New(dbrouter.Config{
		Log: log,
		ControlDSN: sqldb.ConnString(sqldb.Config{
			User:       cfg.DB.User,
			Password:   cfg.DB.Password,
			Host:       cfg.DB.Host,
			Name:       cfg.DB.Name,
			DisableTLS: cfg.DB.DisableTLS,
		}),
		Credentials:  tenantBus.Credentials,
		MaxPools:     cfg.Router.MaxPools,
		MaxOpenConns: cfg.Router.MaxOpenConns,
		MaxIdleConns: cfg.Router.MaxIdleConns,
		OpenTimeout:  cfg.Router.OpenTimeout,
	})

	// -------------------------------------------------------------------------
	// Auth Support

	log.Info(ctx, "startup", "status", "initializing authentication support")

	ks := keystore.New()

	activeKID, err := ks.LoadByFileSystem(os.DirFS(cfg.Auth.KeysFolder))
	if err != nil {
		return fmt.Errorf("loading keys: %w", err)
	}

	authClient, err := auth.New(auth.Config{
		Log:       log,
		UserBus:   userBus,
		KeyLookup: ks,
		Issuer:    cfg.Auth.Issuer,
	})
	if err != nil {
		return fmt.Errorf("constructing auth: %w", err)
	}

	// -------------------------------------------------------------------------
	// Start Tracing Support

	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTracing(log, otel.Config{
		ServiceName: cfg.Tempo.ServiceName,
		Host:        cfg.Tempo.Host,
		ExcludedRoutes: map[string]struct{}{
			"/v1/liveness":  {},
			"/v1/readiness": {},
		},
		Probability: cfg.Tempo.Probability,
		Enabled:     cfg.Tempo.Enabled,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}

	defer teardown(context.Background())

	tracer := traceProvider.Tracer(cfg.Tempo.ServiceName)

	// -------------------------------------------------------------------------
	// Sweep Scheduler

	log.Info(ctx, "startup", "status", "starting sweep scheduler", "interval", cfg.Tenant.SweepInterval)

	// Queued notifications are posted to the operator webhook when one is
	// configured; without it rows stay pending for an external worker.
	var deliver notifybus.DeliverFunc
	if cfg.Notify.WebhookURL != "" {
		hook := webhook.New(cfg.Notify.WebhookURL, cfg.Notify.Timeout)

		deliver = func(ctx context.Context, n notifybus.Notification) error {
			return hook.Send(ctx, struct {
				ID        string            `json:"id"`
				TenantID  string            `json:"tenantId"`
				Channel   string            `json:"channel"`
				Recipient string            `json:"recipient"`
				Template  string            `json:"template"`
				Payload   map[string]string `json:"payload,omitempty"`
			}{
				ID:        n.ID.String(),
				TenantID:  n.TenantID.String(),
				Channel:   n.Channel,
				Recipient: n.Recipient,
				Template:  n.Template,
				Payload:   n.Payload,
			})
		}
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})

	go func() {
		defer close(sweepDone)

		ticker := time.NewTicker(cfg.Tenant.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-sweepCtx.Done():
				return

			case <-ticker.C:
				graced, err := lifecycleBus.SweepGrace(sweepCtx)
				if err != nil {
					log.Error(sweepCtx, "sweep", "status", "grace sweep failed", "err", err)
				}

				locked, err := lifecycleBus.SweepLocked(sweepCtx)
				if err != nil {
					log.Error(sweepCtx, "sweep", "status", "locked sweep failed", "err", err)
				}

				if graced > 0 || locked > 0 {
					log.Info(sweepCtx, "sweep", "graced", graced, "locked", locked)
				}

				if deliver != nil {
					sent, failed, err := notifyBus.Dispatch(sweepCtx, deliver, cfg.Notify.BatchLimit)
					if err != nil {
						log.Error(sweepCtx, "sweep", "status", "notification dispatch failed", "err", err)
					}

					if sent > 0 || failed > 0 {
						log.Info(sweepCtx, "sweep", "notifications_sent", sent, "notifications_failed", failed)
					}
				}
			}
		}
	}()

	// -------------------------------------------------------------------------
	// Start API Service

	log.Info(ctx, "startup", "status", "initializing V1 API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	cfgMux := mux.Config{
		Build:  cfg.Version.Build,
		Log:    log,
		DB:     db,
		Tracer: tracer,
		BusConfig: mux.BusConfig{
			UserBus:      userBus,
			TenantBus:    tenantBus,
			LifecycleBus: lifecycleBus,
			ProvisionBus: provisionBus,
			AuditBus:     auditBus,
			Router:       router,
		},
		AuthConfig: mux.AuthConfig{
			Auth:      authClient,
			ActiveKID: activeKID,
		},
	}

	webAPI := mux.WebAPI(cfgMux,
		all.Routes(),
		mux.WithCORS(cfg.Web.CORSAllowedOrigins),
	)

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      webAPI,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Info(ctx, "startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	select {
	case err := <-serverErrors:
		stopSweep()
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		stopSweep()
		<-sweepDone

		ctx, cancel := context.WithTimeout(ctx, cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		router.Shutdown(ctx)
	}

	return nil
}

func sanitizeConfig(cfg Config) string {
	cfg.DB.Password = "[MASKED]"
	cfg.Vault.MasterKey = "[MASKED]"

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Sprintf("%+v", cfg)
	}
	return string(data)
}
