// Package dbrouter maps a tenant to a ready-to-query database handle. Two
// isolation strategies are supported: a dedicated database owned by the
// tenant, and schema isolation inside the control plane database. Pools are
// cached per tenant; first access is single-flighted so concurrent requests
// for a never-seen tenant create exactly one pool.
package dbrouter

import (
	"container/list"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/schoolplane/platform/business/sdk/vault"
	"github.com/schoolplane/platform/business/types/descriptor"
	"github.com/schoolplane/platform/foundation/logger"
	"golang.org/x/sync/singleflight"
)

// Set of error variables for router operations. ErrConnectionUnavailable is
// retryable by the caller after backoff and maps to a 503.
var (
	ErrConnectionUnavailable = errors.New("tenant database unavailable")
	ErrNotProvisioned        = errors.New("tenant database not provisioned")
)

// CredentialsFunc returns the decrypted connection material for a tenant.
// The router calls it only on a pool cache miss.
type CredentialsFunc func(ctx context.Context, tenantID uuid.UUID) (vault.Credentials, error)

// OpenFunc opens a pool for the given credentials. It exists so tests can
// substitute the database dial.
type OpenFunc func(ctx context.Context, creds vault.Credentials) (*sqlx.DB, error)

// Config represents the information needed to construct a router.
type Config struct {
	Log *logger.Logger

	// ControlDSN is the control plane database connection string, used as
	// the base for shared-schema pools.
	ControlDSN string

	Credentials CredentialsFunc

	// MaxPools bounds the number of live tenant pools. The least recently
	// used pool is closed when the bound is exceeded.
	MaxPools int

	MaxOpenConns int
	MaxIdleConns int
	OpenTimeout  time.Duration

	// Open overrides the pool opener. Leave nil outside of tests.
	Open OpenFunc
}

// Router routes tenants to pooled database handles.
type Router struct {
	log         *logger.Logger
	controlDSN  string
	credentials CredentialsFunc
	open        OpenFunc
	maxPools    int
	maxOpen     int
	maxIdle     int
	openTimeout time.Duration

	mu    sync.Mutex
	pools map[uuid.UUID]*list.Element
	lru   *list.List

	flight singleflight.Group
}

type poolEntry struct {
	tenantID uuid.UUID
	db       *sqlx.DB
}

// New constructs a router for tenant database access.
func New(cfg Config) *Router {
	r := Router{
		log:         cfg.Log,
		controlDSN:  cfg.ControlDSN,
		credentials: cfg.Credentials,
		open:        cfg.Open,
		maxPools:    cfg.MaxPools,
		maxOpen:     cfg.MaxOpenConns,
		maxIdle:     cfg.MaxIdleConns,
		openTimeout: cfg.OpenTimeout,
		pools:       make(map[uuid.UUID]*list.Element),
		lru:         list.New(),
	}

	if r.maxPools <= 0 {
		r.maxPools = 128
	}
	if r.maxOpen <= 0 {
		r.maxOpen = 10
	}
	if r.maxIdle <= 0 {
		r.maxIdle = 2
	}
	if r.openTimeout <= 0 {
		r.openTimeout = 10 * time.Second
	}
	if r.open == nil {
		r.open = r.openPool
	}

	return &r
}

// Get returns the pooled handle for the tenant, creating it on first access.
// Creation failures are not cached.
func (r *Router) Get(ctx context.Context, tenantID uuid.UUID) (*sqlx.DB, error) {
	if db, exists := r.lookup(tenantID); exists {
		return db, nil
	}

	// Collapse concurrent first-access for the same tenant into a single
	// pool creation.
	db, err, _ := r.flight.Do(tenantID.String(), func() (any, error) {
		if db, exists := r.lookup(tenantID); exists {
			return db, nil
		}

		db, err := r.create(ctx, tenantID)
		if err != nil {
			return nil, err
		}

		r.insert(tenantID, db)

		return db, nil
	})
	if err != nil {
		return nil, err
	}

	return db.(*sqlx.DB), nil
}

// Evict closes and drops the tenant's pool. Used after credential rotation
// so new connections pick up the new credentials.
func (r *Router) Evict(tenantID uuid.UUID) {
	r.mu.Lock()
	elem, exists := r.pools[tenantID]
	if exists {
		r.lru.Remove(elem)
		delete(r.pools, tenantID)
	}
	r.mu.Unlock()

	if exists {
		entry := elem.Value.(*poolEntry)
		if err := entry.db.Close(); err != nil {
			r.log.Error(context.Background(), "dbrouter: closing evicted pool", "tenant_id", tenantID, "err", err)
		}
	}
}

// Shutdown drains and closes every cached pool. Must be invoked on process
// shutdown so connections are not leaked.
func (r *Router) Shutdown(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*poolEntry, 0, len(r.pools))
	for _, elem := range r.pools {
		entries = append(entries, elem.Value.(*poolEntry))
	}
	r.pools = make(map[uuid.UUID]*list.Element)
	r.lru.Init()
	r.mu.Unlock()

	for _, entry := range entries {
		if err := entry.db.Close(); err != nil {
			r.log.Error(ctx, "dbrouter: closing pool", "tenant_id", entry.tenantID, "err", err)
		}
	}

	r.log.Info(ctx, "dbrouter: shutdown complete", "pools", len(entries))
}

// =============================================================================

func (r *Router) lookup(tenantID uuid.UUID) (*sqlx.DB, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, exists := r.pools[tenantID]
	if !exists {
		return nil, false
	}

	r.lru.MoveToFront(elem)

	return elem.Value.(*poolEntry).db, true
}

func (r *Router) insert(tenantID uuid.UUID, db *sqlx.DB) {
	var evicted *poolEntry

	r.mu.Lock()
	elem := r.lru.PushFront(&poolEntry{tenantID: tenantID, db: db})
	r.pools[tenantID] = elem

	if r.lru.Len() > r.maxPools {
		oldest := r.lru.Back()
		if oldest != nil {
			evicted = oldest.Value.(*poolEntry)
			r.lru.Remove(oldest)
			delete(r.pools, evicted.tenantID)
		}
	}
	r.mu.Unlock()

	if evicted != nil {
		r.log.Info(context.Background(), "dbrouter: pool evicted", "tenant_id", evicted.tenantID)
		evicted.db.Close()
	}
}

func (r *Router) create(ctx context.Context, tenantID uuid.UUID) (*sqlx.DB, error) {
	creds, err := r.credentials(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("credentials: tenantID[%s]: %w", tenantID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.openTimeout)
	defer cancel()

	db, err := r.open(ctx, creds)
	if err != nil {
		r.log.Warn(ctx, "dbrouter: pool creation failed", "tenant_id", tenantID, "mode", creds.Descriptor.Mode(), "err", err)
		return nil, fmt.Errorf("open pool: tenantID[%s]: %w", tenantID, ErrConnectionUnavailable)
	}

	// A pool that cannot answer a ping must not be cached as valid.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		r.log.Warn(ctx, "dbrouter: pool ping failed", "tenant_id", tenantID, "err", err)
		return nil, fmt.Errorf("ping pool: tenantID[%s]: %w", tenantID, ErrConnectionUnavailable)
	}

	r.log.Info(ctx, "dbrouter: pool created", "tenant_id", tenantID, "mode", creds.Descriptor.Mode())

	return db, nil
}

// openPool is the production pool opener.
func (r *Router) openPool(ctx context.Context, creds vault.Credentials) (*sqlx.DB, error) {
	switch creds.Descriptor.Mode() {
	case descriptor.ModeDedicated:
		connCfg, err := pgx.ParseConfig(creds.Descriptor.URL())
		if err != nil {
			return nil, fmt.Errorf("parsing connection url: %w", err)
		}

		return sqlx.NewDb(r.configureDB(stdlib.OpenDB(*connCfg)), "pgx"), nil

	case descriptor.ModeSharedSchema:
		connCfg, err := pgx.ParseConfig(r.controlDSN)
		if err != nil {
			return nil, fmt.Errorf("parsing control dsn: %w", err)
		}

		// The search path is set when the driver establishes each
		// connection, never as a separate step callers could forget. A
		// missed scope set would leak one tenant's queries into another
		// tenant's schema.
		schema := pgx.Identifier{creds.Descriptor.Schema()}.Sanitize()
		db := stdlib.OpenDB(*connCfg, stdlib.OptionAfterConnect(func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+schema+", public")
			return err
		}))

		return sqlx.NewDb(r.configureDB(db), "pgx"), nil

	default:
		return nil, ErrNotProvisioned
	}
}

func (r *Router) configureDB(db *sql.DB) *sql.DB {
	db.SetMaxOpenConns(r.maxOpen)
	db.SetMaxIdleConns(r.maxIdle)
	return db
}
