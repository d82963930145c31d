// Package provisionbus orchestrates tenant creation: isolation setup,
// credential encryption, and the atomic control plane record. The tenant row,
// its audit entry, and the welcome notification commit together or not at
// all.
package provisionbus

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/domain/notifybus"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/business/sdk/vault"
	"github.com/schoolplane/platform/business/types/descriptor"
	"github.com/schoolplane/platform/business/types/subdomain"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/schoolplane/platform/foundation/otel"
	"golang.org/x/crypto/bcrypt"
)

//go:embed sql/tenant_base.sql
var tenantBaseSQL string

var defaultSubjects = []string{
	"Mathematics",
	"Portuguese",
	"Science",
	"History",
	"Geography",
}

// OpenFunc opens a connection to a dedicated tenant database. Tests
// substitute it.
type OpenFunc func(ctx context.Context, d descriptor.Descriptor, secret string) (*sqlx.DB, error)

// Config represents the information needed to construct a provisioning core.
type Config struct {
	Log       *logger.Logger
	Beginner  sqldb.Beginner
	Vault     *vault.Vault
	TenantBus *tenantbus.Core
	AuditBus  *auditbus.Core
	NotifyBus *notifybus.Core

	// TrialDays is the length of the trial granted at creation. Defaults
	// to 7.
	TrialDays int

	// Open overrides the dedicated database opener. Leave nil outside of
	// tests.
	Open OpenFunc
}

// Core manages the tenant provisioning workflow.
type Core struct {
	log       *logger.Logger
	beginner  sqldb.Beginner
	vault     *vault.Vault
	tenantBus *tenantbus.Core
	auditBus  *auditbus.Core
	notifyBus *notifybus.Core
	trialDays int
	open      OpenFunc
}

// NewCore constructs a core for tenant provisioning.
func NewCore(cfg Config) *Core {
	c := Core{
		log:       cfg.Log,
		beginner:  cfg.Beginner,
		vault:     cfg.Vault,
		tenantBus: cfg.TenantBus,
		auditBus:  cfg.AuditBus,
		notifyBus: cfg.NotifyBus,
		trialDays: cfg.TrialDays,
		open:      cfg.Open,
	}

	if c.trialDays <= 0 {
		c.trialDays = 7
	}
	if c.open == nil {
		c.open = openDedicated
	}

	return &c
}

// Provision creates a tenant end to end and returns the created account plus
// the generated admin password. On a dedicated database, objects created
// remotely before a later step fails are left behind and reported through
// ProvisioningError for manual cleanup.
func (c *Core) Provision(ctx context.Context, np NewProvision) (Provisioned, error) {
	ctx, span := otel.AddSpan(ctx, "business.provisionbus.provision")
	defer span.End()

	d, err := c.resolveDescriptor(np)
	if err != nil {
		return Provisioned{}, failed(StepValidate, err)
	}

	// Check the subdomain before any remote work so a duplicate never
	// templates a dedicated database. The unique constraint on the insert
	// stays the authority under concurrent provisioning.
	if _, err := c.tenantBus.QueryBySubdomain(ctx, np.Subdomain.String()); err == nil {
		return Provisioned{}, failed(StepValidate, tenantbus.ErrUniqueSubdomain)
	} else if !errors.Is(err, tenantbus.ErrNotFound) {
		return Provisioned{}, failed(StepValidate, err)
	}

	adminPassword, err := generatePassword()
	if err != nil {
		return Provisioned{}, failed(StepSeed, err)
	}

	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return Provisioned{}, failed(StepSeed, err)
	}

	if d.Mode().Equal(descriptor.ModeDedicated) {
		if err := c.setupDedicated(ctx, d, np, string(adminHash)); err != nil {
			return Provisioned{}, err
		}
	}

	enc, err := c.vault.EncryptCredentials(d, np.Secret)
	if err != nil {
		return Provisioned{}, failed(StepEncrypt, err)
	}

	t, err := c.record(ctx, np, d, enc, string(adminHash))
	if err != nil {
		return Provisioned{}, err
	}

	c.log.Info(ctx, "provision: tenant created", "tenant_id", t.ID, "subdomain", t.Subdomain, "mode", d.Mode())

	return Provisioned{Tenant: t, AdminPassword: adminPassword}, nil
}

// =============================================================================

func (c *Core) resolveDescriptor(np NewProvision) (descriptor.Descriptor, error) {
	if subdomain.Reserved(np.Subdomain.String()) {
		return descriptor.Descriptor{}, fmt.Errorf("subdomain %q is reserved", np.Subdomain)
	}

	// The shared placeholder asks the platform to carve out a schema in
	// the control plane database.
	if np.Descriptor.Mode().Equal(descriptor.ModeShared) {
		schema := "tenant_" + strings.ReplaceAll(np.Subdomain.String(), "-", "_")
		return descriptor.SharedSchema(schema)
	}

	return np.Descriptor, nil
}

// setupDedicated prepares a tenant-owned database: reachability probe, base
// template, default catalog and admin staff row.
func (c *Core) setupDedicated(ctx context.Context, d descriptor.Descriptor, np NewProvision, adminHash string) error {
	db, err := c.open(ctx, d, np.Secret)
	if err != nil {
		return failed(StepProbe, err)
	}
	defer db.Close()

	if err := applyTemplate(ctx, db); err != nil {
		return failed(StepTemplate, err)
	}

	if err := c.seed(ctx, db, np, adminHash); err != nil {
		return failed(StepSeed, err)
	}

	return nil
}

// record writes the control plane state in one transaction. For
// shared-schema tenants the schema and its objects are created inside the
// same transaction, so a failure leaves no trace.
func (c *Core) record(ctx context.Context, np NewProvision, d descriptor.Descriptor, enc vault.EncryptedCredentials, adminHash string) (tenantbus.Tenant, error) {
	tx, err := c.beginner.Begin()
	if err != nil {
		return tenantbus.Tenant{}, failed(StepRecord, err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			c.log.Error(ctx, "provision: rollback", "err", err)
		}
	}()

	if d.Mode().Equal(descriptor.ModeSharedSchema) {
		ec, err := sqldb.GetExtContext(tx)
		if err != nil {
			return tenantbus.Tenant{}, failed(StepRecord, err)
		}

		schema := pgx.Identifier{d.Schema()}.Sanitize()

		if _, err := ec.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
			return tenantbus.Tenant{}, failed(StepSchema, err)
		}

		// SET LOCAL scopes the search path to this transaction, so the
		// template and seed rows land in the new schema.
		if _, err := ec.ExecContext(ctx, "SET LOCAL search_path TO "+schema+", public"); err != nil {
			return tenantbus.Tenant{}, failed(StepSchema, err)
		}

		if err := applyTemplate(ctx, ec); err != nil {
			return tenantbus.Tenant{}, failed(StepTemplate, err)
		}

		if err := c.seed(ctx, ec, np, adminHash); err != nil {
			return tenantbus.Tenant{}, failed(StepSeed, err)
		}
	}

	tenantBus, err := c.tenantBus.NewWithTx(tx)
	if err != nil {
		return tenantbus.Tenant{}, failed(StepRecord, err)
	}

	auditBus, err := c.auditBus.NewWithTx(tx)
	if err != nil {
		return tenantbus.Tenant{}, failed(StepRecord, err)
	}

	notifyBus, err := c.notifyBus.NewWithTx(tx)
	if err != nil {
		return tenantbus.Tenant{}, failed(StepRecord, err)
	}

	expiry := time.Now().Add(time.Duration(c.trialDays) * 24 * time.Hour)

	t, err := tenantBus.Create(ctx, tenantbus.NewTenant{
		Name:               np.Name,
		Subdomain:          np.Subdomain,
		ContactEmail:       np.ContactEmail,
		Credentials:        enc,
		SubscriptionExpiry: &expiry,
	})
	if err != nil {
		return tenantbus.Tenant{}, failed(StepRecord, err)
	}

	if _, err := auditBus.Create(ctx, auditbus.NewEntry{
		TenantID:   t.ID,
		Action:     "tenant_provisioned",
		FromStatus: t.Status,
		ToStatus:   t.Status,
		Reason:     "trial started",
	}); err != nil {
		return tenantbus.Tenant{}, failed(StepRecord, err)
	}

	if _, err := notifyBus.Enqueue(ctx, notifybus.NewNotification{
		TenantID:  t.ID,
		Recipient: t.ContactEmail.Address,
		Template:  notifybus.TemplateTrialStarted,
		Payload: map[string]string{
			"tenant": t.Name.String(),
			"expiry": expiry.UTC().Format(time.RFC3339),
		},
	}); err != nil {
		return tenantbus.Tenant{}, failed(StepRecord, err)
	}

	if err := tx.Commit(); err != nil {
		return tenantbus.Tenant{}, failed(StepRecord, err)
	}

	return t, nil
}

// seed writes the default subject catalog and the tenant admin staff row.
func (c *Core) seed(ctx context.Context, ec sqlx.ExtContext, np NewProvision, adminHash string) error {
	now := time.Now().UTC()

	for _, subject := range defaultSubjects {
		const q = `
		INSERT INTO subjects
			(subject_id, name, created_at)
		VALUES
			($1, $2, $3)`

		if _, err := ec.ExecContext(ctx, q, uuid.New(), subject, now); err != nil {
			return fmt.Errorf("seed subject %q: %w", subject, err)
		}
	}

	const q = `
	INSERT INTO staff
		(staff_id, name, email, password, role, enabled, created_at, updated_at)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := ec.ExecContext(ctx, q, uuid.New(), np.AdminName.String(), np.AdminEmail.Address, adminHash, "ADMIN", true, now, now); err != nil {
		return fmt.Errorf("seed admin staff: %w", err)
	}

	return nil
}

func applyTemplate(ctx context.Context, ec sqlx.ExtContext) error {
	for _, stmt := range strings.Split(tenantBaseSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := ec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("template statement: %w", err)
		}
	}

	return nil
}

func openDedicated(ctx context.Context, d descriptor.Descriptor, secret string) (*sqlx.DB, error) {
	connCfg, err := pgx.ParseConfig(d.URL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection url: %w", err)
	}

	if secret != "" {
		connCfg.Password = secret
	}

	db := sqlx.NewDb(stdlib.OpenDB(*connCfg), "pgx")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("probing database: %w", err)
	}

	return db, nil
}

func generatePassword() (string, error) {
	raw := make([]byte, 18)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}
