// This program performs administrative tasks for the control plane:
// creating operator accounts, generating vault master keys and running the
// subscription sweeps by hand.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net/mail"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/domain/auditbus/stores/auditdb"
	"github.com/schoolplane/platform/business/domain/lifecyclebus"
	"github.com/schoolplane/platform/business/domain/lifecyclebus/stores/lifecycledb"
	"github.com/schoolplane/platform/business/domain/notifybus"
	"github.com/schoolplane/platform/business/domain/notifybus/stores/notifydb"
	"github.com/schoolplane/platform/business/domain/tenantbus/stores/tenantcache"
	"github.com/schoolplane/platform/business/domain/tenantbus/stores/tenantdb"
	"github.com/schoolplane/platform/business/domain/userbus"
	"github.com/schoolplane/platform/business/domain/userbus/stores/userdb"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/password"
	"github.com/schoolplane/platform/business/types/role"
	"github.com/schoolplane/platform/foundation/logger"
)

type Config struct {
	DB struct {
		User         string `envconfig:"DB_USER" default:"postgres"`
		Password     string `envconfig:"DB_PASSWORD" default:"postgres"`
		Host         string `envconfig:"DB_HOST" default:"localhost"`
		Name         string `envconfig:"DB_NAME" default:"platform"`
		MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"0"`
		MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"0"`
		DisableTLS   bool   `envconfig:"DB_DISABLE_TLS" default:"true"`
	}
}

func main() {
	log := logger.New(os.Stdout, logger.LevelInfo, "ADMIN-TOOL", nil)
	ctx := context.Background()

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		fmt.Println("Commands: create-user, genkey, sweep")
		return nil
	}

	// genkey needs no database.
	if os.Args[1] == "genkey" {
		return runGenKey()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

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

	switch os.Args[1] {
	case "create-user":
		userBus := userbus.NewCore(userdb.NewStore(log, db))
		return runCreateUser(ctx, userBus, os.Args[2:])

	case "sweep":
		tenantStore := tenantcache.NewStore(log, tenantdb.NewStore(log, db), 100, time.Minute)
		lifecycleBus := lifecyclebus.NewCore(
			log,
			sqldb.NewBeginner(db),
			lifecycledb.NewStore(log, db),
			auditbus.NewCore(log, auditdb.NewStore(log, db)),
			notifybus.NewCore(log, notifydb.NewStore(log, db)),
			tenantStore,
		)
		return runSweep(ctx, lifecycleBus)

	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func runCreateUser(ctx context.Context, ub *userbus.Core, args []string) error {
	cmd := flag.NewFlagSet("create-user", flag.ExitOnError)
	emailStr := cmd.String("email", "", "Operator email (Required)")
	passStr := cmd.String("password", "", "Operator password (Required)")
	nameStr := cmd.String("name", "", "Operator full name (Required)")
	roleStr := cmd.String("role", "OPERATOR", "Operator role (ADMIN, OPERATOR)")
	cmd.Parse(args)

	if *emailStr == "" || *passStr == "" || *nameStr == "" {
		cmd.PrintDefaults()
		return fmt.Errorf("missing required fields")
	}

	n, err := name.Parse(*nameStr)
	if err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}

	r, err := role.Parse(*roleStr)
	if err != nil {
		return fmt.Errorf("invalid role: %w", err)
	}

	p, err := password.Parse(*passStr)
	if err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}

	addr, err := mail.ParseAddress(*emailStr)
	if err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}

	newUser := userbus.NewUser{
		Name:     n,
		Email:    *addr,
		Password: p,
		Role:     r,
	}

	usr, err := ub.Create(ctx, newUser)
	if err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}

	fmt.Printf("\nSUCCESS: Operator created!\nID: %s\nEmail: %s\nRole: %s\n", usr.ID, usr.Email.Address, usr.Role)
	return nil
}

// runGenKey prints a fresh vault master key for VAULT_MASTER_KEY.
func runGenKey() error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	fmt.Printf("VAULT_MASTER_KEY=%s\n", hex.EncodeToString(key))
	return nil
}

func runSweep(ctx context.Context, lb *lifecyclebus.Core) error {
	graced, err := lb.SweepGrace(ctx)
	if err != nil {
		return fmt.Errorf("grace sweep: %w", err)
	}

	locked, err := lb.SweepLocked(ctx)
	if err != nil {
		return fmt.Errorf("locked sweep: %w", err)
	}

	fmt.Printf("\nSUCCESS: sweep complete\nmoved to grace: %d\nlocked: %d\n", graced, locked)
	return nil
}

// go run api/tooling/admin/main.go genkey
// go run api/tooling/admin/main.go create-user -email "root@schoolplane.com" -password "Admin123!" -name "Platform Admin" -role "ADMIN"
// go run api/tooling/admin/main.go sweep
