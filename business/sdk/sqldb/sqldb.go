// Package sqldb provides support for access the database.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Calls init function.
	"github.com/jmoiron/sqlx"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/schoolplane/platform/foundation/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Set of error variables for CRUD operations.
var (
	ErrDBNotFound       = sql.ErrNoRows
	ErrUndefinedTable   = errors.New("undefined table")
	ErrsUniqueViolation = "23505"
	ErrsUndefinedTable  = "42P01"
)

// ErrDBDuplicatedEntry represents a duplicated entry error and provides
// the violated column when the driver exposes it.
type ErrDBDuplicatedEntry struct {
	Column string
}

// Error implements the error interface.
func (err ErrDBDuplicatedEntry) Error() string {
	return fmt.Sprintf("duplicated entry: column[%s]", err.Column)
}

// Config is the required properties to use the database.
type Config struct {
	User         string
	Password     string
	Host         string
	Name         string
	Schema       string
	MaxIdleConns int
	MaxOpenConns int
	DisableTLS   bool
}

// ConnString builds the connection string for the configuration. The router
// uses it as the base DSN for shared-schema tenant pools.
func ConnString(cfg Config) string {
	sslMode := "require"
	if cfg.DisableTLS {
		sslMode = "disable"
	}

	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")
	if cfg.Schema != "" {
		q.Set("search_path", cfg.Schema)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host,
		Path:     cfg.Name,
		RawQuery: q.Encode(),
	}

	return u.String()
}

// Open knows how to open a database connection based on the configuration.
func Open(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", ConnString(cfg))
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	return db, nil
}

// StatusCheck returns nil if it can successfully talk to the database. It
// returns a non-nil error otherwise.
func StatusCheck(ctx context.Context, db *sqlx.DB) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second)
		defer cancel()
	}

	for attempts := 1; ; attempts++ {
		if err := db.Ping(); err == nil {
			break
		}

		select {
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Run a simple query to determine connectivity. Running this query forces
	// a round trip through the database.
	const q = `SELECT true`
	var tmp bool
	return db.QueryRowContext(ctx, q).Scan(&tmp)
}

// NamedExecContext is a helper function to execute a CUD operation with
// logging and tracing.
func NamedExecContext(ctx context.Context, log *logger.Logger, db sqlx.ExtContext, query string, data any) (err error) {
	q := queryString(query, data)

	log.Infoc(ctx, 5, "sqldb: NamedExecContext", "query", q)

	ctx, span := otel.AddSpan(ctx, "business.sqldb.exec", attribute.String("query", q))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if _, err := sqlx.NamedExecContext(ctx, db, query, data); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case ErrsUndefinedTable:
				return ErrUndefinedTable
			case ErrsUniqueViolation:
				return ErrDBDuplicatedEntry{Column: constraintColumn(pgErr)}
			}
		}
		return err
	}

	return nil
}

// NamedQueryStruct is a helper function for executing queries that return a
// single value to be unmarshalled into a struct type.
func NamedQueryStruct(ctx context.Context, log *logger.Logger, db sqlx.ExtContext, query string, data any, dest any) (err error) {
	q := queryString(query, data)

	log.Infoc(ctx, 5, "sqldb: NamedQueryStruct", "query", q)

	ctx, span := otel.AddSpan(ctx, "business.sqldb.query", attribute.String("query", q))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	rows, err := sqlx.NamedQueryContext(ctx, db, query, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == ErrsUndefinedTable {
			return ErrUndefinedTable
		}
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		return ErrDBNotFound
	}

	if err := rows.StructScan(dest); err != nil {
		return err
	}

	return nil
}

// NamedQuerySlice is a helper function for executing queries that return a
// collection of data to be unmarshalled into a slice.
func NamedQuerySlice[T any](ctx context.Context, log *logger.Logger, db sqlx.ExtContext, query string, data any, dest *[]T) (err error) {
	q := queryString(query, data)

	log.Infoc(ctx, 5, "sqldb: NamedQuerySlice", "query", q)

	ctx, span := otel.AddSpan(ctx, "business.sqldb.query", attribute.String("query", q))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	rows, err := sqlx.NamedQueryContext(ctx, db, query, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == ErrsUndefinedTable {
			return ErrUndefinedTable
		}
		return err
	}
	defer rows.Close()

	var slice []T
	for rows.Next() {
		v := new(T)
		if err := rows.StructScan(v); err != nil {
			return err
		}
		slice = append(slice, *v)
	}
	*dest = slice

	return nil
}

// constraintColumn makes a best effort guess at the violated column from a
// unique constraint name like "uq_tenant_subdomain" or "tenant_subdomain_key".
func constraintColumn(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}

	name := pgErr.ConstraintName
	name = strings.TrimPrefix(name, "uq_")
	name = strings.TrimSuffix(name, "_key")

	if idx := strings.LastIndex(name, "_"); idx >= 0 && idx < len(name)-1 {
		return name[idx+1:]
	}

	return name
}

// queryString provides a pretty print version of the query and parameters.
func queryString(query string, args any) string {
	query, params, err := sqlx.Named(query, args)
	if err != nil {
		return err.Error()
	}

	for _, param := range params {
		var value string
		switch v := param.(type) {
		case string:
			value = fmt.Sprintf("'%s'", v)
		case []byte:
			value = fmt.Sprintf("'%s'", string(v))
		default:
			if reflect.TypeOf(param) != nil && reflect.TypeOf(param).Kind() == reflect.Ptr {
				value = fmt.Sprintf("%v", reflect.ValueOf(param).Elem())
			} else {
				value = fmt.Sprintf("%v", v)
			}
		}
		query = strings.Replace(query, "?", value, 1)
	}

	query = strings.ReplaceAll(query, "\t", "")
	query = strings.ReplaceAll(query, "\n", " ")

	return strings.Trim(query, " ")
}
