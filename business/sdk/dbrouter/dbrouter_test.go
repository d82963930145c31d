package dbrouter_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/schoolplane/platform/business/sdk/dbrouter"
	"github.com/schoolplane/platform/business/sdk/vault"
	"github.com/schoolplane/platform/business/types/descriptor"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/stretchr/testify/require"
)

func Test_Router_SingleFlight(t *testing.T) {
	var opens int32
	var lookups int32

	r := dbrouter.New(dbrouter.Config{
		Log: testLogger(),
		Credentials: func(ctx context.Context, tenantID uuid.UUID) (vault.Credentials, error) {
			atomic.AddInt32(&lookups, 1)
			return testCredentials(), nil
		},
		Open: func(ctx context.Context, creds vault.Credentials) (*sqlx.DB, error) {
			atomic.AddInt32(&opens, 1)
			time.Sleep(50 * time.Millisecond)
			return newFakeDB(), nil
		},
	})
	defer r.Shutdown(context.Background())

	tenantID := uuid.New()

	const grt = 20
	results := make([]*sqlx.DB, grt)

	var wg sync.WaitGroup
	wg.Add(grt)
	for i := range grt {
		go func() {
			defer wg.Done()
			db, err := r.Get(context.Background(), tenantID)
			require.NoError(t, err)
			results[i] = db
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&opens), "concurrent first access must create exactly one pool")
	require.Equal(t, int32(1), atomic.LoadInt32(&lookups))

	for _, db := range results {
		require.Same(t, results[0], db)
	}
}

func Test_Router_FailureNotCached(t *testing.T) {
	var opens int32

	r := dbrouter.New(dbrouter.Config{
		Log: testLogger(),
		Credentials: func(ctx context.Context, tenantID uuid.UUID) (vault.Credentials, error) {
			return testCredentials(), nil
		},
		Open: func(ctx context.Context, creds vault.Credentials) (*sqlx.DB, error) {
			if atomic.AddInt32(&opens, 1) == 1 {
				return nil, errors.New("connection refused")
			}
			return newFakeDB(), nil
		},
	})
	defer r.Shutdown(context.Background())

	tenantID := uuid.New()

	_, err := r.Get(context.Background(), tenantID)
	require.ErrorIs(t, err, dbrouter.ErrConnectionUnavailable)

	db, err := r.Get(context.Background(), tenantID)
	require.NoError(t, err)
	require.NotNil(t, db)

	require.Equal(t, int32(2), atomic.LoadInt32(&opens))
}

func Test_Router_Evict(t *testing.T) {
	var opens int32

	r := dbrouter.New(dbrouter.Config{
		Log: testLogger(),
		Credentials: func(ctx context.Context, tenantID uuid.UUID) (vault.Credentials, error) {
			return testCredentials(), nil
		},
		Open: func(ctx context.Context, creds vault.Credentials) (*sqlx.DB, error) {
			atomic.AddInt32(&opens, 1)
			return newFakeDB(), nil
		},
	})
	defer r.Shutdown(context.Background())

	tenantID := uuid.New()

	first, err := r.Get(context.Background(), tenantID)
	require.NoError(t, err)

	r.Evict(tenantID)
	require.Error(t, first.Ping(), "evicted pool must be closed")

	second, err := r.Get(context.Background(), tenantID)
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Equal(t, int32(2), atomic.LoadInt32(&opens))
}

func Test_Router_LRUBound(t *testing.T) {
	var opens int32

	r := dbrouter.New(dbrouter.Config{
		Log:      testLogger(),
		MaxPools: 2,
		Credentials: func(ctx context.Context, tenantID uuid.UUID) (vault.Credentials, error) {
			return testCredentials(), nil
		},
		Open: func(ctx context.Context, creds vault.Credentials) (*sqlx.DB, error) {
			atomic.AddInt32(&opens, 1)
			return newFakeDB(), nil
		},
	})
	defer r.Shutdown(context.Background())

	t1 := uuid.New()
	t2 := uuid.New()
	t3 := uuid.New()

	p1, err := r.Get(context.Background(), t1)
	require.NoError(t, err)

	_, err = r.Get(context.Background(), t2)
	require.NoError(t, err)

	_, err = r.Get(context.Background(), t3)
	require.NoError(t, err)

	require.Error(t, p1.Ping(), "oldest pool must be closed on eviction")

	_, err = r.Get(context.Background(), t1)
	require.NoError(t, err)
	require.Equal(t, int32(4), atomic.LoadInt32(&opens))
}

// =============================================================================

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelInfo, "TEST", nil)
}

func testCredentials() vault.Credentials {
	return vault.Credentials{
		Descriptor: descriptor.MustParse("shared-schema:tenant_acme"),
		Secret:     "svc-password",
	}
}

func newFakeDB() *sqlx.DB {
	return sqlx.NewDb(sql.OpenDB(fakeConnector{}), "pgx")
}

type fakeConnector struct{}

func (fakeConnector) Connect(context.Context) (driver.Conn, error) { return fakeConn{}, nil }
func (fakeConnector) Driver() driver.Driver                        { return nil }

type fakeConn struct{}

func (fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (fakeConn) Close() error                        { return nil }
func (fakeConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }
