package mid

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/order"
	"github.com/schoolplane/platform/business/sdk/page"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/business/sdk/web"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/subdomain"
	"github.com/schoolplane/platform/business/types/subscription"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/stretchr/testify/require"
)

func Test_TenantResolver_HostLabel(t *testing.T) {
	tnt := testTenant("acme", subscription.Active, nil)
	h := newResolverHarness(t, tnt)

	w := h.do(httptest.NewRequest(http.MethodGet, "http://acme.example.com/v1/ping", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, tnt.ID, h.seenTenant.ID)
	require.Empty(t, w.Header().Get(WarningHeader))
}

func Test_TenantResolver_HeaderFallback(t *testing.T) {
	tnt := testTenant("acme", subscription.Active, nil)

	cases := []string{tnt.ID.String(), "acme"}

	for _, key := range cases {
		h := newResolverHarness(t, tnt)

		r := httptest.NewRequest(http.MethodGet, "http://localhost/v1/ping", nil)
		r.Header.Set("X-Tenant-ID", key)
		w := h.do(r)

		require.Equal(t, http.StatusNoContent, w.Code, "key %q", key)
		require.Equal(t, tnt.ID, h.seenTenant.ID, "key %q", key)
	}
}

func Test_TenantResolver_ReservedLabelUsesHeader(t *testing.T) {
	tnt := testTenant("acme", subscription.Active, nil)
	h := newResolverHarness(t, tnt)

	r := httptest.NewRequest(http.MethodGet, "http://api.example.com/v1/ping", nil)
	r.Header.Set("X-Tenant-ID", "acme")
	w := h.do(r)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, tnt.ID, h.seenTenant.ID)
}

func Test_TenantResolver_Unknown(t *testing.T) {
	h := newResolverHarness(t, testTenant("acme", subscription.Active, nil))

	w := h.do(httptest.NewRequest(http.MethodGet, "http://ghost.example.com/v1/ping", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "TENANT_NOT_FOUND")
	require.Equal(t, 0, h.handlerCalls)
}

func Test_TenantResolver_NoKey(t *testing.T) {
	h := newResolverHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "http://localhost/v1/ping", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "TENANT_NOT_FOUND")
}

func Test_TenantResolver_Suspended(t *testing.T) {
	h := newResolverHarness(t, testTenant("acme", subscription.Suspended, nil))

	w := h.do(httptest.NewRequest(http.MethodGet, "http://acme.example.com/v1/ping", nil))

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "ACCOUNT_SUSPENDED")
	require.Equal(t, 0, h.handlerCalls)
}

func Test_TenantResolver_Churned(t *testing.T) {
	h := newResolverHarness(t, testTenant("acme", subscription.Churned, nil))

	w := h.do(httptest.NewRequest(http.MethodGet, "http://acme.example.com/v1/ping", nil))

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "ACCOUNT_CLOSED")
}

func Test_TenantResolver_Locked(t *testing.T) {
	expiry := time.Now().Add(-72 * time.Hour).UTC().Truncate(time.Second)
	h := newResolverHarness(t, testTenant("acme", subscription.Locked, &expiry))

	w := h.do(httptest.NewRequest(http.MethodGet, "http://acme.example.com/v1/ping", nil))

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	require.Contains(t, w.Body.String(), "PAYMENT_REQUIRED")
	require.Contains(t, w.Body.String(), expiry.Format(time.RFC3339))
	require.Equal(t, 0, h.handlerCalls)
}

func Test_TenantResolver_GraceWarning(t *testing.T) {
	expiry := time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Second)
	h := newResolverHarness(t, testTenant("acme", subscription.Active, &expiry))

	w := h.do(httptest.NewRequest(http.MethodGet, "http://acme.example.com/v1/ping", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, 1, h.handlerCalls)

	warning := w.Header().Get(WarningHeader)
	require.Contains(t, warning, fmt.Sprintf("expiry=%s", expiry.Format(time.RFC3339)))
	require.Contains(t, warning, "grace period")
}

func Test_TenantResolver_SkipsControlPaths(t *testing.T) {
	h := newResolverHarness(t)

	for _, path := range []string{"/v1/liveness", "/v1/readiness", "/v1/auth/login", "/v1/admin/tenants"} {
		r := httptest.NewRequest(http.MethodGet, "http://localhost"+path, nil)
		w := h.do(r)

		require.Equal(t, http.StatusNoContent, w.Code, "path %s", path)
	}
	require.Equal(t, 4, h.handlerCalls)
}

// =============================================================================

type resolverHarness struct {
	app          *web.App
	handlerCalls int
	seenTenant   tenantbus.Tenant
}

func newResolverHarness(t *testing.T, tenants ...tenantbus.Tenant) *resolverHarness {
	t.Helper()

	log := logger.New(io.Discard, logger.LevelInfo, "TEST", nil)

	storer := &resolverStorer{tenants: tenants}
	tenantBus := tenantbus.NewCore(log, nil, storer)

	h := resolverHarness{
		app: web.NewApp(log.Info, nil),
	}

	handler := func(ctx context.Context, r *http.Request) web.Encoder {
		h.handlerCalls++
		h.seenTenant, _ = GetTenant(ctx)
		return nil
	}

	for _, path := range []string{"/v1/ping", "/v1/liveness", "/v1/readiness", "/v1/auth/login", "/v1/admin/tenants"} {
		h.app.HandlerFunc(http.MethodGet, "", path, handler, TenantResolver(log, tenantBus))
	}

	return &h
}

func (h *resolverHarness) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.app.ServeHTTP(w, r)
	return w
}

func testTenant(sub string, status subscription.Status, expiry *time.Time) tenantbus.Tenant {
	return tenantbus.Tenant{
		ID:                 uuid.New(),
		Name:               name.MustParse("Acme School"),
		Subdomain:          subdomain.MustParse(sub),
		ContactEmail:       mail.Address{Address: "admin@acme.test"},
		Status:             status,
		SubscriptionExpiry: expiry,
		TrialStart:         time.Now().Add(-30 * 24 * time.Hour),
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

// =============================================================================

type resolverStorer struct {
	tenants []tenantbus.Tenant
}

func (s *resolverStorer) NewWithTx(tx sqldb.CommitRollbacker) (tenantbus.Storer, error) {
	return s, nil
}

func (s *resolverStorer) Create(ctx context.Context, t tenantbus.Tenant) error { return nil }
func (s *resolverStorer) Update(ctx context.Context, t tenantbus.Tenant) error { return nil }
func (s *resolverStorer) Delete(ctx context.Context, t tenantbus.Tenant) error { return nil }

func (s *resolverStorer) Query(ctx context.Context, filter tenantbus.QueryFilter, orderBy order.By, pg page.Page) ([]tenantbus.Tenant, error) {
	return s.tenants, nil
}

func (s *resolverStorer) Count(ctx context.Context, filter tenantbus.QueryFilter) (int, error) {
	return len(s.tenants), nil
}

func (s *resolverStorer) QueryByID(ctx context.Context, tenantID uuid.UUID) (tenantbus.Tenant, error) {
	for _, t := range s.tenants {
		if t.ID == tenantID {
			return t, nil
		}
	}
	return tenantbus.Tenant{}, tenantbus.ErrNotFound
}

func (s *resolverStorer) QueryBySubdomain(ctx context.Context, sub string) (tenantbus.Tenant, error) {
	for _, t := range s.tenants {
		if t.Subdomain.String() == sub {
			return t, nil
		}
	}
	return tenantbus.Tenant{}, tenantbus.ErrNotFound
}
