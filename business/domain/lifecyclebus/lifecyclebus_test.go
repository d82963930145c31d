package lifecyclebus_test

import (
	"context"
	"io"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/domain/lifecyclebus"
	"github.com/schoolplane/platform/business/domain/notifybus"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/page"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/subdomain"
	"github.com/schoolplane/platform/business/types/subscription"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/stretchr/testify/require"
)

func Test_Validate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	healthy := now.Add(48 * time.Hour)
	inGrace := now.Add(-2 * time.Hour)
	lapsed := now.Add(-30 * time.Hour)

	tests := []struct {
		name    string
		status  subscription.Status
		expiry  *time.Time
		allowed bool
		reason  string
		warning bool
	}{
		{"suspended", subscription.Suspended, &healthy, false, lifecyclebus.ReasonSuspended, false},
		{"churned", subscription.Churned, &healthy, false, lifecyclebus.ReasonClosed, false},
		{"locked", subscription.Locked, &healthy, false, lifecyclebus.ReasonPaymentRequired, false},
		{"active healthy", subscription.Active, &healthy, true, "", false},
		{"active in grace window", subscription.Active, &inGrace, true, "", true},
		{"grace in grace window", subscription.Grace, &inGrace, true, "", true},
		{"active past grace window", subscription.Active, &lapsed, false, lifecyclebus.ReasonPaymentRequired, false},
		{"trial past grace window", subscription.Trial, &lapsed, false, lifecyclebus.ReasonPaymentRequired, false},
		{"trial no expiry", subscription.Trial, nil, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := lifecyclebus.Validate(tt.status, tt.expiry, now)

			require.Equal(t, tt.allowed, d.Allowed)
			require.Equal(t, tt.reason, d.Reason)
			if tt.warning {
				require.NotEmpty(t, d.Warning)
			} else {
				require.Empty(t, d.Warning)
			}
		})
	}
}

func Test_Activate(t *testing.T) {
	h := newHarness(t, subscription.Trial, timePtr(time.Now().Add(72*time.Hour)))
	actor := uuid.New()

	got, err := h.core.Activate(context.Background(), lifecyclebus.Activation{
		TenantID:   h.tenant.ID,
		Actor:      &actor,
		PaymentRef: "pay-001",
	})
	require.NoError(t, err)

	require.True(t, got.Status.Equal(subscription.Active))
	require.NotNil(t, got.LastPaymentAt)
	require.Equal(t, 1, h.tx.commits)
	require.Len(t, h.audit.entries, 1)
	require.Equal(t, lifecyclebus.ActionActivated, h.audit.entries[0].Action)
	require.True(t, h.audit.entries[0].FromStatus.Equal(subscription.Trial))
	require.Equal(t, &actor, h.audit.entries[0].Actor)
	require.Equal(t, 1, h.inv.calls)
}

func Test_Activate_InvalidFrom(t *testing.T) {
	h := newHarness(t, subscription.Active, timePtr(time.Now().Add(72*time.Hour)))

	_, err := h.core.Activate(context.Background(), lifecyclebus.Activation{TenantID: h.tenant.ID})
	require.ErrorIs(t, err, lifecyclebus.ErrInvalidTransition)

	require.Equal(t, 0, h.tx.commits)
	require.Empty(t, h.audit.entries)
	require.Equal(t, 0, h.inv.calls)
}

func Test_Extend_AddsToCurrentExpiry(t *testing.T) {
	yesterday := time.Now().Add(-24 * time.Hour).Truncate(time.Second)
	h := newHarness(t, subscription.Active, &yesterday)

	got, err := h.core.Extend(context.Background(), lifecyclebus.Extension{
		TenantID:      h.tenant.ID,
		ExtensionDays: 30,
	})
	require.NoError(t, err)

	// The extension compounds from the stored expiry, not from now.
	require.True(t, got.SubscriptionExpiry.Equal(yesterday.Add(30*24*time.Hour)))
}

func Test_Extend_TerminalRejected(t *testing.T) {
	h := newHarness(t, subscription.Churned, nil)

	_, err := h.core.Extend(context.Background(), lifecyclebus.Extension{
		TenantID:      h.tenant.ID,
		ExtensionDays: 30,
	})
	require.ErrorIs(t, err, lifecyclebus.ErrInvalidTransition)
}

func Test_Suspend_ReasonRequired(t *testing.T) {
	h := newHarness(t, subscription.Active, nil)

	_, err := h.core.Suspend(context.Background(), lifecyclebus.Suspension{
		TenantID: h.tenant.ID,
		Reason:   "too short",
	})
	require.ErrorIs(t, err, lifecyclebus.ErrReasonRequired)

	got, err := h.core.Suspend(context.Background(), lifecyclebus.Suspension{
		TenantID: h.tenant.ID,
		Reason:   "chargeback dispute under review",
	})
	require.NoError(t, err)
	require.True(t, got.Status.Equal(subscription.Suspended))
	require.Len(t, h.notify.created, 1)
	require.Equal(t, notifybus.TemplateAccountSuspended, h.notify.created[0].Template)
}

func Test_Suspend_FromAnyStatus(t *testing.T) {
	statuses := []subscription.Status{
		subscription.Trial,
		subscription.Active,
		subscription.Grace,
		subscription.Locked,
		subscription.Suspended,
		subscription.Churned,
	}

	for _, from := range statuses {
		t.Run(from.String(), func(t *testing.T) {
			h := newHarness(t, from, nil)

			got, err := h.core.Suspend(context.Background(), lifecyclebus.Suspension{
				TenantID: h.tenant.ID,
				Reason:   "operator requested hold",
			})
			require.NoError(t, err)

			require.True(t, got.Status.Equal(subscription.Suspended))
			require.Len(t, h.audit.entries, 1)
			require.True(t, h.audit.entries[0].FromStatus.Equal(from))
			require.Equal(t, 1, h.tx.commits)
			require.Equal(t, 1, h.inv.calls)
		})
	}
}

func Test_Churn_SetsRetentionDeadline(t *testing.T) {
	h := newHarness(t, subscription.Locked, nil)

	got, err := h.core.Churn(context.Background(), lifecyclebus.Churn{
		TenantID: h.tenant.ID,
		Reason:   "customer requested closure",
	})
	require.NoError(t, err)

	require.True(t, got.Status.Equal(subscription.Churned))
	require.NotNil(t, got.RetentionDeadline)
	require.WithinDuration(t, time.Now().Add(lifecyclebus.RetentionWindow), *got.RetentionDeadline, time.Minute)

	_, err = h.core.Churn(context.Background(), lifecyclebus.Churn{TenantID: h.tenant.ID})
	require.ErrorIs(t, err, lifecyclebus.ErrInvalidTransition)
}

func Test_SweepGrace(t *testing.T) {
	expired := time.Now().Add(-2 * time.Hour)
	h := newHarness(t, subscription.Active, &expired)
	h.storer.expiredIDs = []uuid.UUID{h.tenant.ID}

	swept, err := h.core.SweepGrace(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	require.True(t, h.storer.tenant.Status.Equal(subscription.Grace))
	require.Len(t, h.notify.created, 1)
	require.Equal(t, notifybus.TemplateGraceEntered, h.notify.created[0].Template)
	require.Nil(t, h.audit.entries[0].Actor, "sweep audit entries have no actor")

	// Second run: the candidate query is stale, the row re-check under
	// lock skips the tenant and nothing is enqueued twice.
	swept, err = h.core.SweepGrace(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, swept)
	require.Len(t, h.notify.created, 1)
	require.Len(t, h.audit.entries, 1)
}

func Test_SweepLocked(t *testing.T) {
	lapsed := time.Now().Add(-30 * time.Hour)
	h := newHarness(t, subscription.Grace, &lapsed)
	h.storer.expiredIDs = []uuid.UUID{h.tenant.ID}

	swept, err := h.core.SweepLocked(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	require.True(t, h.storer.tenant.Status.Equal(subscription.Locked))
	require.Equal(t, notifybus.TemplateAccountLocked, h.notify.created[0].Template)
}

// =============================================================================

type harness struct {
	core   *lifecyclebus.Core
	tenant tenantbus.Tenant
	storer *fakeStorer
	audit  *fakeAuditStorer
	notify *fakeNotifyStorer
	tx     *fakeTx
	inv    *fakeInvalidator
}

func newHarness(t *testing.T, status subscription.Status, expiry *time.Time) *harness {
	t.Helper()

	log := logger.New(io.Discard, logger.LevelInfo, "TEST", nil)

	tenant := tenantbus.Tenant{
		ID:                 uuid.New(),
		Name:               name.MustParse("Acme School"),
		Subdomain:          subdomain.MustParse("acme"),
		ContactEmail:       mail.Address{Address: "owner@acme.test"},
		Status:             status,
		TrialStart:         time.Now().Add(-96 * time.Hour),
		SubscriptionExpiry: expiry,
	}

	storer := &fakeStorer{tenant: tenant}
	auditStore := &fakeAuditStorer{}
	notifyStore := &fakeNotifyStorer{}
	tx := &fakeTx{}
	inv := &fakeInvalidator{}

	core := lifecyclebus.NewCore(
		log,
		&fakeBeginner{tx: tx},
		storer,
		auditbus.NewCore(log, auditStore),
		notifybus.NewCore(log, notifyStore),
		inv,
	)

	return &harness{
		core:   core,
		tenant: tenant,
		storer: storer,
		audit:  auditStore,
		notify: notifyStore,
		tx:     tx,
		inv:    inv,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

type fakeTx struct {
	commits   int
	rollbacks int
}

func (f *fakeTx) Commit() error   { f.commits++; return nil }
func (f *fakeTx) Rollback() error { f.rollbacks++; return nil }

type fakeBeginner struct {
	tx *fakeTx
}

func (f *fakeBeginner) Begin() (sqldb.CommitRollbacker, error) { return f.tx, nil }

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(t tenantbus.Tenant) { f.calls++ }

type fakeStorer struct {
	tenant     tenantbus.Tenant
	expiredIDs []uuid.UUID
}

func (f *fakeStorer) NewWithTx(tx sqldb.CommitRollbacker) (lifecyclebus.Storer, error) {
	return f, nil
}

func (f *fakeStorer) QueryByIDForUpdate(ctx context.Context, tenantID uuid.UUID) (tenantbus.Tenant, error) {
	if tenantID != f.tenant.ID {
		return tenantbus.Tenant{}, tenantbus.ErrNotFound
	}
	return f.tenant, nil
}

func (f *fakeStorer) Update(ctx context.Context, t tenantbus.Tenant) error {
	f.tenant = t
	return nil
}

func (f *fakeStorer) QueryExpiredIDs(ctx context.Context, status subscription.Status, before time.Time) ([]uuid.UUID, error) {
	return f.expiredIDs, nil
}

type fakeAuditStorer struct {
	entries []auditbus.Entry
}

func (f *fakeAuditStorer) NewWithTx(tx sqldb.CommitRollbacker) (auditbus.Storer, error) {
	return f, nil
}

func (f *fakeAuditStorer) Create(ctx context.Context, e auditbus.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditStorer) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return len(f.entries), nil
}

func (f *fakeAuditStorer) QueryByTenant(ctx context.Context, tenantID uuid.UUID, page page.Page) ([]auditbus.Entry, error) {
	return f.entries, nil
}

type fakeNotifyStorer struct {
	created []notifybus.Notification
}

func (f *fakeNotifyStorer) NewWithTx(tx sqldb.CommitRollbacker) (notifybus.Storer, error) {
	return f, nil
}

func (f *fakeNotifyStorer) Create(ctx context.Context, n notifybus.Notification) error {
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNotifyStorer) Update(ctx context.Context, n notifybus.Notification) error {
	return nil
}

func (f *fakeNotifyStorer) QueryPending(ctx context.Context, limit int) ([]notifybus.Notification, error) {
	return f.created, nil
}
