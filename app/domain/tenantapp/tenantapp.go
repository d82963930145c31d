// Package tenantapp maintains tenant accounts through the admin API:
// provisioning, queries, subscription lifecycle and credential rotation.
package tenantapp

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/app/sdk/errs"
	"github.com/schoolplane/platform/app/sdk/mid"
	"github.com/schoolplane/platform/app/sdk/query"
	"github.com/schoolplane/platform/business/domain/auditbus"
	"github.com/schoolplane/platform/business/domain/lifecyclebus"
	"github.com/schoolplane/platform/business/domain/provisionbus"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/dbrouter"
	"github.com/schoolplane/platform/business/sdk/order"
	"github.com/schoolplane/platform/business/sdk/page"
	"github.com/schoolplane/platform/business/sdk/web"
)

type app struct {
	tenantBus    *tenantbus.Core
	lifecycleBus *lifecyclebus.Core
	provisionBus *provisionbus.Core
	auditBus     *auditbus.Core
	router       *dbrouter.Router
}

func newApp(tenantBus *tenantbus.Core, lifecycleBus *lifecyclebus.Core, provisionBus *provisionbus.Core, auditBus *auditbus.Core, router *dbrouter.Router) *app {
	return &app{
		tenantBus:    tenantBus,
		lifecycleBus: lifecycleBus,
		provisionBus: provisionBus,
		auditBus:     auditBus,
		router:       router,
	}
}

// create provisions a new tenant end to end. The generated admin password is
// returned exactly once.
func (a *app) create(ctx context.Context, r *http.Request) web.Encoder {
	var app NewTenant
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	np, err := toBusNewProvision(app)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	prv, err := a.provisionBus.Provision(ctx, np)
	if err != nil {
		if errors.Is(err, tenantbus.ErrUniqueSubdomain) {
			return errs.New(errs.Aborted, tenantbus.ErrUniqueSubdomain)
		}

		var pErr *provisionbus.ProvisioningError
		if errors.As(err, &pErr) {
			return errs.Errorf(errs.FailedPrecondition, "provision: step[%s]: %s", pErr.Step, pErr.Err)
		}

		return errs.Errorf(errs.InternalOnlyLog, "provision: subdomain[%s]: %s", np.Subdomain, err)
	}

	return toAppProvisioned(prv)
}

// update changes a tenant's contact details.
func (a *app) update(ctx context.Context, r *http.Request) web.Encoder {
	var app UpdateTenant
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	tnt, encErr := a.tenantByRoute(ctx, r)
	if encErr != nil {
		return encErr
	}

	ut, err := toBusUpdateTenant(app)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	updTnt, err := a.tenantBus.Update(ctx, tnt, ut)
	if err != nil {
		return errs.Errorf(errs.InternalOnlyLog, "update: tenantID[%s] ut[%+v]: %s", tnt.ID, ut, err)
	}

	return toAppTenant(updTnt)
}

// query returns a list of tenants with paging.
func (a *app) query(ctx context.Context, r *http.Request) web.Encoder {
	qp := parseQueryParams(r)

	page, err := page.Parse(qp.Page, qp.Rows)
	if err != nil {
		return errs.NewFieldErrors("page", err)
	}

	filter, err := parseFilter(qp)
	if err != nil {
		if v, ok := err.(*errs.Error); ok {
			return v
		}
		return errs.NewFieldErrors("filter", err)
	}

	orderBy, err := order.Parse(orderByFields, qp.OrderBy, tenantbus.DefaultOrderBy)
	if err != nil {
		return errs.NewFieldErrors("order", err)
	}

	tnts, err := a.tenantBus.Query(ctx, filter, orderBy, page)
	if err != nil {
		return errs.Errorf(errs.Internal, "query: %s", err)
	}

	total, err := a.tenantBus.Count(ctx, filter)
	if err != nil {
		return errs.Errorf(errs.Internal, "count: %s", err)
	}

	return query.NewResult(toAppTenants(tnts), total, page)
}

// queryByID returns a tenant by its ID.
func (a *app) queryByID(ctx context.Context, r *http.Request) web.Encoder {
	tnt, encErr := a.tenantByRoute(ctx, r)
	if encErr != nil {
		return encErr
	}

	return toAppTenant(tnt)
}

// =============================================================================
// Lifecycle

func (a *app) activate(ctx context.Context, r *http.Request) web.Encoder {
	var app Activate
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	tenantID, encErr := tenantIDFromRoute(r)
	if encErr != nil {
		return encErr
	}

	tnt, err := a.lifecycleBus.Activate(ctx, lifecyclebus.Activation{
		TenantID:   tenantID,
		Actor:      actor(ctx),
		PaymentRef: app.PaymentRef,
	})
	if err != nil {
		return lifecycleError(tenantID, "activate", err)
	}

	return toAppTenant(tnt)
}

func (a *app) unlock(ctx context.Context, r *http.Request) web.Encoder {
	var app Unlock
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	tenantID, encErr := tenantIDFromRoute(r)
	if encErr != nil {
		return encErr
	}

	tnt, err := a.lifecycleBus.Unlock(ctx, lifecyclebus.Unlock{
		TenantID:      tenantID,
		Actor:         actor(ctx),
		ExtensionDays: app.ExtensionDays,
		PaymentRef:    app.PaymentRef,
	})
	if err != nil {
		return lifecycleError(tenantID, "unlock", err)
	}

	return toAppTenant(tnt)
}

func (a *app) extend(ctx context.Context, r *http.Request) web.Encoder {
	var app Extend
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	tenantID, encErr := tenantIDFromRoute(r)
	if encErr != nil {
		return encErr
	}

	tnt, err := a.lifecycleBus.Extend(ctx, lifecyclebus.Extension{
		TenantID:      tenantID,
		Actor:         actor(ctx),
		ExtensionDays: app.ExtensionDays,
		PaymentRef:    app.PaymentRef,
	})
	if err != nil {
		return lifecycleError(tenantID, "extend", err)
	}

	return toAppTenant(tnt)
}

func (a *app) suspend(ctx context.Context, r *http.Request) web.Encoder {
	var app Suspend
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	tenantID, encErr := tenantIDFromRoute(r)
	if encErr != nil {
		return encErr
	}

	tnt, err := a.lifecycleBus.Suspend(ctx, lifecyclebus.Suspension{
		TenantID: tenantID,
		Actor:    actor(ctx),
		Reason:   app.Reason,
	})
	if err != nil {
		return lifecycleError(tenantID, "suspend", err)
	}

	return toAppTenant(tnt)
}

func (a *app) churn(ctx context.Context, r *http.Request) web.Encoder {
	var app Churn
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	tenantID, encErr := tenantIDFromRoute(r)
	if encErr != nil {
		return encErr
	}

	tnt, err := a.lifecycleBus.Churn(ctx, lifecyclebus.Churn{
		TenantID: tenantID,
		Actor:    actor(ctx),
		Reason:   app.Reason,
	})
	if err != nil {
		return lifecycleError(tenantID, "churn", err)
	}

	return toAppTenant(tnt)
}

// =============================================================================

// rotateCredentials re-encrypts the tenant's connection material and drops
// any live pool so the next request opens with the new credentials.
func (a *app) rotateCredentials(ctx context.Context, r *http.Request) web.Encoder {
	var app RotateCredentials
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	tnt, encErr := a.tenantByRoute(ctx, r)
	if encErr != nil {
		return encErr
	}

	d, err := toBusDescriptor(app.Descriptor)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	updTnt, err := a.tenantBus.RotateCredentials(ctx, tnt, d, app.Secret)
	if err != nil {
		return errs.Errorf(errs.InternalOnlyLog, "rotate: tenantID[%s]: %s", tnt.ID, err)
	}

	a.router.Evict(tnt.ID)

	return toAppTenant(updTnt)
}

// queryAudit returns the tenant's audit trail with paging.
func (a *app) queryAudit(ctx context.Context, r *http.Request) web.Encoder {
	qp := parseQueryParams(r)

	page, err := page.Parse(qp.Page, qp.Rows)
	if err != nil {
		return errs.NewFieldErrors("page", err)
	}

	tnt, encErr := a.tenantByRoute(ctx, r)
	if encErr != nil {
		return encErr
	}

	entries, err := a.auditBus.QueryByTenant(ctx, tnt.ID, page)
	if err != nil {
		return errs.Errorf(errs.Internal, "query audit: tenantID[%s]: %s", tnt.ID, err)
	}

	total, err := a.auditBus.CountByTenant(ctx, tnt.ID)
	if err != nil {
		return errs.Errorf(errs.Internal, "count audit: tenantID[%s]: %s", tnt.ID, err)
	}

	return query.NewResult(toAppAuditEntries(entries), total, page)
}

// =============================================================================

func (a *app) tenantByRoute(ctx context.Context, r *http.Request) (tenantbus.Tenant, web.Encoder) {
	tenantID, encErr := tenantIDFromRoute(r)
	if encErr != nil {
		return tenantbus.Tenant{}, encErr
	}

	tnt, err := a.tenantBus.QueryByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenantbus.ErrNotFound) {
			return tenantbus.Tenant{}, errs.New(errs.NotFound, err)
		}
		return tenantbus.Tenant{}, errs.Errorf(errs.InternalOnlyLog, "query tenant: %s", err)
	}

	return tnt, nil
}

func tenantIDFromRoute(r *http.Request) (uuid.UUID, web.Encoder) {
	tenantID, err := uuid.Parse(web.Param(r, "tenant_id"))
	if err != nil {
		return uuid.Nil, errs.NewFieldErrors("tenant_id", err)
	}

	return tenantID, nil
}

func actor(ctx context.Context) *uuid.UUID {
	subjectID := mid.GetSubjectID(ctx)
	if subjectID == uuid.Nil {
		return nil
	}

	return &subjectID
}

func lifecycleError(tenantID uuid.UUID, op string, err error) web.Encoder {
	switch {
	case errors.Is(err, lifecyclebus.ErrNotFound):
		return errs.New(errs.NotFound, err)

	case errors.Is(err, lifecyclebus.ErrInvalidTransition):
		return errs.New(errs.FailedPrecondition, err)

	case errors.Is(err, lifecyclebus.ErrReasonRequired), errors.Is(err, lifecyclebus.ErrInvalidExtension):
		return errs.New(errs.InvalidArgument, err)
	}

	return errs.Errorf(errs.InternalOnlyLog, "%s: tenantID[%s]: %s", op, tenantID, err)
}
