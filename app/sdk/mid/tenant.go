package mid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/schoolplane/platform/app/sdk/auth"
	"github.com/schoolplane/platform/app/sdk/errs"
	"github.com/schoolplane/platform/business/domain/lifecyclebus"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/web"
	"github.com/schoolplane/platform/business/types/subdomain"
	"github.com/schoolplane/platform/foundation/logger"
)

// WarningHeader carries the grace period notice on otherwise successful
// responses.
const WarningHeader = "X-Subscription-Warning"

var errTenantNotFound = errors.New("TENANT_NOT_FOUND")

// Paths served without a tenant: health probes, platform login and the
// admin surface.
func skipTenantResolution(path string) bool {
	switch {
	case path == "/v1/liveness", path == "/v1/readiness":
		return true
	case strings.HasPrefix(path, "/v1/auth/"):
		return true
	case strings.HasPrefix(path, "/v1/admin/"):
		return true
	}

	return false
}

// TenantResolver identifies the tenant behind each request, checks its
// subscription is in a state that permits traffic and stores the tenant in
// the context. The subdomain label of the Host header wins; the X-Tenant-ID
// header is the fallback for clients that cannot set the Host.
func TenantResolver(log *logger.Logger, tenantBus *tenantbus.Core) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			if skipTenantResolution(r.URL.Path) {
				return next(ctx, r)
			}

			key := tenantKeyFromRequest(r)
			if key == "" {
				log.Info(ctx, "tenant resolve", "status", "rejected", "reason", "no tenant key", "host", r.Host)
				return errs.New(errs.NotFound, errTenantNotFound)
			}

			tnt, err := tenantBus.QueryByKey(ctx, key)
			if err != nil {
				if errors.Is(err, tenantbus.ErrNotFound) {
					log.Info(ctx, "tenant resolve", "status", "rejected", "reason", "unknown tenant", "key", key)
					return errs.New(errs.NotFound, errTenantNotFound)
				}
				return errs.Errorf(errs.Internal, "query tenant: key[%s]: %s", key, err)
			}

			decision := lifecyclebus.Validate(tnt.Status, tnt.SubscriptionExpiry, time.Now())
			if !decision.Allowed {
				return rejectTenant(ctx, log, tnt, decision)
			}

			ctx = setTenant(ctx, tnt)

			resp := next(ctx, r)

			if decision.Warning != "" {
				if w := web.GetWriter(ctx); w != nil {
					w.Header().Set(WarningHeader, fmt.Sprintf("expiry=%s; %s", decision.Expiry.Format(time.RFC3339), decision.Warning))
				}
			}

			return resp
		}

		return h
	}

	return m
}

// rejectTenant maps a denied decision onto the wire. These are expected
// outcomes of normal subscription churn, so they log at info.
func rejectTenant(ctx context.Context, log *logger.Logger, tnt tenantbus.Tenant, decision lifecyclebus.Decision) web.Encoder {
	log.Info(ctx, "tenant resolve", "status", "rejected", "tenantID", tnt.ID, "reason", decision.Reason)

	switch decision.Reason {
	case lifecyclebus.ReasonPaymentRequired:
		details := struct {
			Expiry *time.Time `json:"expiry,omitempty"`
		}{
			Expiry: decision.Expiry,
		}
		return errs.NewWithDetails(errs.PaymentRequired, errors.New(decision.Reason), details)

	default:
		return errs.New(errs.PermissionDenied, errors.New(decision.Reason))
	}
}

// tenantKeyFromRequest extracts the tenant key from the request. A usable
// subdomain label requires the host to have at least one dot; bare hosts fall
// through to the header.
func tenantKeyFromRequest(r *http.Request) string {
	host := auth.ExtractHost(r.Host)

	if i := strings.Index(host, "."); i > 0 {
		if label := host[:i]; !subdomain.Reserved(label) {
			return label
		}
	}

	return r.Header.Get("X-Tenant-ID")
}
