package mid

import (
	"context"
	"net/http"

	"github.com/schoolplane/platform/app/sdk/auth"
	"github.com/schoolplane/platform/app/sdk/errs"
	"github.com/schoolplane/platform/business/sdk/web"
)

// Authorize checks the authenticated user is allowed to perform the given
// action on the given object. Routes declare the object and action so the
// policy stays independent of the HTTP verb.
func Authorize(a *auth.Auth, obj string, act string) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			claims := GetClaims(ctx)
			if claims.Subject == "" {
				return errs.Errorf(errs.Unauthenticated, "authorize: missing claims")
			}

			if err := a.Authorize(ctx, claims, obj, act); err != nil {
				return errs.Errorf(errs.PermissionDenied, "authorize: role[%s] object[%s] action[%s]: %s", claims.Role, obj, act, err)
			}

			return next(ctx, r)
		}

		return h
	}

	return m
}
