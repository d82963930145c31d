// Package mid provides app level middleware support.
package mid

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/app/sdk/auth"
	"github.com/schoolplane/platform/business/domain/tenantbus"
	"github.com/schoolplane/platform/business/sdk/web"
)

func checkIsError(e web.Encoder) error {
	err, hasError := e.(error)
	if hasError {
		return err
	}

	return nil
}

// =============================================================================

type ctxKey int

const (
	claimKey ctxKey = iota + 1
	userIDKey
	tenantKey
)

func setTenant(ctx context.Context, tnt tenantbus.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, tnt)
}

// GetTenant returns the tenant resolved for the request.
func GetTenant(ctx context.Context) (tenantbus.Tenant, error) {
	v, ok := ctx.Value(tenantKey).(tenantbus.Tenant)
	if !ok {
		return tenantbus.Tenant{}, errors.New("tenant not found in context")
	}

	return v, nil
}

// GetTenantID returns the id of the tenant resolved for the request.
func GetTenantID(ctx context.Context) (uuid.UUID, error) {
	tnt, err := GetTenant(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	return tnt.ID, nil
}

func setClaims(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, claimKey, claims)
}

// GetClaims returns the claims from the context.
func GetClaims(ctx context.Context) auth.Claims {
	v, ok := ctx.Value(claimKey).(auth.Claims)
	if !ok {
		return auth.Claims{}
	}
	return v
}

// GetSubjectID returns the subject id from the claims.
func GetSubjectID(ctx context.Context) uuid.UUID {
	v := GetClaims(ctx)

	subjectID, err := uuid.Parse(v.Subject)
	if err != nil {
		return uuid.UUID{}
	}

	return subjectID
}

func setUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user id from the context.
func GetUserID(ctx context.Context) (uuid.UUID, error) {
	v, ok := ctx.Value(userIDKey).(uuid.UUID)
	if !ok {
		return uuid.UUID{}, errors.New("user id not found in context")
	}

	return v, nil
}
