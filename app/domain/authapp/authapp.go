// Package authapp provides the login endpoint for platform operators.
package authapp

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/schoolplane/platform/app/sdk/auth"
	"github.com/schoolplane/platform/app/sdk/errs"
	"github.com/schoolplane/platform/business/sdk/web"
)

type app struct {
	auth      *auth.Auth
	activeKID string
}

// newApp constructs an auth app API for use.
func newApp(ath *auth.Auth, activeKID string) *app {
	return &app{
		auth:      ath,
		activeKID: activeKID,
	}
}

func (a *app) login(ctx context.Context, r *http.Request) web.Encoder {
	var req Login

	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("parsing email: %w", err))
	}

	usr, err := a.auth.Login(ctx, *addr, req.Password)
	if err != nil {
		return errs.New(errs.Unauthenticated, err)
	}

	tokenStr, err := a.auth.GenerateToken(a.activeKID, usr.ID, usr.Role)
	if err != nil {
		return errs.New(errs.Internal, err)
	}

	return toAppToken(tokenStr)
}
