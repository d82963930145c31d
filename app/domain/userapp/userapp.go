// Package userapp maintains the platform operator accounts.
package userapp

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/app/sdk/errs"
	"github.com/schoolplane/platform/app/sdk/mid"
	"github.com/schoolplane/platform/app/sdk/query"
	"github.com/schoolplane/platform/business/domain/userbus"
	"github.com/schoolplane/platform/business/sdk/order"
	"github.com/schoolplane/platform/business/sdk/page"
	"github.com/schoolplane/platform/business/sdk/web"
)

type app struct {
	userBus *userbus.Core
}

// newApp constructs a user app API for use.
func newApp(userBus *userbus.Core) *app {
	return &app{
		userBus: userBus,
	}
}

// create adds a new operator to the system.
func (a *app) create(ctx context.Context, r *http.Request) web.Encoder {
	var app NewUser
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	nu, err := toBusNewUser(app)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	usr, err := a.userBus.Create(ctx, nu)
	if err != nil {
		if errors.Is(err, userbus.ErrUniqueEmail) {
			return errs.New(errs.Aborted, userbus.ErrUniqueEmail)
		}
		return errs.Errorf(errs.InternalOnlyLog, "create: usr[%+v]: %s", usr, err)
	}

	return toAppUser(usr)
}

// update updates an existing operator.
func (a *app) update(ctx context.Context, r *http.Request) web.Encoder {
	var app UpdateUser
	if err := web.Decode(r, &app); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	usr, encErr := a.userByRoute(ctx, r)
	if encErr != nil {
		return encErr
	}

	uu, err := toBusUpdateUser(app)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	updUsr, err := a.userBus.Update(ctx, usr, uu)
	if err != nil {
		return errs.Errorf(errs.InternalOnlyLog, "update: userID[%s] uu[%+v]: %s", usr.ID, uu, err)
	}

	return toAppUser(updUsr)
}

// delete removes an operator from the system. An operator cannot remove
// their own account.
func (a *app) delete(ctx context.Context, r *http.Request) web.Encoder {
	usr, encErr := a.userByRoute(ctx, r)
	if encErr != nil {
		return encErr
	}

	if usr.ID == mid.GetSubjectID(ctx) {
		return errs.Errorf(errs.FailedPrecondition, "delete: operators cannot delete themselves")
	}

	if err := a.userBus.Delete(ctx, usr); err != nil {
		return errs.Errorf(errs.InternalOnlyLog, "delete: userID[%s]: %s", usr.ID, err)
	}

	return nil
}

// query returns a list of operators with paging.
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

	orderBy, err := order.Parse(orderByFields, qp.OrderBy, userbus.DefaultOrderBy)
	if err != nil {
		return errs.NewFieldErrors("order", err)
	}

	usrs, err := a.userBus.Query(ctx, filter, orderBy, page)
	if err != nil {
		return errs.Errorf(errs.Internal, "query: %s", err)
	}

	total, err := a.userBus.Count(ctx, filter)
	if err != nil {
		return errs.Errorf(errs.Internal, "count: %s", err)
	}

	return query.NewResult(toAppUsers(usrs), total, page)
}

// queryByID returns an operator by its ID.
func (a *app) queryByID(ctx context.Context, r *http.Request) web.Encoder {
	usr, encErr := a.userByRoute(ctx, r)
	if encErr != nil {
		return encErr
	}

	return toAppUser(usr)
}

// userByRoute resolves the user named by the user_id route parameter.
func (a *app) userByRoute(ctx context.Context, r *http.Request) (userbus.User, web.Encoder) {
	userID, err := uuid.Parse(web.Param(r, "user_id"))
	if err != nil {
		return userbus.User{}, errs.NewFieldErrors("user_id", err)
	}

	usr, err := a.userBus.QueryByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userbus.ErrNotFound) {
			return userbus.User{}, errs.New(errs.NotFound, err)
		}
		return userbus.User{}, errs.Errorf(errs.InternalOnlyLog, "query user: %s", err)
	}

	return usr, nil
}
