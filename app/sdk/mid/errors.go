package mid

import (
	"context"
	"errors"
	"net/http"

	"github.com/schoolplane/platform/app/sdk/errs"
	"github.com/schoolplane/platform/app/sdk/metrics"
	"github.com/schoolplane/platform/business/sdk/web"
	"github.com/schoolplane/platform/foundation/logger"
)

// Errors handles errors coming out of the call chain. It detects normal
// application errors which are used to respond to the client in a uniform way.
// Unexpected errors (status >= 500) are logged.
func Errors(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)

			err := checkIsError(resp)
			if err == nil {
				return resp
			}

			if errs.IsFieldErrors(err) {
				log.Info(ctx, "handled validation error during request", "err", err)
				return resp
			}

			var appErr *errs.Error
			if !errors.As(err, &appErr) {
				appErr = errs.Errorf(errs.Internal, "%s", err)
			}

			// Client side failures are expected traffic.
			logFn := log.Error
			if appErr.HTTPStatus() < http.StatusInternalServerError {
				logFn = log.Info
			}

			logFn(ctx, "handled error during request",
				"err", err,
				"source_err_file", appErr.FileName,
				"source_err_func", appErr.FuncName)

			if appErr.Code == errs.InternalOnlyLog {
				appErr = errs.Errorf(errs.Internal, "internal server error")
			}

			metrics.AddErrors(ctx)

			return appErr
		}

		return h
	}

	return m
}
