package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/http/middleware"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// toAppError maps a domain error kind onto an HTTP error.
func toAppError(err error) *xhttp.AppError {
	var ae *xhttp.AppError
	if errors.As(err, &ae) {
		return ae
	}
	var de *errs.Error
	if !errors.As(err, &de) {
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
	switch de.Kind {
	case errs.KindValidation:
		ae = xhttp.NewAppError("ERR_VALIDATION", de.Field, de.Message, http.StatusBadRequest)
	case errs.KindNotFound:
		ae = xhttp.NotFoundError(de.Message)
	case errs.KindConflict:
		ae = xhttp.ConflictError(de.Message)
	case errs.KindQuotaExceeded:
		ae = xhttp.UnprocessableError("ERR_QUOTA_EXCEEDED", de.Message)
	case errs.KindExternal:
		ae = xhttp.BadGatewayError(de.Message)
	case errs.KindPartialFailure:
		ae = xhttp.NewAppError("ERR_PARTIAL_FAILURE", "", de.Message, http.StatusMultiStatus)
	default:
		ae = xhttp.InternalError(de.Error())
	}
	return ae.WithError(err)
}

// fail logs server-side failures and writes the mapped error.
func fail(c echo.Context, lgr *logger.Logger, op string, err error) error {
	ae := toAppError(err)
	if ae.Status >= http.StatusInternalServerError {
		lgr.Error(op+" failed", logger.Error(err))
	}
	return xhttp.AppErrorResponse(c, ae)
}

func actorID(c echo.Context) string {
	a, _ := middleware.ActorFrom(c)
	return a.ID
}
