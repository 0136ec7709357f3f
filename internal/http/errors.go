package http

import (
	"errors"
	"net/http"

	"spesa/internal/core"
	applog "spesa/internal/log"
	"spesa/internal/query"
	"spesa/internal/services"
)

// writeError maps a service error to its HTTP response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		ve      *core.ValidationError
		tooLong *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLong):
		ErrorResponse(http.StatusRequestEntityTooLarge, "payload_too_large", err.Error()).Write(w)
	case errors.As(err, &ve):
		FieldError(ve.Field, ve.Err.Error()).Write(w)
	case errors.Is(err, query.ErrInvalidSortField), errors.Is(err, query.ErrInvalidSortDirection):
		FieldError("sort", err.Error()).Write(w)
	case errors.Is(err, core.ErrInvalidCategory):
		FieldError("category", err.Error()).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, errInvalidID):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, errInvalidBody), errors.Is(err, services.ErrImportParse):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, services.ErrResetNotConfirmed):
		ErrorResponse(http.StatusPreconditionFailed, "confirmation_required", err.Error()).Write(w)
	default:
		applog.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, applog.ErrorTypeInternal)
		InternalServerError("internal error").Write(w)
	}
}
