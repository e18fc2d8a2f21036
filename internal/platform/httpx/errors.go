// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/smartinventory/smartinventory/internal/shared"
)

// RespondError maps cross-cutting domain errors to RFC7807 responses.
// Module handlers translate their own typed errors first and fall back here.
func RespondError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	var dup *shared.DuplicateError
	var invalid *shared.ValidationError
	switch {
	case errors.As(err, &invalid):
		Problem(w, http.StatusBadRequest, "Validation Failed", invalid.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &dup):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrLockTimeout):
		Problem(w, http.StatusServiceUnavailable, "Contention Timeout", "the operation timed out waiting for a stock lock; retry is safe")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case errors.As(err, &validationErrs), errors.Is(err, ErrMalformedBody):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
