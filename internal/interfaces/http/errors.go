package http

import (
	"errors"
	"net/http"

	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

const internalErrorMessage = "internal server error"

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrOwnershipConflict),
		errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, entity.ErrInvalidReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrInvalidInput),
		errors.Is(err, entity.ErrMissingRequiredFields),
		errors.Is(err, entity.ErrInvalidDateFormat),
		errors.Is(err, entity.ErrMalformedAmount),
		errors.Is(err, entity.ErrUnsupportedFormat),
		errors.Is(err, lifecycle.ErrInvalidStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
