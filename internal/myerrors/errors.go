package myerrors

import "errors"

// Outcome taxonomy shared by the booking and dispatch services. Every
// one of these is a recoverable, caller-visible result and is returned
// synchronously to the invoking request or websocket message.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("resource already held")
	ErrAlreadyTaken = errors.New("request already taken")
	ErrExpired      = errors.New("reservation expired")
	ErrValidation   = errors.New("validation failed")
	ErrUnavailable  = errors.New("no responders nearby")
)

// Code maps a taxonomy error to its wire-level error code. Unknown
// errors map to INTERNAL.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrAlreadyTaken):
		return "ALREADY_TAKEN"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps a taxonomy error to an HTTP status code for the
// request/response surface.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrAlreadyTaken), errors.Is(err, ErrConflict):
		return 409
	case errors.Is(err, ErrExpired):
		return 410
	case errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrUnavailable):
		return 503
	default:
		return 500
	}
}
