// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Error kinds understood by RespondError. Domain errors wrap one of them.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrDuplicate       = errors.New("duplicate entry")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTooManyRequests = errors.New("too many requests")
)

type errorKind struct {
	err    error
	status int
	title  string
}

var errorKinds = []errorKind{
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrDuplicate, http.StatusConflict, "Conflict"},
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrTooManyRequests, http.StatusTooManyRequests, "Too Many Requests"},
}

func kindOf(err error) (errorKind, bool) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k, true
		}
	}
	return errorKind{}, false
}

// RespondError writes err as an RFC7807 problem. Errors outside the known
// kinds become a 500 without detail.
func RespondError(w http.ResponseWriter, err error) {
	k, ok := kindOf(err)
	if !ok {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	Problem(w, k.status, k.title, err.Error())
}

// StatusOf returns the status RespondError would write for err.
func StatusOf(err error) int {
	if k, ok := kindOf(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// IsClientError reports whether err wraps one of the known kinds.
func IsClientError(err error) bool {
	_, ok := kindOf(err)
	return ok
}
