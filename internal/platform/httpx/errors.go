package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// StatusFor maps ledger errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrImbalanced):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrDuplicateCode), errors.Is(err, shared.ErrSourceAlreadyPosted),
		errors.Is(err, shared.ErrAlreadyReversed), errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusConflict
	case shared.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as a problem details response. Internal errors
// keep their detail out of the body.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, http.StatusText(status), detail)
}
