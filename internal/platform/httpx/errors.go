// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RespondError maps ledger error kinds to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := shared.CodeOf(err)
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", code, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", code, err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", code, err.Error())
	case errors.Is(err, shared.ErrConsistency):
		if logger != nil {
			logger.Error("ledger consistency violation", slog.String("code", code), slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Consistency Violation", code, "")
	default:
		if logger != nil {
			logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "", "")
	}
}
