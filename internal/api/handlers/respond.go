package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dj-pizzaria/storefront/internal/domain"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain failure kind to an HTTP status. INTERNAL
// causes are logged here and stay opaque to the caller.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		slog.Error("internal error", "error", err)
	}
	writeJSON(w, statusFor(kind), errorResponse{
		Success: false,
		Kind:    string(kind),
		Message: domain.MessageOf(err),
	})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindNotUsable, domain.KindExpired:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON validates request shape at the boundary: unknown fields and
// type mismatches are rejected before any business logic runs.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Wrap(domain.KindValidation, "invalid request body", err)
	}
	return nil
}
