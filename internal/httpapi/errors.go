package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"enginectl/internal/download"
	"enginectl/internal/engine"
	"enginectl/internal/supervisor"
	"enginectl/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps well-known component errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case engine.IsEngineNotFound(err):
		return http.StatusNotFound
	case download.IsInvalidRequest(err):
		return http.StatusBadRequest
	case engine.IsInstallInProgress(err), supervisor.IsNotInstalled(err):
		return http.StatusConflict
	case supervisor.IsExitedEarly(err), errors.Is(err, supervisor.ErrStartupTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Error().Err(err).Msg("encode response")
	}
}
