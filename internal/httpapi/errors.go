package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	authcore "github.com/retailstack/authcore"
)

// Error is the structured error response body.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "bad_request", message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

// writeEngineError maps the engine's sentinel errors to HTTP statuses. The
// message is the sentinel text only, never the wrapped backend detail.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if retry, ok := authcore.RetryAfterHint(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second)/time.Second)))
	}

	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, publicMessage(err))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, authcore.ErrRateLimited),
		errors.Is(err, authcore.ErrMFAAttemptsExceeded):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, authcore.ErrAccountLocked):
		return http.StatusLocked, "account_locked"
	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrAccessTokenInvalid),
		errors.Is(err, authcore.ErrAccessTokenExpired),
		errors.Is(err, authcore.ErrSessionInvalid),
		errors.Is(err, authcore.ErrSessionExpired),
		errors.Is(err, authcore.ErrSessionReused),
		errors.Is(err, authcore.ErrTokenInvalid),
		errors.Is(err, authcore.ErrTokenExpired),
		errors.Is(err, authcore.ErrTokenConsumed),
		errors.Is(err, authcore.ErrMFACodeInvalid),
		errors.Is(err, authcore.ErrMFAChallengeInvalid),
		errors.Is(err, authcore.ErrMFAChallengeExpired),
		errors.Is(err, authcore.ErrMFARequired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, authcore.ErrAccountNotApproved),
		errors.Is(err, authcore.ErrEmailNotVerified),
		errors.Is(err, authcore.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, authcore.ErrUserNotFound),
		errors.Is(err, authcore.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, authcore.ErrDuplicateIdentity),
		errors.Is(err, authcore.ErrInvalidState),
		errors.Is(err, authcore.ErrMFAAlreadyEnabled),
		errors.Is(err, authcore.ErrMFANotConfigured):
		return http.StatusConflict, "conflict"
	case errors.Is(err, authcore.ErrPasswordPolicy),
		errors.Is(err, authcore.ErrInvalidRole),
		errors.Is(err, authcore.ErrInvalidIdentity):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, authcore.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// publicMessage strips wrapped cause detail: clients get the sentinel text,
// logs get the rest.
func publicMessage(err error) string {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err.Error()
		}
		err = unwrapped
	}
}
