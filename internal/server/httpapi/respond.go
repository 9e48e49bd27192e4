package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/common"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrUploadBody):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrInvalidCode),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	// a dead challenge cannot be retried, only restarted
	case errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenNotFound),
		errors.Is(err, common.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the client-facing text for err. Authentication failures are
// collapsed so the response never tells which check failed.
func messageFor(err error) string {
	switch {
	case errors.Is(err, common.ErrValidation):
		return err.Error()
	case errors.Is(err, common.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, common.ErrInvalidCode):
		return "Invalid verification code."
	case errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenNotFound):
		return "Your sign-in attempt has expired. Please sign in again."
	}
	return http.StatusText(statusFor(err))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: messageFor(err)})
}

func setCookie(w http.ResponseWriter, r *http.Request, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
