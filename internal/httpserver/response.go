package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	domain "bandsched/backend/internal/domain/auth"
	"bandsched/backend/internal/logging"

	"github.com/samber/oops"
)

const internalErrorMessage = "An unexpected error occurred"

type errorResponse struct {
	Message string              `json:"message"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
	Stack   string              `json:"stack,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindConflict, domain.KindInvalidCredentials:
		return http.StatusBadRequest
	case domain.KindUnauthenticated, domain.KindInvalidToken, domain.KindTokenExpired:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err as the standard error body. Internal errors
// are logged, and their detail only reaches the client outside production.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status != http.StatusInternalServerError {
		body := errorResponse{Message: domain.MessageOf(err)}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			body.Errors = verr.Fields
		}
		writeJSON(w, status, body)
		return
	}

	logging.LogError(r.Context(), s.logger, "request failed", err)
	if s.production {
		writeError(w, status, internalErrorMessage)
		return
	}
	body := errorResponse{Message: err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		body.Stack = oopsErr.Stacktrace()
	}
	writeJSON(w, status, body)
}
