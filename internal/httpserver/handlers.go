package httpserver

import (
	"encoding/json"
	"net/http"

	domain "bandsched/backend/internal/domain/auth"
	"bandsched/backend/internal/observability"
)

const maxBodyBytes = 1 << 20

func (s *Server) registerRoutes() {
	s.router.Handle("/health", http.HandlerFunc(s.handleHealth))
	s.router.Handle("/metrics", observability.Handler(s.registry))

	limited := s.rateLimited
	s.router.Handle("/auth/register", limited(http.HandlerFunc(s.handleRegister)))
	s.router.Handle("/auth/login", limited(http.HandlerFunc(s.handleLogin)))

	authenticated := s.authMiddleware
	s.router.Handle("/auth/me", authenticated(http.HandlerFunc(s.handleMe)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var payload domain.Registration
	if !decodeJSON(w, r, &payload) {
		return
	}

	result, err := s.authService.Register(r.Context(), payload)
	if err != nil {
		s.metrics.RecordAuth(observability.EventRegister, outcome(err))
		s.writeServiceError(w, r, err)
		return
	}

	s.metrics.RecordAuth(observability.EventRegister, "success")
	s.logger.InfoContext(r.Context(), "user registered", "user_id", result.User.ID)
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var payload domain.Credentials
	if !decodeJSON(w, r, &payload) {
		return
	}

	result, err := s.authService.Login(r.Context(), payload)
	if err != nil {
		s.metrics.RecordAuth(observability.EventLogin, outcome(err))
		s.writeServiceError(w, r, err)
		return
	}

	s.metrics.RecordAuth(observability.EventLogin, "success")
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	principal, ok := domain.PrincipalFromContext(r.Context())
	if !ok {
		s.writeServiceError(w, r, domain.ErrUnauthenticated)
		return
	}

	user, err := s.authService.CurrentUser(r.Context(), principal.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// decodeJSON reads a single JSON object from the body. On failure it writes
// the 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

func outcome(err error) string {
	return string(domain.KindOf(err))
}
