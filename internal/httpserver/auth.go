package httpserver

import (
	"net/http"
	"strings"

	domain "bandsched/backend/internal/domain/auth"
	"bandsched/backend/internal/observability"

	"github.com/samber/oops"
)

// verifierFailureCode marks a token verifier that could not run at all, as
// opposed to a token that failed verification.
const verifierFailureCode = "AUTH_TOKEN_VERIFY_FAILED"

// authMiddleware admits a request only with a valid bearer token whose
// subject still exists, and attaches the principal to the context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.metrics.RecordAuth(observability.EventGate, string(domain.KindUnauthenticated))
			s.writeServiceError(w, r, domain.ErrUnauthenticated)
			return
		}

		principal, err := s.authService.Authenticate(r.Context(), token)
		if err != nil {
			s.metrics.RecordAuth(observability.EventGate, gateOutcome(err))
			if domain.KindOf(err) != domain.KindInternal {
				s.logger.DebugContext(r.Context(), "request rejected by auth gate", "reason", domain.KindOf(err))
			}
			s.writeServiceError(w, r, err)
			return
		}

		s.metrics.RecordAuth(observability.EventGate, "success")
		next.ServeHTTP(w, r.WithContext(domain.ContextWithPrincipal(r.Context(), principal)))
	})
}

func gateOutcome(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == verifierFailureCode {
		return "verifier_failure"
	}
	return outcome(err)
}

// extractBearerToken accepts exactly "Bearer <token>", scheme
// case-insensitive.
func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
