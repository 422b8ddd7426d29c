package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bandsched/backend/internal/config"
	domain "bandsched/backend/internal/domain/auth"
	"bandsched/backend/internal/infrastructure/memory"
	"bandsched/backend/internal/infrastructure/password"
	"bandsched/backend/internal/infrastructure/token"
	"bandsched/backend/internal/logging"
	"bandsched/backend/internal/observability"
	authusecase "bandsched/backend/internal/usecase/auth"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func testConfig() config.Config {
	return config.Config{
		Env:            "test",
		Store:          config.StoreMemory,
		HTTPPort:       "0",
		JWTSecret:      testSecret,
		JWTIssuer:      "bandsched",
		TokenTTL:       token.DefaultTTL,
		RateLimit:      1000,
		RateBurst:      1000,
		AllowedOrigins: []string{"*"},
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		IdleTimeout:    5 * time.Second,
		LogFormat:      "json",
	}
}

type harness struct {
	server *Server
	repo   *memory.UserRepository
	tokens *token.JWTManager
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	repo := memory.NewUserRepository()
	tokens := token.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL, cfg.JWTIssuer)
	svc := authusecase.NewService(repo, password.NewBcrypt(bcrypt.MinCost), tokens)
	srv := NewServer(cfg, svc, logging.Discard(), observability.NewRegistry())
	return &harness{server: srv, repo: repo, tokens: tokens}
}

func (h *harness) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func bearer(tok string) http.Header {
	return http.Header{"Authorization": {"Bearer " + tok}}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

const claraJSON = `{"email":"clara@example.com","password":"correct-horse","firstName":"Clara","lastName":"Schumann"}`

func (h *harness) register(t *testing.T) (string, string) {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/auth/register", claraJSON, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	user := body["user"].(map[string]any)
	return user["id"].(string), body["token"].(string)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, testConfig())
	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestRegister(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.do(t, http.MethodPost, "/auth/register", claraJSON, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "clara@example.com", user["email"])
	assert.Equal(t, "Clara", user["firstName"])
	assert.Contains(t, user, "createdAt")
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegister_Duplicate(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t)

	rec := h.do(t, http.MethodPost, "/auth/register", claraJSON, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", decodeBody(t, rec)["message"])
	assert.Equal(t, 1, h.repo.Len())
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.do(t, http.MethodPost, "/auth/register", `{"email":"nope","password":"short","firstName":"A","lastName":"B"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Validation error", body.Message)
	assert.Equal(t, []domain.FieldError{
		{Field: "email", Message: "Invalid email address"},
		{Field: "password", Message: "Password must be at least 8 characters"},
	}, body.Errors)
	assert.Zero(t, h.repo.Len())
}

func TestMalformedJSON(t *testing.T) {
	h := newHarness(t, testConfig())
	for _, path := range []string{"/auth/register", "/auth/login"} {
		rec := h.do(t, http.MethodPost, path, `{"email":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid JSON payload", decodeBody(t, rec)["message"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.do(t, http.MethodGet, "/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))

	_, tok := h.register(t)
	rec = h.do(t, http.MethodPost, "/auth/me", "", bearer(tok))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))
}

func TestLogin(t *testing.T) {
	h := newHarness(t, testConfig())
	id, _ := h.register(t)

	rec := h.do(t, http.MethodPost, "/auth/login", `{"email":"clara@example.com","password":"correct-horse"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, id, body["user"].(map[string]any)["id"])

	sub, err := h.tokens.Validate(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, id, sub)
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t)

	wrong := h.do(t, http.MethodPost, "/auth/login", `{"email":"clara@example.com","password":"wrong-password"}`, nil)
	unknown := h.do(t, http.MethodPost, "/auth/login", `{"email":"nobody@example.com","password":"correct-horse"}`, nil)

	assert.Equal(t, http.StatusBadRequest, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "Invalid credentials", decodeBody(t, wrong)["message"])
}

func TestMe(t *testing.T) {
	h := newHarness(t, testConfig())
	id, tok := h.register(t)

	rec := h.do(t, http.MethodGet, "/auth/me", "", bearer(tok))
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody(t, rec)["user"].(map[string]any)
	assert.Equal(t, id, user["id"])
	assert.Equal(t, "clara@example.com", user["email"])
	assert.Contains(t, user, "createdAt")
}

func TestAuthGate(t *testing.T) {
	h := newHarness(t, testConfig())
	_, tok := h.register(t)

	ghost, err := h.tokens.Generate("ghost")
	require.NoError(t, err)

	past := token.NewJWTManager(testSecret, token.DefaultTTL, "bandsched",
		token.WithClock(func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }))
	expired, err := past.Generate("whoever")
	require.NoError(t, err)

	forged, err := token.NewJWTManager("another-secret", token.DefaultTTL, "bandsched").Generate("whoever")
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  http.Header
		message string
	}{
		{"no header", nil, "Authentication required. No token provided."},
		{"wrong scheme", http.Header{"Authorization": {"Basic " + tok}}, "Authentication required. No token provided."},
		{"empty bearer", http.Header{"Authorization": {"Bearer "}}, "Authentication required. No token provided."},
		{"garbage token", bearer("garbage"), "Invalid token"},
		{"forged token", bearer(forged), "Invalid token"},
		{"expired token", bearer(expired), "Token expired"},
		{"subject gone", bearer(ghost), "User not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, "/auth/me", "", tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.message, decodeBody(t, rec)["message"])
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(h.server.metrics.AuthEvents.WithLabelValues("gate", "token_expired")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.server.metrics.AuthEvents.WithLabelValues("gate", "invalid_token")))
}

// stubAuth lets tests drive failure paths the real service cannot reach.
type stubAuth struct {
	authenticate func(ctx context.Context, tok string) (domain.Principal, error)
	currentUser  func(ctx context.Context, id string) (*domain.PublicUser, error)
	login        func(ctx context.Context, creds domain.Credentials) (*authusecase.AuthResult, error)
}

func (s stubAuth) Register(context.Context, domain.Registration) (*authusecase.AuthResult, error) {
	return nil, oops.Code("AUTH_INTERNAL").Errorf("not wired")
}

func (s stubAuth) Login(ctx context.Context, creds domain.Credentials) (*authusecase.AuthResult, error) {
	return s.login(ctx, creds)
}

func (s stubAuth) CurrentUser(ctx context.Context, id string) (*domain.PublicUser, error) {
	return s.currentUser(ctx, id)
}

func (s stubAuth) Authenticate(ctx context.Context, tok string) (domain.Principal, error) {
	return s.authenticate(ctx, tok)
}

func TestMe_UserDeletedAfterGate(t *testing.T) {
	stub := stubAuth{
		authenticate: func(context.Context, string) (domain.Principal, error) {
			return domain.Principal{UserID: "u1"}, nil
		},
		currentUser: func(context.Context, string) (*domain.PublicUser, error) {
			return nil, domain.ErrUserNotFound
		},
	}
	srv := NewServer(testConfig(), stub, logging.Discard(), observability.NewRegistry())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer anything")
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decodeBody(t, rec)["message"])
}

func TestInternalErrors(t *testing.T) {
	failing := stubAuth{
		login: func(context.Context, domain.Credentials) (*authusecase.AuthResult, error) {
			return nil, oops.Code("AUTH_INTERNAL").With("operation", "lookup user").Errorf("pool closed")
		},
	}
	loginBody := `{"email":"clara@example.com","password":"whatever1"}`

	t.Run("detail and stack outside production", func(t *testing.T) {
		var logs bytes.Buffer
		srv := NewServer(testConfig(), failing, logging.Setup("test", "v", "json", "info", &logs), observability.NewRegistry())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(loginBody)))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeBody(t, rec)
		assert.Contains(t, body["message"], "pool closed")
		assert.NotEmpty(t, body["stack"])
		assert.Contains(t, logs.String(), "AUTH_INTERNAL")
	})

	t.Run("generic message in production", func(t *testing.T) {
		cfg := testConfig()
		cfg.Env = config.EnvProduction
		srv := NewServer(cfg, failing, logging.Discard(), observability.NewRegistry())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(loginBody)))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, internalErrorMessage, body["message"])
		assert.NotContains(t, body, "stack")
		assert.NotContains(t, rec.Body.String(), "pool closed")
	})
}

func TestAuthGate_VerifierFailureIsInternal(t *testing.T) {
	stub := stubAuth{
		authenticate: func(context.Context, string) (domain.Principal, error) {
			return domain.Principal{}, oops.Code("AUTH_TOKEN_VERIFY_FAILED").Errorf("key unusable")
		},
	}
	srv := NewServer(testConfig(), stub, logging.Discard(), observability.NewRegistry())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer anything")
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.AuthEvents.WithLabelValues("gate", "verifier_failure")))
}

func TestRecovery(t *testing.T) {
	stub := stubAuth{
		login: func(context.Context, domain.Credentials) (*authusecase.AuthResult, error) {
			panic("boom")
		},
	}
	srv := NewServer(testConfig(), stub, logging.Discard(), observability.NewRegistry())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 2
	h := newHarness(t, cfg)

	body := `{"email":"clara@example.com","password":"wrong-password"}`
	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodPost, "/auth/login", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := h.do(t, http.MethodPost, "/auth/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests, please try again later.", decodeBody(t, rec)["message"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.server.metrics.AuthEvents.WithLabelValues(observability.EventRateLimit, "rejected")))

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", "", nil).Code, "health is not limited")
}

func TestRequestIDAndCORS(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Len(t, rec.Header().Get(requestIDHeader), 26)

	rec = h.do(t, http.MethodGet, "/health", "", http.Header{requestIDHeader: {"abc-123"}})
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = h.do(t, http.MethodOptions, "/auth/login", "", http.Header{"Origin": {"https://app.example"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t)

	rec := h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bandsched_http_requests_total{method="POST",path="/auth/register",status="201"} 1`)
	assert.Contains(t, rec.Body.String(), `bandsched_auth_events_total{event="register",outcome="success"} 1`)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"Bearer a b", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		got, ok := extractBearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.want, got, "header %q", tt.header)
	}
}
