package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"bandsched/backend/internal/config"
	domain "bandsched/backend/internal/domain/auth"
	"bandsched/backend/internal/observability"
	authusecase "bandsched/backend/internal/usecase/auth"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthService is the part of the auth use case the HTTP layer drives.
type AuthService interface {
	Register(ctx context.Context, reg domain.Registration) (*authusecase.AuthResult, error)
	Login(ctx context.Context, creds domain.Credentials) (*authusecase.AuthResult, error)
	CurrentUser(ctx context.Context, id string) (*domain.PublicUser, error)
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

var _ AuthService = (*authusecase.Service)(nil)

// Server wraps the HTTP server lifecycle.
type Server struct {
	httpServer  *http.Server
	router      *http.ServeMux
	handler     http.Handler
	authService AuthService
	logger      *slog.Logger
	registry    *prometheus.Registry
	metrics     *observability.Metrics
	limiter     *ipRateLimiter
	production  bool
	addr        string
}

// NewServer constructs a new Server with configured dependencies. Metrics are
// registered on registry and served from /metrics.
func NewServer(cfg config.Config, authService AuthService, logger *slog.Logger, registry *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	addr := cfg.HTTPPort
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	srv := &Server{
		router:      mux,
		authService: authService,
		logger:      logger,
		registry:    registry,
		metrics:     observability.NewMetrics(registry),
		limiter:     newIPRateLimiter(cfg.RateLimit, cfg.RateBurst),
		production:  cfg.IsProduction(),
		addr:        addr,
	}
	srv.handler = srv.withRequestID(srv.withLogging(srv.withMetrics(srv.withRecovery(withCORS(mux, cfg.AllowedOrigins)))))
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	srv.registerRoutes()
	return srv
}

// Start bootstraps the HTTP server on the configured address.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	return s.httpServer.Serve(l)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured network address for the HTTP server.
func (s *Server) Addr() string {
	return s.addr
}
