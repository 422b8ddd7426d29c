package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bandsched/backend/internal/config"
	domain "bandsched/backend/internal/domain/auth"
	"bandsched/backend/internal/httpserver"
	"bandsched/backend/internal/infrastructure/memory"
	"bandsched/backend/internal/infrastructure/password"
	"bandsched/backend/internal/infrastructure/postgres"
	"bandsched/backend/internal/infrastructure/token"
	"bandsched/backend/internal/observability"
	authusecase "bandsched/backend/internal/usecase/auth"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger, migrate)
		},
	}
	cmd.Flags().String("http-port", "", "listen port or host:port")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving (postgres store)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) error {
	users, closeStore, err := openStore(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens := token.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL, cfg.JWTIssuer)
	authService := authusecase.NewService(users, password.NewBcrypt(cfg.BcryptCost), tokens,
		authusecase.WithPhoneRegion(cfg.PhoneRegion))

	server := httpserver.NewServer(cfg, authService, logger, observability.NewRegistry())
	logger.Info("HTTP server listening", "addr", server.Addr(), "store", cfg.Store, "env", cfg.Env)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	logger.Info("graceful shutdown completed")
	return nil
}

// postgresSteps are the startup steps for the postgres store. The
// connection is established (with retries) before migrations run, so a
// database that is still starting is waited for.
type postgresSteps struct {
	connect func(ctx context.Context, databaseURL string) (domain.UserRepository, func(), error)
	migrate func(databaseURL string, logger *slog.Logger) error
}

var defaultPostgresSteps = postgresSteps{
	connect: func(ctx context.Context, databaseURL string) (domain.UserRepository, func(), error) {
		db, err := postgres.New(ctx, databaseURL, postgres.DefaultConnectOptions)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewUserRepository(db.Pool), db.Close, nil
	},
	migrate: migrateUp,
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) (domain.UserRepository, func(), error) {
	return openStoreWith(ctx, cfg, logger, migrate, defaultPostgresSteps)
}

func openStoreWith(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool, steps postgresSteps) (domain.UserRepository, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using the in-memory credential store, accounts are lost on restart")
		return memory.NewUserRepository(), func() {}, nil
	}

	users, closeDB, err := steps.connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err := steps.migrate(cfg.DatabaseURL, logger); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	return users, closeDB, nil
}
