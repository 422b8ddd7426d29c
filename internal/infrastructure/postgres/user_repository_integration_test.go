//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "bandsched/backend/internal/domain/auth"
	"bandsched/backend/internal/infrastructure/postgres"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bandsched"),
		tcpostgres.WithUsername("bandsched"),
		tcpostgres.WithPassword("bandsched"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestUserRepository_Postgres(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	migrator, err := postgres.NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, migrator.Close())

	db, err := postgres.New(ctx, dsn, postgres.DefaultConnectOptions)
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewUserRepository(db.Pool)

	phone := "+12015550123"
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        "clara@example.com",
		PasswordHash: "$2a$10$hash",
		FirstName:    "Clara",
		LastName:     "Schumann",
		PhoneNumber:  &phone,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	t.Run("concurrent duplicate registrations keep one record", func(t *testing.T) {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Create(ctx, &domain.User{
					ID:           uuid.NewString(),
					Email:        "race@example.com",
					PasswordHash: "x",
					FirstName:    "R",
					LastName:     "C",
					CreatedAt:    time.Now().UTC(),
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, domain.ErrEmailExists)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded)

		var count int
		require.NoError(t, db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, "race@example.com").Scan(&count))
		assert.Equal(t, 1, count)
	})
}
