package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "bandsched/backend/internal/domain/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(id, email string) *domain.User {
	phone := "+15551234567"
	return &domain.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PhoneNumber:  &phone,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	require.NoError(t, repo.Create(ctx, newUser("u1", "ada@example.com")))

	byEmail, err := repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	byID, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", byID.Email)
	assert.Equal(t, "+15551234567", *byID.PhoneNumber)
}

func TestUserRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	_, err := repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	require.NoError(t, repo.Create(ctx, newUser("u1", "ada@example.com")))
	err := repo.Create(ctx, newUser("u2", "ada@example.com"))
	assert.ErrorIs(t, err, domain.ErrEmailExists)
	assert.Equal(t, 1, repo.Len())
}

func TestUserRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()
	u := newUser("u1", "ada@example.com")
	require.NoError(t, repo.Create(ctx, u))

	u.FirstName = "changed"
	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)

	*got.PhoneNumber = "+10000000000"
	again, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", *again.PhoneNumber)
}

func TestUserRepository_ConcurrentDuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	const workers = 32
	var (
		wg        sync.WaitGroup
		created   atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Create(ctx, newUser(string(rune('a'+i)), "same@example.com"))
			switch {
			case err == nil:
				created.Add(1)
			case assert.ErrorIs(t, err, domain.ErrEmailExists):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
	assert.Equal(t, 1, repo.Len())
}

func TestUserRepository_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewUserRepository()

	assert.ErrorIs(t, repo.Create(ctx, newUser("u1", "a@example.com")), context.Canceled)
	_, err := repo.GetByID(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
}
