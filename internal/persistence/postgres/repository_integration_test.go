//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/agenda/internal/domain"
	"example.com/agenda/internal/identity"
)

func startDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("agenda"),
		postgrescontainer.WithUsername("agenda"),
		postgrescontainer.WithPassword("agenda"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, ApplyMigrations(ctx, pool, migrationsDir(t)))
	return pool
}

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "../../../db/postgres/migrations")
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func ptr(ts time.Time) *time.Time { return &ts }

func TestRepositoryOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	owner := uuid.NewString()
	created, err := repo.Create(ctx, domain.Activity{
		ID:      uuid.NewString(),
		OwnerID: owner,
		Text:    "integration task",
	})
	require.NoError(t, err)
	require.False(t, created.CreatedAt.IsZero())

	stored, err := repo.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, created.ID, stored.ID)

	other, err := repo.Get(ctx, uuid.NewString(), created.ID)
	require.NoError(t, err)
	require.Nil(t, other, "activities must not leak across owners")

	list, err := repo.ListByOwner(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRepositoryListOrdering(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	owner := uuid.NewString()
	var ids []string
	for i := 0; i < 3; i++ {
		created, err := repo.Create(ctx, domain.Activity{
			ID:      uuid.NewString(),
			OwnerID: owner,
			Text:    "task",
		})
		require.NoError(t, err)
		ids = append(ids, created.ID)
		time.Sleep(10 * time.Millisecond)
	}

	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, ids[2], list[0].ID, "newest first")
	require.Equal(t, ids[0], list[2].ID)
}

func TestRepositoryConflictGuard(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	owner := uuid.NewString()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	_, err := repo.Create(ctx, domain.Activity{
		ID:       uuid.NewString(),
		OwnerID:  owner,
		Text:     "first",
		StartsAt: ptr(base),
		EndsAt:   ptr(base.Add(time.Hour)),
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, domain.Activity{
		ID:       uuid.NewString(),
		OwnerID:  owner,
		Text:     "overlapping",
		StartsAt: ptr(base.Add(30 * time.Minute)),
		EndsAt:   ptr(base.Add(90 * time.Minute)),
	})
	require.True(t, errors.Is(err, domain.ErrSchedulingConflict))

	// Touching windows are allowed, and other owners are unaffected.
	_, err = repo.Create(ctx, domain.Activity{
		ID:       uuid.NewString(),
		OwnerID:  owner,
		Text:     "back to back",
		StartsAt: ptr(base.Add(time.Hour)),
		EndsAt:   ptr(base.Add(2 * time.Hour)),
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, domain.Activity{
		ID:       uuid.NewString(),
		OwnerID:  uuid.NewString(),
		Text:     "same slot, different owner",
		StartsAt: ptr(base),
		EndsAt:   ptr(base.Add(time.Hour)),
	})
	require.NoError(t, err)
}

func TestRepositoryCompletionRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	owner := uuid.NewString()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	created, err := repo.Create(ctx, domain.Activity{
		ID:       uuid.NewString(),
		OwnerID:  owner,
		Text:     "task",
		StartsAt: ptr(base),
		EndsAt:   ptr(base.Add(time.Hour)),
	})
	require.NoError(t, err)

	windows, err := repo.ListOpenWindows(ctx, owner, "")
	require.NoError(t, err)
	require.Len(t, windows, 1)

	completed, err := repo.SetCompletion(ctx, owner, created.ID, true)
	require.NoError(t, err)
	require.True(t, completed.IsCompleted)
	require.NotNil(t, completed.CompletedAt)

	// Completed activities drop out of the open-window scan.
	windows, err = repo.ListOpenWindows(ctx, owner, "")
	require.NoError(t, err)
	require.Empty(t, windows)

	reopened, err := repo.SetCompletion(ctx, owner, created.ID, false)
	require.NoError(t, err)
	require.False(t, reopened.IsCompleted)
	require.Nil(t, reopened.CompletedAt)

	windows, err = repo.ListOpenWindows(ctx, owner, "")
	require.NoError(t, err)
	require.Len(t, windows, 1)

	_, err = repo.SetCompletion(ctx, owner, uuid.NewString(), true)
	require.True(t, errors.Is(err, domain.ErrActivityNotFound))
}

func TestRepositoryCompletedWindowDoesNotConflict(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	owner := uuid.NewString()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	first, err := repo.Create(ctx, domain.Activity{
		ID:       uuid.NewString(),
		OwnerID:  owner,
		Text:     "morning slot",
		StartsAt: ptr(base),
		EndsAt:   ptr(base.Add(time.Hour)),
	})
	require.NoError(t, err)

	_, err = repo.SetCompletion(ctx, owner, first.ID, true)
	require.NoError(t, err)

	// The slot frees up once the occupying activity is completed: both the
	// open-window scan and the insert guard ignore completed rows.
	_, err = repo.Create(ctx, domain.Activity{
		ID:       uuid.NewString(),
		OwnerID:  owner,
		Text:     "same slot again",
		StartsAt: ptr(base.Add(30 * time.Minute)),
		EndsAt:   ptr(base.Add(90 * time.Minute)),
	})
	require.NoError(t, err)
}

func TestRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	owner := uuid.NewString()
	created, err := repo.Create(ctx, domain.Activity{
		ID:      uuid.NewString(),
		OwnerID: owner,
		Text:    "task",
	})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, owner, created.ID))

	stored, err := repo.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	require.Nil(t, stored)

	// Deleting an unknown id is not an error.
	require.NoError(t, repo.Delete(ctx, owner, uuid.NewString()))
}

func TestUserStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	store := NewUserStore(pool)

	user := identityUser(t)
	require.NoError(t, store.CreateUser(ctx, user))

	byEmail, err := store.GetUserByEmail(ctx, user.Email)
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	require.Equal(t, user.ID, byEmail.ID)

	missing, err := store.GetUserByEmail(ctx, "ghost@example.com")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, store.CreatePasswordReset(ctx, user.ID, "token-hash", time.Now().Add(time.Hour)))
	userID, err := store.ConsumePasswordReset(ctx, "token-hash")
	require.NoError(t, err)
	require.Equal(t, user.ID, userID)

	_, err = store.ConsumePasswordReset(ctx, "token-hash")
	require.Error(t, err, "reset tokens are single use")
}

func identityUser(t *testing.T) identity.User {
	t.Helper()
	return identity.User{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.com",
		DisplayName:  "Integration",
		PasswordHash: "not-a-real-hash",
	}
}
