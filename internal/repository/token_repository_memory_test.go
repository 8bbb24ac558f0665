package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-gate/internal/domain"
)

func seedRecords(t *testing.T, repo TokenRepository, base time.Time, offsets map[string]time.Duration) {
	t.Helper()
	for token, offset := range offsets {
		require.NoError(t, repo.Create(context.Background(), &domain.TokenRecord{
			Token:     token,
			Subject:   "alice",
			UserID:    "user-1",
			ExpiresAt: base.Add(offset),
		}))
	}
}

func TestMemoryTokenRepositoryLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTokenRepository()

	record := &domain.TokenRecord{Token: "tok-1", Subject: "alice", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, record))
	require.NotEmpty(t, record.ID)

	got, err := repo.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, record.ID, got.ID)
	require.Equal(t, "alice", got.Subject)
	require.Nil(t, got.LastUsedAt)

	_, err = repo.GetByToken(ctx, "tok-unknown")
	require.ErrorIs(t, err, ErrTokenNotFound)

	require.ErrorIs(t, repo.Create(ctx, &domain.TokenRecord{Token: "tok-1"}), ErrTokenExists)
}

func TestMemoryTokenRepositoryHonoursCancellation(t *testing.T) {
	repo := NewMemoryTokenRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetByToken(ctx, "tok-1")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryTokenRepositoryTouchIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTokenRepository().(*memoryTokenRepository)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	// Every call returns a distinct instant; goroutines observe them out of order.
	repo.now = func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Millisecond)
	}

	require.NoError(t, repo.Create(ctx, &domain.TokenRecord{Token: "tok-1", ExpiresAt: base.Add(time.Hour)}))
	record, err := repo.GetByToken(ctx, "tok-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := *record
			errs <- repo.Touch(ctx, &local)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var previous time.Time
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Touch(ctx, record))
		require.NotNil(t, record.LastUsedAt)
		require.False(t, record.LastUsedAt.Before(previous))
		previous = *record.LastUsedAt
	}

	stored, err := repo.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, base.Add(time.Duration(tick.Load())*time.Millisecond), *stored.LastUsedAt)
}

func TestMemoryTokenRepositoryTouchNeverRewinds(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTokenRepository().(*memoryTokenRepository)
	late := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &domain.TokenRecord{Token: "tok-1", ExpiresAt: late.Add(time.Hour)}))
	record, err := repo.GetByToken(ctx, "tok-1")
	require.NoError(t, err)

	repo.now = func() time.Time { return late }
	require.NoError(t, repo.Touch(ctx, record))

	repo.now = func() time.Time { return late.Add(-time.Minute) }
	require.NoError(t, repo.Touch(ctx, record))
	require.Equal(t, late, *record.LastUsedAt)

	require.ErrorIs(t, repo.Touch(ctx, &domain.TokenRecord{Token: "missing"}), ErrTokenNotFound)
}

func TestMemoryTokenRepositoryDeleteExpiredBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTokenRepository()
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedRecords(t, repo, cutoff, map[string]time.Duration{
		"expired-long-ago":  -48 * time.Hour,
		"expired-just-now":  -time.Nanosecond,
		"expires-at-cutoff": 0,
		"still-valid":       time.Hour,
	})

	removed, err := repo.DeleteExpiredBefore(ctx, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	for _, token := range []string{"expired-long-ago", "expired-just-now"} {
		_, err := repo.GetByToken(ctx, token)
		require.ErrorIs(t, err, ErrTokenNotFound)
	}
	for _, token := range []string{"expires-at-cutoff", "still-valid"} {
		_, err := repo.GetByToken(ctx, token)
		require.NoError(t, err)
	}

	removed, err = repo.DeleteExpiredBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestMemoryTokenRepositoryDeleteByToken(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTokenRepository()
	seedRecords(t, repo, time.Now(), map[string]time.Duration{"tok-1": time.Hour})

	require.NoError(t, repo.DeleteByToken(ctx, "tok-1"))
	require.ErrorIs(t, repo.DeleteByToken(ctx, "tok-1"), ErrTokenNotFound)

	_, err := repo.GetByToken(ctx, "tok-1")
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestUserDirectoryLoadPrincipal(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserRepository()
	require.NoError(t, users.Create(ctx, &domain.User{
		Username: "alice", Email: "alice@example.com", Roles: []string{domain.RoleUser}, Status: domain.UserStatusActive,
	}))
	require.NoError(t, users.Create(ctx, &domain.User{
		Username: "bob", Email: "bob@example.com", Status: domain.UserStatusSuspended,
	}))
	require.ErrorIs(t, users.Create(ctx, &domain.User{Username: "alice"}), ErrUserExists)

	directory := NewUserDirectory(users)

	principal, err := directory.LoadPrincipal(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", principal.Username)
	require.True(t, principal.HasRole(domain.RoleUser))

	_, err = directory.LoadPrincipal(ctx, "bob")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = directory.LoadPrincipal(ctx, "carol")
	require.ErrorIs(t, err, ErrUserNotFound)
}
