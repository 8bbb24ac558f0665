package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/auth-gate/internal/auth"
	"github.com/spec-kit/auth-gate/internal/domain"
	"github.com/spec-kit/auth-gate/internal/events"
	"github.com/spec-kit/auth-gate/internal/repository"
	apperrors "github.com/spec-kit/auth-gate/pkg/util"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type serviceFixture struct {
	svc      *AuthService
	users    repository.UserRepository
	registry repository.TokenRepository
	tokens   *auth.TokenManager
	gate     *auth.Gate
	recorded *recordedEvents
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	tokens, err := auth.NewTokenManager([]byte("service-test-signing-key-0123456789"), time.Hour)
	require.NoError(t, err)

	f := &serviceFixture{
		users:    repository.NewMemoryUserRepository(),
		registry: repository.NewMemoryTokenRepository(),
		tokens:   tokens,
		recorded: &recordedEvents{},
	}

	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range []events.EventType{events.EventTokenIssued, events.EventTokenRevoked} {
		dispatcher.Subscribe(eventType, f.recorded.handle)
	}

	f.svc = NewAuthService(AuthDependencies{
		UserRepo:   f.users,
		TokenRepo:  f.registry,
		Tokens:     tokens,
		Passwords:  auth.NewPasswordHasher(bcrypt.MinCost),
		Dispatcher: dispatcher,
	})
	f.gate = auth.NewGate(tokens, repository.NewUserDirectory(f.users), f.registry, auth.GateOptions{})
	return f
}

func (f *serviceFixture) register(t *testing.T, username string) *domain.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), RegisterInput{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: "Test",
		LastName:  "User",
		Password:  "correct-horse",
	})
	require.NoError(t, err)
	return user
}

func TestRegisterCreatesActiveAccount(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "alice")

	require.NotEmpty(t, user.ID)
	require.Equal(t, domain.UserStatusActive, user.Status)
	require.Equal(t, []string{domain.RoleUser}, user.Roles)
	require.NotEqual(t, "correct-horse", user.PasswordHash)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "alice", Email: "other@example.com", Password: "correct-horse",
	})
	require.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestRegisterValidatesInput(t *testing.T) {
	f := newServiceFixture(t)

	cases := map[string]RegisterInput{
		"missing username":  {Email: "a@example.com", Password: "correct-horse"},
		"space in username": {Username: "al ice", Email: "a@example.com", Password: "correct-horse"},
		"at in username":    {Username: "al@ice", Email: "a@example.com", Password: "correct-horse"},
		"bad email":         {Username: "alice", Email: "not-an-email", Password: "correct-horse"},
		"short password":    {Username: "alice", Email: "a@example.com", Password: "short"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), in)
			require.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed), "got %v", err)
		})
	}
}

func TestLoginPairsTokenWithRegistryRecord(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "alice")
	ctx := context.Background()

	for _, identifier := range []string{"alice", "ALICE@example.com"} {
		result, err := f.svc.Login(ctx, identifier, "correct-horse")
		require.NoError(t, err)
		require.Equal(t, user.ID, result.User.ID)

		claims, err := f.tokens.VerifyAndDecode(result.Token)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Subject)
		require.Equal(t, []string{domain.RoleUser}, claims.Roles)

		record, err := f.registry.GetByToken(ctx, result.Token)
		require.NoError(t, err)
		require.Equal(t, result.RecordID, record.ID)
		require.Equal(t, user.ID, record.UserID)
		require.True(t, claims.ExpiresAt.Time.Equal(record.ExpiresAt))
		require.True(t, result.ExpiresAt.Equal(record.ExpiresAt))
	}

	require.Equal(t, []events.EventType{events.EventTokenIssued, events.EventTokenIssued}, f.recorded.types())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "alice", "wrong-password")
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = f.svc.Login(ctx, "nobody", "correct-horse")
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = f.svc.Login(ctx, "", "correct-horse")
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	require.Empty(t, f.recorded.types())
}

func TestLoginRejectsSuspendedAccount(t *testing.T) {
	f := newServiceFixture(t)
	hash, err := auth.NewPasswordHasher(bcrypt.MinCost).Hash("correct-horse")
	require.NoError(t, err)
	require.NoError(t, f.users.Create(context.Background(), &domain.User{
		Username:     "bob",
		Email:        "bob@example.com",
		PasswordHash: hash,
		Status:       domain.UserStatusSuspended,
	}))

	_, err = f.svc.Login(context.Background(), "bob", "correct-horse")
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice")
	ctx := context.Background()

	result, err := f.svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	admission, err := f.gate.Authenticate(ctx, "Bearer "+result.Token, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, admission))

	_, err = f.gate.Authenticate(ctx, "Bearer "+result.Token, nil)
	require.True(t, apperrors.HasCode(err, apperrors.CodeTokenUnknown))

	err = f.svc.Logout(ctx, admission)
	require.True(t, apperrors.HasCode(err, apperrors.CodeTokenUnknown))

	err = f.svc.Logout(ctx, &auth.Admission{Principal: admission.Principal})
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	require.Equal(t, []events.EventType{events.EventTokenIssued, events.EventTokenRevoked}, f.recorded.types())
}
