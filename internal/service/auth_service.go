package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gate/internal/auth"
	"github.com/spec-kit/auth-gate/internal/domain"
	"github.com/spec-kit/auth-gate/internal/events"
	"github.com/spec-kit/auth-gate/internal/repository"
	apperrors "github.com/spec-kit/auth-gate/pkg/util"
)

const minPasswordLength = 8

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// LoginResult pairs an issued token with its registry record.
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
	RecordID  string
}

// AuthService coordinates registration, login and logout flows.
type AuthService struct {
	users      repository.UserRepository
	registry   repository.TokenRepository
	tokenMgr   *auth.TokenManager
	passwords  *auth.PasswordHasher
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	TokenRepo  repository.TokenRepository
	Tokens     *auth.TokenManager
	Passwords  *auth.PasswordHasher
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		registry:   deps.TokenRepo,
		tokenMgr:   deps.Tokens,
		passwords:  deps.Passwords,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Register creates a new active account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, apperrors.NewValidationError("username, email, password required", nil)
	}
	if strings.ContainsAny(in.Username, " \t\r\n@") {
		return nil, apperrors.NewValidationError("username must not contain whitespace or @", nil)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, apperrors.NewValidationError("invalid email", nil)
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength), nil)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		Roles:        []string{domain.RoleUser},
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperrors.NewConflict("username or email already registered", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

// Login verifies credentials, then issues a token and registers it. No token
// is returned unless its registry record was written.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	user, err := s.findAccount(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = s.passwords.CompareMissing(password)
			return nil, apperrors.NewUnauthorized(auth.ErrInvalidCredentials.Error())
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.passwords.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized(auth.ErrInvalidCredentials.Error())
	}
	if user.Status != domain.UserStatusActive {
		return nil, apperrors.NewUnauthorized(auth.ErrInvalidCredentials.Error())
	}

	token, claims, err := s.tokenMgr.Issue(user.Username, auth.ExtraClaims{Roles: user.Roles})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	record := &domain.TokenRecord{
		Token:     token,
		Subject:   claims.Subject,
		UserID:    user.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.registry.Create(ctx, record); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("register token: %w", err))
	}

	s.publish(ctx, events.Event{
		Type:    events.EventTokenIssued,
		Subject: user.Username,
		Payload: events.TokenIssuedPayload{RecordID: record.ID, UserID: user.ID, ExpiresAt: record.ExpiresAt},
	})

	return &LoginResult{User: user, Token: token, ExpiresAt: record.ExpiresAt, RecordID: record.ID}, nil
}

// Logout revokes the admitted token by deleting its registry record.
func (s *AuthService) Logout(ctx context.Context, admission *auth.Admission) error {
	if admission == nil || admission.Record == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := s.registry.DeleteByToken(ctx, admission.Record.Token); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return apperrors.NewTokenUnknown()
		}
		return apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.Event{
		Type:    events.EventTokenRevoked,
		Subject: admission.Principal.Username,
		Payload: events.TokenRevokedPayload{RecordID: admission.Record.ID, Reason: "logout"},
	})
	return nil
}

func (s *AuthService) findAccount(ctx context.Context, identifier string) (*domain.User, error) {
	if identifier == "" {
		return nil, repository.ErrUserNotFound
	}
	if strings.Contains(identifier, "@") {
		return s.users.GetByEmail(ctx, strings.ToLower(identifier))
	}
	return s.users.GetByUsername(ctx, identifier)
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("audit handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
