package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gate/internal/domain"
	"github.com/spec-kit/auth-gate/internal/events"
	"github.com/spec-kit/auth-gate/internal/observability"
	"github.com/spec-kit/auth-gate/internal/repository"
	apperrors "github.com/spec-kit/auth-gate/pkg/util"
)

// Outcome labels a gate decision.
type Outcome string

const (
	OutcomeAdmitted              Outcome = "admitted"
	OutcomeAlreadyAuthenticated  Outcome = "already_authenticated"
	OutcomeCredentialMissing     Outcome = "credential_missing"
	OutcomeCredentialInvalid     Outcome = "credential_invalid"
	OutcomeCredentialExpired     Outcome = "credential_expired"
	OutcomeTokenUnknown          Outcome = "token_unknown"
	OutcomeTokenRevokedOrExpired Outcome = "token_revoked_or_expired"
	OutcomeServerFault           Outcome = "server_fault"
)

const bearerScheme = "Bearer"

// PrincipalDirectory resolves a verified subject to a principal. It returns
// repository.ErrUserNotFound when no such principal exists.
type PrincipalDirectory interface {
	LoadPrincipal(ctx context.Context, subject string) (*domain.Principal, error)
}

// Admission is the result of a successful gate pass.
type Admission struct {
	Principal *domain.Principal
	Claims    *Claims
	// Record is nil when the request was already authenticated.
	Record *domain.TokenRecord
}

// GateOptions carries the optional collaborators of a Gate.
type GateOptions struct {
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	Events          events.Dispatcher
	RegistryTimeout time.Duration
	Now             func() time.Time
}

// Gate admits or rejects requests by combining signature verification with a
// registry lookup. It holds no per-request state.
type Gate struct {
	tokens          *TokenManager
	directory       PrincipalDirectory
	registry        repository.TokenRepository
	logger          *zap.Logger
	metrics         *observability.Metrics
	events          events.Dispatcher
	registryTimeout time.Duration
	now             func() time.Time
}

// NewGate constructs a gate.
func NewGate(tokens *TokenManager, directory PrincipalDirectory, registry repository.TokenRepository, opts GateOptions) *Gate {
	g := &Gate{
		tokens:          tokens,
		directory:       directory,
		registry:        registry,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		events:          opts.Events,
		registryTimeout: opts.RegistryTimeout,
		now:             opts.Now,
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Authenticate runs the gate for one request. header is the raw Authorization
// value; current is the principal already bound to the request, if any. Every
// returned error is an *apperrors.DomainError safe to show the caller.
func (g *Gate) Authenticate(ctx context.Context, header string, current *domain.Principal) (*Admission, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, g.reject(OutcomeCredentialMissing, apperrors.NewCredentialMissing(), nil)
	}

	claims, err := g.tokens.VerifyAndDecode(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, g.reject(OutcomeCredentialExpired, apperrors.NewCredentialExpired(err), err)
		}
		return nil, g.reject(OutcomeCredentialInvalid, apperrors.NewCredentialInvalid(err), err)
	}

	if current != nil {
		g.metrics.RecordGateDecision(string(OutcomeAlreadyAuthenticated))
		return &Admission{Principal: current, Claims: claims}, nil
	}

	principal, err := g.loadPrincipal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, g.reject(OutcomeCredentialInvalid, apperrors.NewCredentialInvalid(err), err)
		}
		return nil, g.fault("principal lookup failed", err)
	}
	if !g.tokens.ValidateSubject(claims, principal) {
		return nil, g.reject(OutcomeCredentialInvalid, apperrors.NewCredentialInvalid(nil), errors.New("subject mismatch"))
	}

	record, err := g.lookup(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, g.unknown(ctx, claims)
		}
		return nil, g.fault("token registry lookup failed", err)
	}
	if record.Expired(g.now()) {
		g.logger.Info("token rejected by registry expiry",
			zap.String("record_id", record.ID),
			zap.String("subject", claims.Subject),
			zap.Time("registry_expires_at", record.ExpiresAt),
		)
		return nil, g.reject(OutcomeTokenRevokedOrExpired, apperrors.NewTokenRevokedOrExpired(), nil)
	}

	if err := g.touch(ctx, record); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, g.unknown(ctx, claims)
		}
		return nil, g.fault("token registry touch failed", err)
	}

	g.metrics.RecordGateDecision(string(OutcomeAdmitted))
	return &Admission{Principal: principal, Claims: claims, Record: record}, nil
}

func (g *Gate) loadPrincipal(ctx context.Context, subject string) (*domain.Principal, error) {
	ctx, cancel := g.registryContext(ctx)
	defer cancel()
	return g.directory.LoadPrincipal(ctx, subject)
}

func (g *Gate) lookup(ctx context.Context, token string) (*domain.TokenRecord, error) {
	ctx, cancel := g.registryContext(ctx)
	defer cancel()
	return g.registry.GetByToken(ctx, token)
}

func (g *Gate) touch(ctx context.Context, record *domain.TokenRecord) error {
	ctx, cancel := g.registryContext(ctx)
	defer cancel()
	return g.registry.Touch(ctx, record)
}

func (g *Gate) registryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.registryTimeout > 0 {
		return context.WithTimeout(ctx, g.registryTimeout)
	}
	return context.WithCancel(ctx)
}

func (g *Gate) reject(outcome Outcome, rejection error, cause error) error {
	g.metrics.RecordGateDecision(string(outcome))
	g.logger.Debug("request rejected", zap.String("outcome", string(outcome)), zap.NamedError("cause", cause))
	return rejection
}

// unknown handles a signature-valid token the registry does not hold. Issuance
// writes the record together with the token, so this is an inconsistency.
func (g *Gate) unknown(ctx context.Context, claims *Claims) error {
	g.metrics.RecordGateDecision(string(OutcomeTokenUnknown))
	g.logger.Error("registry inconsistency: verified token has no record",
		zap.String("subject", claims.Subject),
		zap.String("jti", claims.ID),
	)
	if g.events != nil {
		_ = g.events.Publish(context.WithoutCancel(ctx), events.Event{
			Type:    events.EventRegistryInconsistency,
			Subject: claims.Subject,
			Payload: map[string]string{"jti": claims.ID},
		})
	}
	return apperrors.NewTokenUnknown()
}

func (g *Gate) fault(msg string, err error) error {
	g.metrics.RecordGateDecision(string(OutcomeServerFault))
	g.logger.Error(msg, zap.Error(err))
	return apperrors.NewInternalError(err)
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
