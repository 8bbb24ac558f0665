package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/auth-gate/internal/domain"
)

// DefaultTokenTTL is the signed lifetime used when none is configured.
const DefaultTokenTTL = 10 * time.Hour

var (
	// ErrTokenMalformed means the token could not be parsed.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrSignatureInvalid means the signature did not verify under the signing key.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired means the signed expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// ExtraClaims carries the typed extension claims of a token.
type ExtraClaims struct {
	Roles []string
}

// Claims describes the JWT payload.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Lifetime returns the signed validity window.
func (c *Claims) Lifetime() time.Duration {
	if c.ExpiresAt == nil || c.IssuedAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(c.IssuedAt.Time)
}

// TokenManager issues and validates HS256 bearer tokens. The key is fixed at
// construction and safe for concurrent use.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) {
		tm.now = now
	}
}

// NewTokenManager builds a new manager. The secret must not be empty.
func NewTokenManager(secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	tm := &TokenManager{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// GenerateSecret returns a random HS256 key for processes started without one.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}
	return secret, nil
}

// TTL returns the signed token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue builds and signs a token for subject.
func (tm *TokenManager) Issue(subject string, extra ExtraClaims) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("subject is required")
	}
	// NumericDate serializes whole seconds; truncate so the returned claims match the token.
	issuedAt := tm.now().Truncate(time.Second)
	claims := &Claims{
		Roles: extra.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(tm.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", nil, err
	}
	return tokenString, claims, nil
}

// VerifyAndDecode checks the signature and the signed expiry, then returns the claims.
func (tm *TokenManager) VerifyAndDecode(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	return claims, nil
}

// ExtractSubject verifies the token and returns only its subject.
func (tm *TokenManager) ExtractSubject(tokenStr string) (string, error) {
	claims, err := tm.VerifyAndDecode(tokenStr)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ValidateSubject reports whether the verified claims belong to principal and
// are still inside their signed lifetime.
func (tm *TokenManager) ValidateSubject(claims *Claims, principal *domain.Principal) bool {
	if claims == nil || principal == nil {
		return false
	}
	if claims.Subject != principal.Username {
		return false
	}
	return claims.ExpiresAt != nil && claims.ExpiresAt.After(tm.now())
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
