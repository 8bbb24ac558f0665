package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-gate/internal/domain"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, opts ...TokenOption) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(testSecret, 0, opts...)
	require.NoError(t, err)
	return tm
}

func TestIssueRoundTrip(t *testing.T) {
	for _, ttl := range []time.Duration{time.Minute, time.Hour, DefaultTokenTTL} {
		tm, err := NewTokenManager(testSecret, ttl)
		require.NoError(t, err)

		for _, subject := range []string{"alice", "bob@example.com", "名前"} {
			token, issued, err := tm.Issue(subject, ExtraClaims{Roles: []string{"USER"}})
			require.NoError(t, err)

			claims, err := tm.VerifyAndDecode(token)
			require.NoError(t, err)
			require.Equal(t, subject, claims.Subject)
			require.Equal(t, ttl, claims.Lifetime())
			require.Equal(t, issued.ID, claims.ID)
			require.Equal(t, []string{"USER"}, claims.Roles)
		}
	}
}

func TestIssueDefaultsToTenHours(t *testing.T) {
	tm := newTestManager(t)
	require.Equal(t, 10*time.Hour, tm.TTL())
}

func TestIssueProducesDistinctTokens(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tm := newTestManager(t, WithClock(func() time.Time { return fixed }))

	first, _, err := tm.Issue("alice", ExtraClaims{})
	require.NoError(t, err)
	second, _, err := tm.Issue("alice", ExtraClaims{})
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestIssueRequiresSubject(t *testing.T) {
	tm := newTestManager(t)
	_, _, err := tm.Issue("", ExtraClaims{})
	require.Error(t, err)
}

func TestNewTokenManagerRejectsEmptySecret(t *testing.T) {
	_, err := NewTokenManager(nil, time.Hour)
	require.Error(t, err)
}

func TestVerifyRejectsFlippedSignature(t *testing.T) {
	tm := newTestManager(t)
	token, _, err := tm.Issue("alice", ExtraClaims{})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	for i := range sig {
		tampered := append([]byte(nil), sig...)
		tampered[i] ^= 0x01
		forged := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(tampered)

		_, err := tm.VerifyAndDecode(forged)
		require.ErrorIs(t, err, ErrSignatureInvalid, "byte %d", i)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	other, err := NewTokenManager([]byte("ffffffffffffffffffffffffffffffff"), time.Hour)
	require.NoError(t, err)
	token, _, err := other.Issue("alice", ExtraClaims{})
	require.NoError(t, err)

	_, err = newTestManager(t).VerifyAndDecode(token)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestManager(t).VerifyAndDecode(token)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-11 * time.Hour)
	issuer := newTestManager(t, WithClock(func() time.Time { return issuedAt }))
	token, _, err := issuer.Issue("alice", ExtraClaims{})
	require.NoError(t, err)

	_, err = newTestManager(t).VerifyAndDecode(token)
	require.ErrorIs(t, err, ErrTokenExpired)

	_, err = newTestManager(t).ExtractSubject(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	tm := newTestManager(t)
	for _, token := range []string{"", "not-a-jwt", "a.b", "a.b.c.d", "!!!.???.***"} {
		_, err := tm.VerifyAndDecode(token)
		require.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
}

func TestVerifyRequiresExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "alice",
	}}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = newTestManager(t).VerifyAndDecode(token)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestExtractSubject(t *testing.T) {
	tm := newTestManager(t)
	token, _, err := tm.Issue("alice", ExtraClaims{})
	require.NoError(t, err)

	subject, err := tm.ExtractSubject(token)
	require.NoError(t, err)
	require.Equal(t, "alice", subject)

	_, err = tm.ExtractSubject(token + "x")
	require.Error(t, err)
}

func TestValidateSubject(t *testing.T) {
	tm := newTestManager(t)
	token, _, err := tm.Issue("alice", ExtraClaims{})
	require.NoError(t, err)
	claims, err := tm.VerifyAndDecode(token)
	require.NoError(t, err)

	require.True(t, tm.ValidateSubject(claims, &domain.Principal{Username: "alice"}))
	require.False(t, tm.ValidateSubject(claims, &domain.Principal{Username: "mallory"}))
	require.False(t, tm.ValidateSubject(claims, nil))

	later := newTestManager(t, WithClock(func() time.Time { return time.Now().Add(11 * time.Hour) }))
	require.False(t, later.ValidateSubject(claims, &domain.Principal{Username: "alice"}))
}
