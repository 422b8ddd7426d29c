package token

import (
	"errors"
	"time"

	domain "bandsched/backend/internal/domain/auth"
	usecase "bandsched/backend/internal/usecase/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// DefaultTTL is the fixed session lifetime.
const DefaultTTL = 7 * 24 * time.Hour

// JWTManager issues and validates HS256 session tokens.
type JWTManager struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	now        func() time.Time
}

// Option customises a JWTManager.
type Option func(*JWTManager)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *JWTManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewJWTManager constructs a manager with the provided secret and expiration.
// A non-positive expiration falls back to DefaultTTL.
func NewJWTManager(secret string, expiration time.Duration, issuer string, opts ...Option) *JWTManager {
	if expiration <= 0 {
		expiration = DefaultTTL
	}
	m := &JWTManager{
		secret:     []byte(secret),
		expiration: expiration,
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure JWTManager implements the TokenManager interface.
var _ usecase.TokenManager = (*JWTManager)(nil)

// Generate creates a signed JWT whose subject is userID. JWT dates have
// one-second precision, so the issue time is truncated first and the token
// lives exactly one TTL from its iat.
func (m *JWTManager) Generate(userID string) (string, error) {
	if userID == "" {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").Errorf("subject is required")
	}
	now := m.now().UTC().Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Validate checks the signature first and only then the expiry and issuer.
// It returns the subject, or ErrTokenInvalid / ErrTokenExpired. A key the
// library refuses to use is reported as an internal failure so a broken
// secret does not look like a client mistake.
func (m *JWTManager) Validate(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrInvalidKey), errors.Is(err, jwt.ErrInvalidKeyType):
			return "", oops.Code("AUTH_TOKEN_VERIFY_FAILED").
				With("operation", "resolve signing key").
				Wrap(err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", oops.Code("AUTH_TOKEN_EXPIRED").Wrap(domain.ErrTokenExpired)
		default:
			return "", oops.Code("AUTH_TOKEN_INVALID").
				With("cause", err.Error()).
				Wrap(domain.ErrTokenInvalid)
		}
	}
	if !token.Valid || claims.Subject == "" {
		return "", oops.Code("AUTH_TOKEN_INVALID").Wrap(domain.ErrTokenInvalid)
	}
	return claims.Subject, nil
}
