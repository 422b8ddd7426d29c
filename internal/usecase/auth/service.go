package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "bandsched/backend/internal/domain/auth"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// dummyPassword is hashed once and verified against when a login names an
// unknown email, so both failure paths pay for a bcrypt comparison.
const dummyPassword = "bandsched-timing-equaliser"

// AuthResult is returned by successful register and login calls.
type AuthResult struct {
	User  *domain.PublicUser `json:"user"`
	Token string             `json:"token"`
}

// Service coordinates authentication workflows between domain and infrastructure.
type Service struct {
	users     domain.UserRepository
	hasher    PasswordHasher
	tokens    TokenManager
	validator *Validator
	nowFunc   func() time.Time
	newID     func() string

	dummyOnce sync.Once
	dummyHash string
}

// Option customises a Service.
type Option func(*Service)

// WithPhoneRegion sets the region used to parse phone numbers without a
// country prefix.
func WithPhoneRegion(region string) Option {
	return func(s *Service) {
		s.validator = NewValidator(region)
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.nowFunc = now
		}
	}
}

// NewService constructs an auth service.
func NewService(users domain.UserRepository, hasher PasswordHasher, tokens TokenManager, opts ...Option) *Service {
	s := &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		validator: NewValidator(DefaultPhoneRegion),
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the input, stores a new identity and issues a token for
// it. A duplicate email is reported by the store and surfaces as
// ErrEmailExists.
func (s *Service) Register(ctx context.Context, reg domain.Registration) (*AuthResult, error) {
	in, err := s.validator.Register(reg)
	if err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internal(err, "hash password")
	}

	user := &domain.User{
		ID:           s.newID(),
		Email:        in.Email,
		PasswordHash: hashed,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PhoneNumber:  in.PhoneNumber,
		CreatedAt:    s.nowFunc().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			return nil, domain.ErrEmailExists
		}
		return nil, internal(err, "create user")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, internal(err, "issue token")
	}
	return &AuthResult{User: user.Public(), Token: token}, nil
}

// Login checks credentials and issues a token. An unknown email and a wrong
// password produce the same error.
func (s *Service) Login(ctx context.Context, creds domain.Credentials) (*AuthResult, error) {
	in, err := s.validator.Login(creds)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.hasher.Verify(in.Password, s.dummy())
			return nil, domain.ErrInvalidCredentials
		}
		return nil, internal(err, "lookup user")
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, internal(err, "issue token")
	}
	return &AuthResult{User: user.Public(), Token: token}, nil
}

// CurrentUser returns the public view of the identity with the given id.
func (s *Service) CurrentUser(ctx context.Context, id string) (*domain.PublicUser, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, internal(err, "lookup user")
	}
	return user.Public(), nil
}

// Authenticate resolves a bearer token to a principal. The token must be
// authentic, unexpired and name an identity that still exists.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthenticated
	}

	subject, err := s.tokens.Validate(token)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindInvalidToken, domain.KindTokenExpired:
			return domain.Principal{}, err
		default:
			return domain.Principal{}, internal(err, "verify token")
		}
	}

	if _, err := s.users.GetByID(ctx, subject); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Principal{}, domain.ErrSubjectNotFound
		}
		return domain.Principal{}, internal(err, "lookup subject")
	}
	return domain.Principal{UserID: subject}, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(dummyPassword)
	})
	return s.dummyHash
}

// internal wraps a failure that callers must not see verbatim. Codes already
// attached further down are kept.
func internal(err error, operation string) error {
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() != nil && oopsErr.Code() != "" {
		return oops.With("operation", operation).Wrap(err)
	}
	return oops.Code("AUTH_INTERNAL").With("operation", operation).Wrap(err)
}
