package service

import (
	"auth_session/internal/auth"
	"auth_session/internal/models"
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrAuthFailed covers unknown identities, wrong passwords and every kind
	// of rejected token. Callers must not try to tell these apart.
	ErrAuthFailed         = errors.New("authentication failed")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
)

type Service interface {
	Register(ctx context.Context, creds models.SignUpCredentials) (models.User, error)
	RegisterWithRole(ctx context.Context, creds models.SignUpCredentials, role models.Role) (models.User, error)
	Login(ctx context.Context, creds models.SignInCredentials) (models.SessionPair, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionPair, error)
	Logout() models.ExpiryInstruction
	Authenticate(accessToken string) (auth.Claims, error)
	GetProfile(ctx context.Context, identity string) (models.User, error)
}

// UserStorage is the part of storage.Storage the service needs.
type UserStorage interface {
	FindUserByIdentity(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)
}

// Limiter throttles logins per identity. Reserve counts an attempt before
// the password is checked; Reset clears the count after a success.
type Limiter interface {
	Reserve(ctx context.Context, identity string) (bool, error)
	Reset(ctx context.Context, identity string) error
}

// Recorder receives outcome counts; *metrics.Metrics satisfies it.
type Recorder interface {
	Login(outcome string)
	Refresh(outcome string)
	Register(outcome string)
	TokenRejected(class, reason string)
}

type Option func(*service)

func WithLimiter(l Limiter) Option {
	return func(s *service) {
		s.limiter = l
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *service) {
		s.recorder = r
	}
}

type service struct {
	log      *slog.Logger
	storage  UserStorage
	hasher   *auth.PasswordHasher
	access   *auth.TokenCodec
	refresh  *auth.TokenCodec
	limiter  Limiter
	recorder Recorder
}

func NewService(
	lgr *slog.Logger,
	st UserStorage,
	hasher *auth.PasswordHasher,
	access *auth.TokenCodec,
	refresh *auth.TokenCodec,
	opts ...Option,
) *service {
	s := &service{
		log:      lgr,
		storage:  st,
		hasher:   hasher,
		access:   access,
		refresh:  refresh,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) issuePair(subject string, role models.Role) (models.SessionPair, error) {
	access, err := s.access.Encode(subject, role)
	if err != nil {
		return models.SessionPair{}, err
	}

	refresh, err := s.refresh.Encode(subject, role)
	if err != nil {
		return models.SessionPair{}, err
	}

	return models.SessionPair{Access: access, Refresh: refresh}, nil
}

type nopRecorder struct{}

func (nopRecorder) Login(string)                 {}
func (nopRecorder) Refresh(string)               {}
func (nopRecorder) Register(string)              {}
func (nopRecorder) TokenRejected(string, string) {}
