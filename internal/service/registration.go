package service

import (
	"auth_session/internal/auth"
	"auth_session/internal/metrics"
	"auth_session/internal/models"
	"auth_session/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	maxNameLength     = 128
)

func (s *service) Register(ctx context.Context, creds models.SignUpCredentials) (models.User, error) {
	return s.RegisterWithRole(ctx, creds, models.RoleUser)
}

// RegisterWithRole hashes the password before anything reaches storage.
// The plaintext is neither stored nor logged.
func (s *service) RegisterWithRole(ctx context.Context, creds models.SignUpCredentials, role models.Role) (models.User, error) {
	const op = "service.Register"

	log := s.log.With(slog.String("op", op))

	if err := validateSignUp(creds, role); err != nil {
		s.recorder.Register(metrics.OutcomeInvalid)
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	passwordHash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		s.recorder.Register(metrics.OutcomeServerError)
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.CreateUser(ctx, models.User{
		Email:        storage.NormalizeEmail(creds.Email),
		Name:         creds.Name,
		PasswordHash: passwordHash,
		Role:         role,
	})
	if errors.Is(err, storage.ErrUserExists) {
		s.recorder.Register(metrics.OutcomeConflict)
		return models.User{}, fmt.Errorf("%s: %w", op, ErrUserExists)
	}
	if err != nil {
		s.recorder.Register(metrics.OutcomeServerError)
		return models.User{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	log.Info("user registered", slog.String("user_id", user.ID.String()), slog.String("role", string(user.Role)))
	s.recorder.Register(metrics.OutcomeSuccess)

	return user, nil
}

func (s *service) GetProfile(ctx context.Context, identity string) (models.User, error) {
	const op = "service.GetProfile"

	user, err := s.storage.FindUserByIdentity(ctx, identity)
	if errors.Is(err, storage.ErrUserNotFound) {
		// the token outlived its account
		return models.User{}, fmt.Errorf("%s: %w", op, ErrAuthFailed)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	return user, nil
}

func validateSignUp(creds models.SignUpCredentials, role models.Role) error {
	if !IsValidEmail(storage.NormalizeEmail(creds.Email)) {
		return fmt.Errorf("%w: not valid email", ErrInvalidInput)
	}
	if len(creds.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(creds.Password) > auth.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, auth.MaxPasswordBytes)
	}
	if utf8.RuneCountInString(creds.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidInput, maxNameLength)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return nil
}

// IsValidEmail accepts a bare address without display name.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
