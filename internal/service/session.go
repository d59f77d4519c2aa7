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
	"time"
)

func (s *service) Login(ctx context.Context, creds models.SignInCredentials) (models.SessionPair, error) {
	const op = "service.Login"

	log := s.log.With(slog.String("op", op))
	identity := storage.NormalizeEmail(creds.Email)

	if !s.allowAttempt(ctx, log, identity) {
		s.recorder.Login(metrics.OutcomeThrottled)
		return models.SessionPair{}, fmt.Errorf("%s: %w", op, ErrTooManyAttempts)
	}

	user, err := s.storage.FindUserByIdentity(ctx, identity)
	if errors.Is(err, storage.ErrUserNotFound) {
		s.hasher.VerifyDummy(creds.Password)
		s.recorder.Login(metrics.OutcomeFailed)
		log.Debug("login rejected", slog.String("reason", "unknown identity"))
		return models.SessionPair{}, fmt.Errorf("%s: %w", op, ErrAuthFailed)
	}
	if err != nil {
		s.recorder.Login(metrics.OutcomeServerError)
		return models.SessionPair{}, fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	ok, err := s.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		s.recorder.Login(metrics.OutcomeServerError)
		return models.SessionPair{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		s.recorder.Login(metrics.OutcomeFailed)
		log.Debug("login rejected", slog.String("reason", "password mismatch"))
		return models.SessionPair{}, fmt.Errorf("%s: %w", op, ErrAuthFailed)
	}

	pair, err := s.issuePair(user.Email, user.Role)
	if err != nil {
		s.recorder.Login(metrics.OutcomeServerError)
		return models.SessionPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, identity); err != nil {
			log.Warn("failed to reset login limiter", slog.Any("error", err))
		}
	}
	s.recorder.Login(metrics.OutcomeSuccess)

	return pair, nil
}

// Refresh rotates the whole pair. The presented refresh token is never
// returned again; the new one carries a fresh absolute expiry.
func (s *service) Refresh(ctx context.Context, refreshToken string) (models.SessionPair, error) {
	const op = "service.Refresh"

	log := s.log.With(slog.String("op", op))

	if err := ctx.Err(); err != nil {
		return models.SessionPair{}, fmt.Errorf("%s: %w", op, err)
	}

	claims, err := s.refresh.Decode(refreshToken)
	if err != nil {
		reason := auth.RejectionReason(err)
		s.recorder.TokenRejected("refresh", reason)
		s.recorder.Refresh(metrics.OutcomeFailed)
		log.Debug("refresh token rejected", slog.String("reason", reason), slog.Any("error", err))
		return models.SessionPair{}, fmt.Errorf("%s: %w", op, ErrAuthFailed)
	}

	pair, err := s.issuePair(claims.Subject, claims.Role)
	if err != nil {
		s.recorder.Refresh(metrics.OutcomeServerError)
		return models.SessionPair{}, fmt.Errorf("%s: %w", op, err)
	}
	s.recorder.Refresh(metrics.OutcomeSuccess)

	return pair, nil
}

// Logout cannot invalidate tokens server-side; it only tells the transport
// to expire both of them on the client.
func (s *service) Logout() models.ExpiryInstruction {
	return models.ExpiryInstruction{ExpiresAt: time.Unix(0, 0).UTC()}
}

// Authenticate validates an access token for protected routes.
func (s *service) Authenticate(accessToken string) (auth.Claims, error) {
	const op = "service.Authenticate"

	claims, err := s.access.Decode(accessToken)
	if err != nil {
		reason := auth.RejectionReason(err)
		s.recorder.TokenRejected("access", reason)
		s.log.Debug("access token rejected",
			slog.String("op", op),
			slog.String("reason", reason),
			slog.Any("error", err),
		)
		return auth.Claims{}, fmt.Errorf("%s: %w", op, ErrAuthFailed)
	}

	return claims, nil
}

func (s *service) allowAttempt(ctx context.Context, log *slog.Logger, identity string) bool {
	if s.limiter == nil {
		return true
	}

	ok, err := s.limiter.Reserve(ctx, identity)
	if err != nil {
		// fail open: a limiter outage must not lock everybody out
		log.Warn("login limiter unavailable", slog.Any("error", err))
		return true
	}

	return ok
}
