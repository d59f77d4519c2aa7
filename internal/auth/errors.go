package auth

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrMalformedClaims  = errors.New("malformed token claims")

	ErrHashFormat = errors.New("stored password hash has invalid format")
	ErrHashing    = errors.New("password hashing failed")
)

// RejectionReason classifies a Decode error for logs and metrics.
// It must never be returned to clients.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "signature"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrMalformedClaims):
		return "malformed"
	default:
		return "unknown"
	}
}
