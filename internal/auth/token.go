package auth

import (
	"auth_session/internal/models"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

const (
	// issuePrecision is the granularity of iat and exp. Tokens issued by one
	// codec carry strictly increasing iat values at this granularity.
	issuePrecision = time.Millisecond

	// maxClockSkew bounds how far in the future an iat may lie.
	maxClockSkew = time.Second
)

var signingMethod = jwt.SigningMethodHS256

func init() {
	// finer than issuePrecision so float decoding of NumericDate can be
	// rounded back to the exact issued value
	jwt.TimePrecision = time.Microsecond
}

type Claims struct {
	Subject   string
	Role      models.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies one class of token (access or refresh).
// It is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser

	mu         sync.Mutex
	lastIssued time.Time
}

type CodecOption func(*TokenCodec)

// WithClock replaces time.Now for both issuing and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

func NewTokenCodec(secret string, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	const op = "auth.NewTokenCodec"

	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%s: secret must be at least %d bytes", op, MinSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%s: ttl must be positive", op)
	}

	c := &TokenCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	return c, nil
}

func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

func (c *TokenCodec) Encode(subject string, role models.Role) (models.IssuedToken, error) {
	const op = "auth.Encode"

	if subject == "" || !role.Valid() {
		return models.IssuedToken{}, fmt.Errorf("%s: %w", op, ErrMalformedClaims)
	}

	now := c.issueTime()
	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.IssuedToken{
		Value:     signed,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Decode checks, in order, the signature, the expiry and the claim contents.
// Nothing inside the token is decoded before the signature is verified.
func (c *TokenCodec) Decode(token string) (Claims, error) {
	const op = "auth.Decode"

	if err := c.verifySignature(token); err != nil {
		return Claims{}, fmt.Errorf("%s: %w", op, err)
	}

	var tc tokenClaims
	_, err := c.parser.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	default:
		return Claims{}, fmt.Errorf("%s: %w: %v", op, ErrMalformedClaims, err)
	}

	role, err := models.ParseRole(tc.Role)
	if err != nil {
		return Claims{}, fmt.Errorf("%s: %w: %v", op, ErrMalformedClaims, err)
	}
	if tc.Subject == "" {
		return Claims{}, fmt.Errorf("%s: %w: missing subject", op, ErrMalformedClaims)
	}
	if tc.IssuedAt == nil {
		return Claims{}, fmt.Errorf("%s: %w: missing iat", op, ErrMalformedClaims)
	}

	issuedAt := tc.IssuedAt.Time.Round(issuePrecision)
	if issuedAt.After(c.now().Add(maxClockSkew)) {
		return Claims{}, fmt.Errorf("%s: %w: iat in the future", op, ErrMalformedClaims)
	}

	return Claims{
		Subject:   tc.Subject,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: tc.ExpiresAt.Time.Round(issuePrecision),
	}, nil
}

// issueTime returns the clock reading truncated to issuePrecision, moved
// forward when needed so that it is strictly after the previous one.
func (c *TokenCodec) issueTime() time.Time {
	now := c.now().Truncate(issuePrecision)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !now.After(c.lastIssued) {
		now = c.lastIssued.Add(issuePrecision)
	}
	c.lastIssued = now

	return now
}

func (c *TokenCodec) verifySignature(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidSignature, len(parts))
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if err := signingMethod.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return nil
}
