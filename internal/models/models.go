package models

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole returns an error for anything outside the closed role set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

type SignInCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // bcrypt hash
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type IssuedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionPair is always issued and cleared as a whole.
type SessionPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// ExpiryInstruction tells the transport to expire both session tokens
// client-side by setting their expiry to ExpiresAt.
type ExpiryInstruction struct {
	ExpiresAt time.Time
}
