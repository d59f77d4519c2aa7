package storage

import (
	"auth_session/internal/models"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

const (
	usersTable = "users"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Storage is the user store the session engine depends on. Any error other
// than ErrUserNotFound or ErrUserExists means the store itself failed.
type Storage interface {
	FindUserByIdentity(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	Migrate(ctx context.Context) error
	Close() error
}

func New(ctx context.Context, driver, dbURL string) (Storage, error) {
	const op = "storage.New"

	switch driver {
	case DriverPostgres:
		return NewPostgresStorage(ctx, dbURL)
	case DriverSQLite:
		return NewSQLiteStorage(dbURL)
	default:
		return nil, fmt.Errorf("%s: unsupported driver %q", op, driver)
	}
}

// NormalizeEmail is applied on both write and lookup so identities compare
// case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepareUser(user models.User) (models.User, error) {
	if user.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return user, err
		}
		user.ID = id
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.CreatedAt = user.CreatedAt.Truncate(time.Microsecond)
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.Email = NormalizeEmail(user.Email)

	return user, nil
}
