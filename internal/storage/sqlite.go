package storage

import (
	"auth_session/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStorage backs local runs and tests.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	const op = "storage.NewSQLiteStorage"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// every connection to ":memory:" would get its own database
	db.SetMaxOpenConns(1)

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	const op = "storage.Migrate"

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		user_role     TEXT NOT NULL DEFAULT 'user',
		created_at    INTEGER NOT NULL
	);`, usersTable)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.CreateUser"

	user, err := prepareUser(user)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s(id, email, name, password_hash, user_role, created_at)
	VALUES (?, ?, ?, ?, ?, ?);`, usersTable)

	_, err = s.db.ExecContext(ctx, query,
		user.ID.String(),
		user.Email,
		user.Name,
		user.PasswordHash,
		string(user.Role),
		user.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, classifySQLiteError(err))
	}

	return user, nil
}

func (s *SQLiteStorage) FindUserByIdentity(ctx context.Context, email string) (models.User, error) {
	const op = "storage.FindUserByIdentity"

	var (
		user      models.User
		id, role  string
		createdAt int64
	)
	query := fmt.Sprintf("SELECT id, email, name, password_hash, user_role, created_at FROM %s WHERE email=?;", usersTable)

	err := s.db.QueryRowContext(ctx, query, NormalizeEmail(email)).Scan(
		&id,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&role,
		&createdAt,
	)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, classifySQLiteError(err))
	}

	user.ID, err = uuid.FromString(id)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	user.Role = models.Role(role)
	user.CreatedAt = time.UnixMicro(createdAt).UTC()

	return user, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func classifySQLiteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && isUniqueViolation(sqliteErr) {
		return fmt.Errorf("%w: %s", ErrUserExists, sqliteErr.Error())
	}

	return err
}

func isUniqueViolation(err *sqlite.Error) bool {
	code := err.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	// primary result code only, when extended codes are off
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE")
}
