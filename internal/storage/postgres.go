package storage

import (
	"auth_session/internal/models"
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const pgUniqueViolation = "23505"

type PostgresStorage struct {
	db *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, DbURL string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	conn, err := pgxpool.Connect(ctx, DbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresStorage{
		db: conn,
	}, nil
}

func (p *PostgresStorage) Migrate(ctx context.Context) error {
	const op = "storage.Migrate"

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		user_role     TEXT NOT NULL DEFAULT 'user',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);`, usersTable)

	if _, err := p.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.CreateUser"

	user, err := prepareUser(user)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s(id, email, name, password_hash, user_role, created_at)
	VALUES ($1, $2, $3, $4, $5, $6);`, usersTable)

	_, err = p.db.Exec(ctx, query, user.ID.String(), user.Email, user.Name, user.PasswordHash, string(user.Role), user.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, classifyPgError(err))
	}

	return user, nil
}

func (p *PostgresStorage) FindUserByIdentity(ctx context.Context, email string) (models.User, error) {
	const op = "storage.FindUserByIdentity"

	var (
		user     models.User
		id, role string
	)
	query := fmt.Sprintf("SELECT id, email, name, password_hash, user_role, created_at FROM %s WHERE email=$1;", usersTable)

	err := p.db.QueryRow(ctx, query, NormalizeEmail(email)).Scan(
		&id,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&role,
		&user.CreatedAt,
	)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, classifyPgError(err))
	}
	user.ID, err = uuid.FromString(id)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	user.Role = models.Role(role)

	return user, nil
}

func (p *PostgresStorage) Close() error {
	p.db.Close()
	return nil
}

func classifyPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrUserExists, pgErr.ConstraintName)
	}

	return err
}
