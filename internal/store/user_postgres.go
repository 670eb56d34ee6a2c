package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/campusforum/memberd/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresUserRepository persists promoted accounts in Postgres. It
// implements the same operations as the in-memory UserRepository so the
// service layer can swap backends without change.
type PostgresUserRepository struct {
	db *sql.DB
}

// NewPostgresUserRepository constructs a repository over db.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, username, password, passphrase, created_at, updated_at`

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Password,
		&user.Passphrase,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, user types.User) error {
	const query = `
		INSERT INTO users (id, username, password, passphrase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Password,
		user.Passphrase,
		user.CreatedAt,
		user.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrAlreadyExists
	}
	return err
}

func (r *PostgresUserRepository) Get(ctx context.Context, username string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresUserRepository) Update(ctx context.Context, user types.User) error {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET password = $1,
			passphrase = $2,
			updated_at = $3
		WHERE username = $4`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Password,
		user.Passphrase,
		user.UpdatedAt,
		user.Username,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepository) Delete(ctx context.Context, username string) error {
	const query = `DELETE FROM users WHERE username = $1`
	result, err := r.db.ExecContext(ctx, query, username)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepository) Contains(ctx context.Context, username string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
