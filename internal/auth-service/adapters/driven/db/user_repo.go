package db

import (
	"context"
	"errors"
	"fmt"

	"medilink/internal/auth-service/core/domain/model"
	"medilink/internal/auth-service/core/ports"
	"medilink/internal/myerrors"
	"medilink/internal/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type UserRepo struct {
	db *postgres.DB
}

func NewUserRepo(db *postgres.DB) ports.IUserRepo {
	return &UserRepo{
		db: db,
	}
}

func (ur *UserRepo) Create(ctx context.Context, user model.User) (string, error) {
	q := `INSERT INTO users (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING user_id`

	id := ""
	row := ur.db.Conn().QueryRow(ctx, q, user.Username, user.Email, user.PasswordHash, user.Role)
	if err := row.Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", fmt.Errorf("%w: email already registered", myerrors.ErrConflict)
		}
		return "", fmt.Errorf("insert user: %w", err)
	}

	return id, nil
}

func (ur *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	q := `
		SELECT
			u.user_id,
			u.username,
			u.email,
			u.password_hash,
			u.role,
			u.created_at,
			u.updated_at
		FROM
			users u
		WHERE
			u.email = $1
	`

	var u model.User
	err := ur.db.Conn().QueryRow(ctx, q, email).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("%w: unknown email", myerrors.ErrNotFound)
		}
		return model.User{}, fmt.Errorf("select user: %w", err)
	}

	return u, nil
}
