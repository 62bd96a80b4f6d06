package repository

import (
	"context"
	"database/sql"
	"errors"

	"mediastore/internal/auth/model"
	"mediastore/pkg/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	roles         TEXT NOT NULL DEFAULT ''
)`

type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// Migrate creates the users table when it is missing.
func (r *UserRepository) Migrate(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	if err != nil {
		logger.Sugar.Errorf("Failed to create users table: %v", err)
	}
	return err
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var (
		u     model.User
		roles string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT username, password_hash, roles FROM users WHERE username = $1", username).
		Scan(&u.Username, &u.PasswordHash, &roles)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load user %s: %v", username, err)
		return nil, err
	}
	u.Roles = model.ParseRoles(roles)
	return &u, nil
}

// Upsert creates the user or replaces its password hash and roles.
func (r *UserRepository) Upsert(ctx context.Context, u *model.User) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, roles) VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash, roles = EXCLUDED.roles`,
		u.Username, u.PasswordHash, model.JoinRoles(u.Roles))
	if err != nil {
		logger.Sugar.Errorf("Failed to save user %s: %v", u.Username, err)
	}
	return err
}
