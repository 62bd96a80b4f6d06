package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediastore/internal/auth/model"
)

func TestGetByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT username, password_hash, roles FROM users WHERE username = \\$1").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "roles"}).
			AddRow("alice", "$2a$10$hash", "reader, editor,"))

	u, err := NewUserRepository(db).GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "$2a$10$hash", u.PasswordHash)
	assert.Equal(t, []string{"reader", "editor"}, u.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByUsernameMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT username, password_hash, roles FROM users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "roles"}))

	_, err = NewUserRepository(db).GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByUsernameDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT username").WithArgs("alice").WillReturnError(boom)

	_, err = NewUserRepository(db).GetByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, model.ErrUserNotFound)
}

func TestUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO users \\(username, password_hash, roles\\) VALUES \\(\\$1, \\$2, \\$3\\)").
		WithArgs("alice", "hash", "reader,editor").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewUserRepository(db).Upsert(context.Background(), &model.User{
		Username: "alice", PasswordHash: "hash", Roles: []string{"reader", "editor"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewUserRepository(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
