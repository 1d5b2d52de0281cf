package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"scorecard.org/internal/auth"
)

func TestCreateUserUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into users").
		WithArgs("u1", "code1", "a@example.com", "hash", "user", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.CreateUser(context.Background(), &auth.User{
		ID:           "u1",
		Code:         "code1",
		Email:        "a@example.com",
		PasswordHash: "hash",
		Role:         auth.RoleUser,
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestFindUserByCode(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("select id, code, email, password_hash, role, created_at, updated_at").
		WithArgs("code1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "code", "email", "password_hash", "role", "created_at", "updated_at",
		}).AddRow("u1", "code1", "a@example.com", "hash", "admin", now, now))

	user, err := store.FindUserByCode(context.Background(), "code1")
	if err != nil {
		t.Fatalf("FindUserByCode: %v", err)
	}
	if user.ID != "u1" || user.Role != auth.RoleAdmin {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestFindUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, code, email, password_hash, role, created_at, updated_at").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "code", "email", "password_hash", "role", "created_at", "updated_at",
		}))

	_, err := store.FindUser(context.Background(), "missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
