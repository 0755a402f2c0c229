package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"ventia.app/internal/identity"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func userColumnsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "identification_number", "email", "username", "role",
		"active", "staff", "superuser", "company_id", "password_hash",
		"last_login", "created_at", "updated_at",
	})
}

func TestFindUserByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	lastLogin := now.Add(-time.Hour)

	mock.ExpectQuery("select (.+) from users where email").
		WithArgs("user@example.com").
		WillReturnRows(userColumnsRows().AddRow(
			"u1", "ID-9", "user@example.com", "user", "cashier",
			true, false, false, "c1", "hash",
			lastLogin, now, now,
		))

	user, err := store.FindUserByEmail(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if user.ID != "u1" || user.Role != identity.RoleCashier || user.CompanyID != "c1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.LastLogin == nil || !user.LastLogin.Equal(lastLogin) {
		t.Fatalf("last_login not scanned: %v", user.LastLogin)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from users where id").
		WithArgs("missing").
		WillReturnRows(userColumnsRows())

	_, err := store.FindUser(context.Background(), "missing")
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := store.CreateUser(context.Background(), &identity.User{
		ID: "u1", Email: "dup@example.com", Username: "dup",
		Role: identity.RoleCashier, Active: true, CompanyID: "c1",
		PasswordHash: "hash", CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserSecondAdminConstraint(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_users_company_admin"})

	err := store.CreateUser(context.Background(), &identity.User{
		ID: "u2", Email: "admin@example.com", Username: "admin",
		Role: identity.RoleAdmin, Active: true, CompanyID: "c1",
		PasswordHash: "hash", CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateCompanyWithAdminCommits(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("insert into companies").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.CreateCompanyWithAdmin(context.Background(),
		&identity.Company{ID: "c1", Name: "Acme", Cell: "555", Email: "acme@example.com", CreatedAt: now, UpdatedAt: now},
		&identity.User{ID: "u1", Email: "boss@acme.com", Username: "boss", Role: identity.RoleAdmin, Active: true, CompanyID: "c1", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now},
	)
	if err != nil {
		t.Fatalf("CreateCompanyWithAdmin: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateCompanyWithAdminRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("insert into companies").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	mock.ExpectRollback()

	err := store.CreateCompanyWithAdmin(context.Background(),
		&identity.Company{ID: "c1", Name: "Acme", Cell: "555", Email: "acme@example.com", CreatedAt: now, UpdatedAt: now},
		&identity.User{ID: "u1", Email: "boss@acme.com", Username: "boss", Role: identity.RoleAdmin, Active: true, CompanyID: "c1", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now},
	)
	if !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompanyHasAdmin(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select exists").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := store.CompanyHasAdmin(context.Background(), "c1")
	if err != nil {
		t.Fatalf("CompanyHasAdmin: %v", err)
	}
	if !has {
		t.Fatal("expected an admin")
	}
}

func TestAttachToGroupMissingGroup(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select name from groups").
		WithArgs("Ghosts").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	err := store.AttachToGroup(context.Background(), "u1", "Ghosts")
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachToGroupIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select name from groups").
		WithArgs("Cashiers").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Cashiers"))
	mock.ExpectExec("insert into user_groups").
		WithArgs("u1", "Cashiers").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.AttachToGroup(context.Background(), "u1", "Cashiers"); err != nil {
		t.Fatalf("AttachToGroup: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserPermissions(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select gp.permission").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"permission"}).
			AddRow("company.view").
			AddRow("product.view").
			AddRow("user.view"))

	perms, err := store.UserPermissions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserPermissions: %v", err)
	}
	if len(perms) != 3 || perms[0] != "company.view" {
		t.Fatalf("unexpected permissions: %v", perms)
	}
}

func TestRevokeRefreshToken(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs("jti-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RevokeRefreshToken(context.Background(), "jti-1", now); err != nil {
		t.Fatalf("RevokeRefreshToken: %v", err)
	}

	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs("jti-missing", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.RevokeRefreshToken(context.Background(), "jti-missing", now); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindRefreshToken(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	revoked := now.Add(-time.Minute)

	mock.ExpectQuery("select jti, user_id, expires_at, created_at, revoked_at").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"jti", "user_id", "expires_at", "created_at", "revoked_at"}).
			AddRow("jti-1", "u1", now.Add(time.Hour), now.Add(-time.Hour), revoked))

	rec, err := store.FindRefreshToken(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("FindRefreshToken: %v", err)
	}
	if !rec.Revoked() || !rec.RevokedAt.Equal(revoked) {
		t.Fatalf("revocation not scanned: %+v", rec)
	}
}

func TestUpdateUserPasswordMissingUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("update users set password_hash").
		WithArgs("missing", "hash", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdateUserPassword(context.Background(), "missing", "hash", now); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
