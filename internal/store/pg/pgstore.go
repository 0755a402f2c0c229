package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ventia.app/internal/identity"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements identity.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ identity.Store = (*Store)(nil)

// Open connects with pool settings suitable for a request-per-connection API.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection (used by tests and cmd/migrate).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// conflictError translates a uniqueness violation into the duplicate-field
// validation error the API surfaces. The constraint is the source of truth
// for concurrent duplicates; application-level checks only pretty the common
// path.
func conflictError(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok || pgErr.Code != pgErrUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "users_email_key":
		return fmt.Errorf("%w: a user with this email already exists", identity.ErrConflict)
	case "users_identification_number_key":
		return fmt.Errorf("%w: a user with this identification number already exists", identity.ErrConflict)
	case "uq_users_company_admin":
		return fmt.Errorf("%w: an admin user already exists for this company", identity.ErrConflict)
	case "companies_email_key":
		return fmt.Errorf("%w: a company with this email already exists", identity.ErrConflict)
	case "companies_tax_id_key":
		return fmt.Errorf("%w: a company with this tax id already exists", identity.ErrConflict)
	}
	return fmt.Errorf("%w: %s", identity.ErrConflict, pgErr.ConstraintName)
}
