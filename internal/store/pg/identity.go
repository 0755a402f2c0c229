package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ventia.app/internal/identity"
)

const companyColumns = `id, name, coalesce(tax_id,''), coalesce(address,''), cell, coalesce(phone,''), email, created_at, updated_at`

func (s *Store) CreateCompany(ctx context.Context, c *identity.Company) error {
	_, err := s.db.ExecContext(ctx, `
		insert into companies (id, name, tax_id, address, cell, phone, email, created_at, updated_at)
		values ($1, $2, nullif($3,''), nullif($4,''), $5, nullif($6,''), $7, $8, $9)
	`, c.ID, c.Name, c.TaxID, c.Address, c.Cell, c.Phone, c.Email, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return conflictError(err)
	}
	return nil
}

func scanCompany(row *sql.Row) (*identity.Company, error) {
	var c identity.Company
	err := row.Scan(&c.ID, &c.Name, &c.TaxID, &c.Address, &c.Cell, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) FindCompany(ctx context.Context, id string) (*identity.Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx,
		`select `+companyColumns+` from companies where id = $1`, id))
}

func (s *Store) FindCompanyByEmail(ctx context.Context, email string) (*identity.Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx,
		`select `+companyColumns+` from companies where email = $1`, email))
}

const userColumns = `id, coalesce(identification_number,''), email, username, role, active, staff, superuser, coalesce(company_id,''), password_hash, last_login, created_at, updated_at`

func insertUser(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, u *identity.User) error {
	_, err := q.ExecContext(ctx, `
		insert into users (id, identification_number, email, username, role, active, staff, superuser, company_id, password_hash, created_at, updated_at)
		values ($1, nullif($2,''), $3, $4, $5, $6, $7, $8, nullif($9,''), $10, $11, $12)
	`, u.ID, u.IdentificationNumber, u.Email, u.Username, string(u.Role), u.Active, u.Staff, u.Superuser, u.CompanyID, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return conflictError(err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *identity.User) error {
	return insertUser(ctx, s.db, u)
}

func scanUser(row *sql.Row) (*identity.User, error) {
	var (
		u         identity.User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.IdentificationNumber, &u.Email, &u.Username, &role,
		&u.Active, &u.Staff, &u.Superuser, &u.CompanyID, &u.PasswordHash,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = identity.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*identity.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
}

func (s *Store) UpdateUser(ctx context.Context, u *identity.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set identification_number = nullif($2,''),
		    email = $3,
		    username = $4,
		    role = $5,
		    active = $6,
		    company_id = nullif($7,''),
		    updated_at = $8
		where id = $1
	`, u.ID, u.IdentificationNumber, u.Email, u.Username, string(u.Role), u.Active, u.CompanyID, u.UpdatedAt)
	if err != nil {
		return conflictError(err)
	}
	return requireRow(res)
}

func (s *Store) UpdateUserPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = $3 where id = $1`,
		userID, passwordHash, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_login = $2 where id = $1`, userID, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) CompanyHasAdmin(ctx context.Context, companyID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(
			select 1 from users
			where company_id = $1 and role = 'admin' and not superuser
		)
	`, companyID).Scan(&exists)
	return exists, err
}

// CreateCompanyWithAdmin commits the tenant and its first admin together.
func (s *Store) CreateCompanyWithAdmin(ctx context.Context, c *identity.Company, admin *identity.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into companies (id, name, tax_id, address, cell, phone, email, created_at, updated_at)
		values ($1, $2, nullif($3,''), nullif($4,''), $5, nullif($6,''), $7, $8, $9)
	`, c.ID, c.Name, c.TaxID, c.Address, c.Cell, c.Phone, c.Email, c.CreatedAt, c.UpdatedAt); err != nil {
		return conflictError(err)
	}
	if err := insertUser(ctx, tx, admin); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AttachToGroup(ctx context.Context, userID, group string) error {
	var name string
	err := s.db.QueryRowContext(ctx, `select name from groups where name = $1`, group).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: permission group %q is not seeded", identity.ErrNotFound, group)
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into user_groups (user_id, group_name) values ($1, $2)
		on conflict do nothing
	`, userID, name)
	return err
}

func (s *Store) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select gp.permission
		from user_groups ug
		join group_permissions gp on gp.group_name = ug.group_name
		where ug.user_id = $1
		order by gp.permission
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *Store) CreateRefreshToken(ctx context.Context, rec *identity.RefreshTokenRecord) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (jti, user_id, expires_at, created_at)
		values ($1, $2, $3, $4)
	`, rec.JTI, rec.UserID, rec.ExpiresAt, rec.CreatedAt)
	return err
}

func (s *Store) FindRefreshToken(ctx context.Context, jti string) (*identity.RefreshTokenRecord, error) {
	var (
		rec       identity.RefreshTokenRecord
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select jti, user_id, expires_at, created_at, revoked_at
		from refresh_tokens where jti = $1
	`, jti).Scan(&rec.JTI, &rec.UserID, &rec.ExpiresAt, &rec.CreatedAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	return &rec, nil
}

// RevokeRefreshToken blacklists the token. Revoking an already-revoked token
// keeps the original revocation time, so the operation is idempotent here;
// the service layer decides whether to report that as an error.
func (s *Store) RevokeRefreshToken(ctx context.Context, jti string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at = coalesce(revoked_at, $2) where jti = $1`,
		jti, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}
