package identity

import (
	"context"
	"time"
)

// Store describes the persistence operations the identity subsystem needs.
// Uniqueness of emails, identification numbers, tax ids and the
// one-admin-per-company rule are enforced by storage constraints; violations
// surface as ErrConflict wrapped with a field message.
type Store interface {
	CreateCompany(ctx context.Context, c *Company) error
	FindCompany(ctx context.Context, id string) (*Company, error)
	FindCompanyByEmail(ctx context.Context, email string) (*Company, error)

	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
	CompanyHasAdmin(ctx context.Context, companyID string) (bool, error)

	// CreateCompanyWithAdmin persists the company and its first admin as one
	// transaction; neither row survives if the other fails.
	CreateCompanyWithAdmin(ctx context.Context, c *Company, admin *User) error

	AttachToGroup(ctx context.Context, userID, group string) error
	UserPermissions(ctx context.Context, userID string) ([]string, error)

	CreateRefreshToken(ctx context.Context, rec *RefreshTokenRecord) error
	FindRefreshToken(ctx context.Context, jti string) (*RefreshTokenRecord, error)
	RevokeRefreshToken(ctx context.Context, jti string, at time.Time) error
}
