package identity

import (
	"errors"
	"time"
)

var (
	// ErrInvalidInput marks bad or missing input and business-rule violations.
	ErrInvalidInput = errors.New("identity: invalid input")
	// ErrConflict marks duplicates surfaced by storage uniqueness constraints.
	ErrConflict = errors.New("identity: already exists")
	// ErrNotFound marks a lookup miss.
	ErrNotFound = errors.New("identity: not found")
	// ErrInvalidCredentials is returned for any login failure. It deliberately
	// does not say whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrInvalidToken marks a malformed, expired or blacklisted token.
	ErrInvalidToken = errors.New("identity: invalid token")
)

// Role classifies what a user is allowed to do. Each role maps to one
// permission group (see roles.go).
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCashier  Role = "cashier"
	RoleCustomer Role = "customer"
	RoleSupplier Role = "supplier"
)

// Valid reports whether the role belongs to the fixed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCashier, RoleCustomer, RoleSupplier:
		return true
	}
	return false
}

// Company is a tenant owning a set of users.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TaxID     string    `json:"tax_id,omitempty"`
	Address   string    `json:"address,omitempty"`
	Cell      string    `json:"cell"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is an authenticatable account. Every user belongs to exactly one
// company unless it is a superuser.
type User struct {
	ID                   string     `json:"id"`
	IdentificationNumber string     `json:"identification_number,omitempty"`
	Email                string     `json:"email"`
	Username             string     `json:"username"`
	Role                 Role       `json:"rol"`
	Active               bool       `json:"is_active"`
	Staff                bool       `json:"-"`
	Superuser            bool       `json:"-"`
	CompanyID            string     `json:"company,omitempty"`
	PasswordHash         string     `json:"-"`
	LastLogin            *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"date_joined"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// RefreshTokenRecord is the persisted side of an issued refresh token,
// keyed by the token's jti claim. Revocation is the blacklist.
type RefreshTokenRecord struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the token has been blacklisted.
func (r *RefreshTokenRecord) Revoked() bool { return r.RevokedAt != nil }
