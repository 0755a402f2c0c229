package httpapi

import (
	"context"
	"fmt"
	"time"

	"ventia.app/internal/identity"
)

// stubStore is a map-backed identity.Store for handler tests. It mirrors the
// uniqueness rules the SQL constraints enforce.
type stubStore struct {
	companies map[string]*identity.Company
	users     map[string]*identity.User
	groups    map[string]bool
	memberOf  map[string]map[string]bool
	tokens    map[string]*identity.RefreshTokenRecord
}

func newStubStore() *stubStore {
	groups := make(map[string]bool)
	for name := range identity.GroupGrants {
		groups[name] = true
	}
	return &stubStore{
		companies: make(map[string]*identity.Company),
		users:     make(map[string]*identity.User),
		groups:    groups,
		memberOf:  make(map[string]map[string]bool),
		tokens:    make(map[string]*identity.RefreshTokenRecord),
	}
}

func (s *stubStore) CreateCompany(ctx context.Context, c *identity.Company) error {
	for _, existing := range s.companies {
		if existing.Email == c.Email {
			return fmt.Errorf("%w: a company with this email already exists", identity.ErrConflict)
		}
	}
	cp := *c
	s.companies[c.ID] = &cp
	return nil
}

func (s *stubStore) FindCompany(ctx context.Context, id string) (*identity.Company, error) {
	c, ok := s.companies[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *stubStore) FindCompanyByEmail(ctx context.Context, email string) (*identity.Company, error) {
	for _, c := range s.companies {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *stubStore) insertUser(u *identity.User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: a user with this email already exists", identity.ErrConflict)
		}
		if u.Role == identity.RoleAdmin && !u.Superuser &&
			existing.CompanyID == u.CompanyID && u.CompanyID != "" &&
			existing.Role == identity.RoleAdmin && !existing.Superuser {
			return fmt.Errorf("%w: an admin user already exists for this company", identity.ErrConflict)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *stubStore) CreateUser(ctx context.Context, u *identity.User) error {
	return s.insertUser(u)
}

func (s *stubStore) FindUser(ctx context.Context, id string) (*identity.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *stubStore) FindUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *stubStore) UpdateUser(ctx context.Context, u *identity.User) error {
	if _, ok := s.users[u.ID]; !ok {
		return identity.ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *stubStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return identity.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = at
	return nil
}

func (s *stubStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return identity.ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

func (s *stubStore) CompanyHasAdmin(ctx context.Context, companyID string) (bool, error) {
	for _, u := range s.users {
		if u.CompanyID == companyID && u.Role == identity.RoleAdmin && !u.Superuser {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) CreateCompanyWithAdmin(ctx context.Context, c *identity.Company, admin *identity.User) error {
	if err := s.insertUser(admin); err != nil {
		return err
	}
	cp := *c
	s.companies[c.ID] = &cp
	return nil
}

func (s *stubStore) AttachToGroup(ctx context.Context, userID, group string) error {
	if !s.groups[group] {
		return fmt.Errorf("%w: permission group %q is not seeded", identity.ErrNotFound, group)
	}
	if s.memberOf[userID] == nil {
		s.memberOf[userID] = make(map[string]bool)
	}
	s.memberOf[userID][group] = true
	return nil
}

func (s *stubStore) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	var perms []string
	for group := range s.memberOf[userID] {
		perms = append(perms, identity.GroupGrants[group]...)
	}
	return perms, nil
}

func (s *stubStore) CreateRefreshToken(ctx context.Context, rec *identity.RefreshTokenRecord) error {
	cp := *rec
	s.tokens[rec.JTI] = &cp
	return nil
}

func (s *stubStore) FindRefreshToken(ctx context.Context, jti string) (*identity.RefreshTokenRecord, error) {
	rec, ok := s.tokens[jti]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *stubStore) RevokeRefreshToken(ctx context.Context, jti string, at time.Time) error {
	rec, ok := s.tokens[jti]
	if !ok {
		return identity.ErrNotFound
	}
	if rec.RevokedAt == nil {
		rec.RevokedAt = &at
	}
	return nil
}

var _ identity.Store = (*stubStore)(nil)
