package identity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memStore is an in-memory Store for service tests. It enforces the same
// uniqueness rules the SQL schema does so conflict paths are exercisable
// without a database.
type memStore struct {
	mu         sync.Mutex
	companies  map[string]*Company
	users      map[string]*User
	groups     map[string]bool
	userGroups map[string]map[string]bool
	grants     map[string][]string
	tokens     map[string]*RefreshTokenRecord

	failUserInsert error // forced error for the next user insert
}

func newMemStore() *memStore {
	groups := make(map[string]bool)
	grants := make(map[string][]string)
	for name, perms := range GroupGrants {
		groups[name] = true
		grants[name] = append([]string(nil), perms...)
	}
	return &memStore{
		companies:  make(map[string]*Company),
		users:      make(map[string]*User),
		groups:     groups,
		userGroups: make(map[string]map[string]bool),
		grants:     grants,
		tokens:     make(map[string]*RefreshTokenRecord),
	}
}

func cloneUser(u *User) *User {
	cp := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}

func cloneCompany(c *Company) *Company {
	cp := *c
	return &cp
}

func (m *memStore) CreateCompany(ctx context.Context, c *Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.companies {
		if existing.Email == c.Email {
			return fmt.Errorf("%w: a company with this email already exists", ErrConflict)
		}
	}
	m.companies[c.ID] = cloneCompany(c)
	return nil
}

func (m *memStore) FindCompany(ctx context.Context, id string) (*Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCompany(c), nil
}

func (m *memStore) FindCompanyByEmail(ctx context.Context, email string) (*Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if c.Email == email {
			return cloneCompany(c), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) insertUserLocked(u *User) error {
	if m.failUserInsert != nil {
		err := m.failUserInsert
		m.failUserInsert = nil
		return err
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: a user with this email already exists", ErrConflict)
		}
	}
	if u.Role == RoleAdmin && !u.Superuser && u.CompanyID != "" {
		for _, existing := range m.users {
			if existing.CompanyID == u.CompanyID && existing.Role == RoleAdmin && !existing.Superuser {
				return fmt.Errorf("%w: an admin user already exists for this company", ErrConflict)
			}
		}
	}
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memStore) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertUserLocked(u)
}

func (m *memStore) FindUser(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *memStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) UpdateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = at
	return nil
}

func (m *memStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

func (m *memStore) CompanyHasAdmin(ctx context.Context, companyID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.CompanyID == companyID && u.Role == RoleAdmin && !u.Superuser {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateCompanyWithAdmin(ctx context.Context, c *Company, admin *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.companies {
		if existing.Email == c.Email {
			return fmt.Errorf("%w: a company with this email already exists", ErrConflict)
		}
	}
	// admin insert failure must leave no company row behind
	if err := m.insertUserLocked(admin); err != nil {
		return err
	}
	m.companies[c.ID] = cloneCompany(c)
	return nil
}

func (m *memStore) AttachToGroup(ctx context.Context, userID, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.groups[group] {
		return fmt.Errorf("%w: permission group %q is not seeded", ErrNotFound, group)
	}
	if m.userGroups[userID] == nil {
		m.userGroups[userID] = make(map[string]bool)
	}
	m.userGroups[userID][group] = true
	return nil
}

func (m *memStore) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var perms []string
	for group := range m.userGroups[userID] {
		perms = append(perms, m.grants[group]...)
	}
	return perms, nil
}

func (m *memStore) CreateRefreshToken(ctx context.Context, rec *RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.tokens[rec.JTI] = &cp
	return nil
}

func (m *memStore) FindRefreshToken(ctx context.Context, jti string) (*RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[jti]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	if rec.RevokedAt != nil {
		t := *rec.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp, nil
}

func (m *memStore) RevokeRefreshToken(ctx context.Context, jti string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[jti]
	if !ok {
		return ErrNotFound
	}
	if rec.RevokedAt == nil {
		rec.RevokedAt = &at
	}
	return nil
}

var _ Store = (*memStore)(nil)
