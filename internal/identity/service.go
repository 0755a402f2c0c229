package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ventia.app/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
	defaultResetTTL   = time.Hour
)

// Service implements account lifecycle, role-group binding and token issuance
// on top of a Store.
type Service struct {
	store       Store
	log         *zap.Logger
	now         func() time.Time
	secret      []byte
	resetSender ResetSender

	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithResetTTL configures the password-reset token window.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// NewService constructs a Service. The secret signs both session and
// password-reset tokens.
func NewService(store Store, secret string, log *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("identity: store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("identity: signing secret is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Service{
		store:      store,
		log:        log,
		now:        time.Now,
		secret:     []byte(secret),
		issuer:     "ventia",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		resetTTL:   defaultResetTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// NewUserParams carries everything the identity factory needs.
type NewUserParams struct {
	IdentificationNumber string
	Email                string
	Username             string
	Role                 Role
	CompanyID            string
	Password             string
	Active               bool
	Staff                bool
	Superuser            bool
}

// CreateUser is the identity factory. It validates the company-binding
// invariant, normalizes the email, hashes the password and best-effort
// attaches the user to its role's permission group.
func (s *Service) CreateUser(ctx context.Context, p NewUserParams) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !p.Role.Valid() {
		return nil, fmt.Errorf("%w: role %q is not one of admin, cashier, customer, supplier", ErrInvalidInput, p.Role)
	}
	if p.CompanyID == "" && !p.Superuser {
		return nil, fmt.Errorf("%w: company is required", ErrInvalidInput)
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.now().UTC()
	user := &User{
		ID:                   ids.New(),
		IdentificationNumber: strings.TrimSpace(p.IdentificationNumber),
		Email:                email,
		Username:             strings.TrimSpace(p.Username),
		Role:                 p.Role,
		Active:               p.Active,
		Staff:                p.Staff,
		Superuser:            p.Superuser,
		CompanyID:            p.CompanyID,
		PasswordHash:         hash,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.attachRoleGroup(ctx, user)
	return user, nil
}

// attachRoleGroup binds the user to its role's permission group. Failure is
// logged and swallowed: the account exists either way, it just carries no
// group-derived capabilities.
func (s *Service) attachRoleGroup(ctx context.Context, user *User) {
	group, ok := GroupForRole(user.Role)
	if !ok {
		return
	}
	if err := s.store.AttachToGroup(ctx, user.ID, group); err != nil {
		s.log.Warn("permission group not attached",
			zap.String("user_id", user.ID),
			zap.String("group", group),
			zap.Error(err),
		)
	}
}

// CreateSuperuser creates an unscoped admin account with staff access.
func (s *Service) CreateSuperuser(ctx context.Context, email, username, password string) (*User, error) {
	return s.CreateUser(ctx, NewUserParams{
		Email:     email,
		Username:  username,
		Role:      RoleAdmin,
		Password:  password,
		Active:    true,
		Staff:     true,
		Superuser: true,
	})
}

// RegisterParams is the public self-service registration input.
type RegisterParams struct {
	Email     string
	Username  string
	Role      Role
	Password  string
	CompanyID string
}

// Register creates a company-scoped account. A company may hold at most one
// admin; the storage layer backs this check with a partial unique index, so a
// concurrent duplicate loses at commit time rather than here.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if len(p.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if p.CompanyID == "" {
		return nil, fmt.Errorf("%w: company is required for this kind of user", ErrInvalidInput)
	}
	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: a user with this email already exists", ErrConflict)
	}
	if p.Role == RoleAdmin {
		has, err := s.store.CompanyHasAdmin(ctx, p.CompanyID)
		if err != nil {
			return nil, err
		}
		if has {
			return nil, fmt.Errorf("%w: an admin user already exists for this company", ErrConflict)
		}
	}
	return s.CreateUser(ctx, NewUserParams{
		Email:     email,
		Username:  p.Username,
		Role:      p.Role,
		CompanyID: p.CompanyID,
		Password:  p.Password,
		Active:    true,
	})
}

// ValidateCompanyBinding enforces the tenant invariant on save paths.
func ValidateCompanyBinding(u *User) error {
	if !u.Superuser && u.CompanyID == "" {
		return fmt.Errorf("%w: only a superuser may have no company", ErrInvalidInput)
	}
	return nil
}

// UserUpdate is a partial profile update; nil fields keep their value.
type UserUpdate struct {
	Email     *string
	Username  *string
	Role      *Role
	CompanyID *string
	Active    *bool
}

// UpdateUser applies a partial update, re-validating the company binding.
func (s *Service) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" {
			return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
		}
		user.Email = email
	}
	if upd.Username != nil {
		user.Username = strings.TrimSpace(*upd.Username)
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, fmt.Errorf("%w: role %q is not one of admin, cashier, customer, supplier", ErrInvalidInput, *upd.Role)
		}
		user.Role = *upd.Role
	}
	if upd.CompanyID != nil {
		user.CompanyID = *upd.CompanyID
	}
	if upd.Active != nil {
		user.Active = *upd.Active
	}
	if err := ValidateCompanyBinding(user); err != nil {
		return nil, err
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword re-hashes after verifying the current password. A wrong
// current password leaves the stored hash untouched.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, currentPassword); err != nil {
		return fmt.Errorf("%w: current password is incorrect", ErrInvalidCredentials)
	}
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.store.UpdateUserPassword(ctx, user.ID, hash, s.now().UTC())
}

// CompanyParams carries tenant provisioning input.
type CompanyParams struct {
	Name    string
	TaxID   string
	Address string
	Cell    string
	Phone   string
	Email   string
}

// AdminParams carries the first-admin input for tenant provisioning.
type AdminParams struct {
	Email    string
	Username string
	Password string
	Role     Role // optional; anything but admin is rejected
}

// CreateCompanyWithAdmin provisions a tenant and its first admin atomically.
// If the admin insert fails the company row is rolled back with it.
func (s *Service) CreateCompanyWithAdmin(ctx context.Context, cp CompanyParams, ap AdminParams) (*Company, *User, error) {
	companyEmail := strings.TrimSpace(strings.ToLower(cp.Email))
	if cp.Name == "" || companyEmail == "" {
		return nil, nil, fmt.Errorf("%w: company name and email are required", ErrInvalidInput)
	}
	adminEmail := strings.TrimSpace(strings.ToLower(ap.Email))
	if adminEmail == "" || ap.Password == "" {
		return nil, nil, fmt.Errorf("%w: admin email and password are required", ErrInvalidInput)
	}
	role := ap.Role
	if role == "" {
		role = RoleAdmin
	}
	if role != RoleAdmin {
		return nil, nil, fmt.Errorf("%w: only role 'admin' is allowed when creating a company", ErrInvalidInput)
	}
	if _, err := s.store.FindCompanyByEmail(ctx, companyEmail); err == nil {
		return nil, nil, fmt.Errorf("%w: a company with this email already exists", ErrConflict)
	}
	if _, err := s.store.FindUserByEmail(ctx, adminEmail); err == nil {
		return nil, nil, fmt.Errorf("%w: a user with this email already exists", ErrConflict)
	}

	hash, err := HashPassword(ap.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.now().UTC()
	company := &Company{
		ID:        ids.New(),
		Name:      strings.TrimSpace(cp.Name),
		TaxID:     strings.TrimSpace(cp.TaxID),
		Address:   strings.TrimSpace(cp.Address),
		Cell:      strings.TrimSpace(cp.Cell),
		Phone:     strings.TrimSpace(cp.Phone),
		Email:     companyEmail,
		CreatedAt: now,
		UpdatedAt: now,
	}
	admin := &User{
		ID:           ids.New(),
		Email:        adminEmail,
		Username:     strings.TrimSpace(ap.Username),
		Role:         RoleAdmin,
		Active:       true,
		CompanyID:    company.ID,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateCompanyWithAdmin(ctx, company, admin); err != nil {
		return nil, nil, err
	}
	s.attachRoleGroup(ctx, admin)
	return company, admin, nil
}

// Profile loads a user by id.
func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	return s.store.FindUser(ctx, userID)
}
