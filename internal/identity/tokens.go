package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are the JWT claims carried by both access and refresh tokens.
type Claims struct {
	TokenType string `json:"token_type"`
	Role      Role   `json:"rol,omitempty"`
	CompanyID string `json:"company,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"access"`
	RefreshToken     string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// IssueTokens authenticates credentials and mints an access/refresh pair.
// Unknown email, wrong password and inactive account all fail the same way.
func (s *Service) IssueTokens(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if !user.Active {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	// Last-login feeds the reset-token derivation, so outstanding reset
	// tokens die on every successful login.
	if err := s.store.RecordLogin(ctx, user.ID, now); err != nil {
		return TokenPair{}, nil, err
	}
	user.LastLogin = &now

	pair, err := s.mintPair(ctx, user, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh validates a refresh token against the blacklist and rotates it:
// the presented token is revoked and a fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.parseToken(refreshToken, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	rec, err := s.store.FindRefreshToken(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	now := s.now().UTC()
	if rec.Revoked() || now.After(rec.ExpiresAt) {
		return TokenPair{}, ErrInvalidToken
	}
	user, err := s.store.FindUser(ctx, rec.UserID)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	if !user.Active {
		return TokenPair{}, ErrInvalidToken
	}
	if err := s.store.RevokeRefreshToken(ctx, rec.JTI, now); err != nil {
		return TokenPair{}, err
	}
	return s.mintPair(ctx, user, now)
}

// Logout blacklists the refresh token. A missing token is an input error;
// a malformed, expired or already-blacklisted one is a token error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return fmt.Errorf("%w: refresh token is required", ErrInvalidInput)
	}
	claims, err := s.parseToken(refreshToken, tokenTypeRefresh)
	if err != nil {
		return ErrInvalidToken
	}
	rec, err := s.store.FindRefreshToken(ctx, claims.ID)
	if err != nil {
		return ErrInvalidToken
	}
	if rec.Revoked() {
		return ErrInvalidToken
	}
	return s.store.RevokeRefreshToken(ctx, rec.JTI, s.now().UTC())
}

// AuthenticateAccess validates a bearer access token and resolves the
// principal with its group-derived permissions.
func (s *Service) AuthenticateAccess(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.parseToken(accessToken, tokenTypeAccess)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	user, err := s.store.FindUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	if !user.Active {
		return Principal{}, ErrInvalidToken
	}
	perms, err := s.store.UserPermissions(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, perms), nil
}

func (s *Service) mintPair(ctx context.Context, user *User, now time.Time) (TokenPair, error) {
	accessExp := now.Add(s.accessTTL)
	access, err := s.signToken(user, tokenTypeAccess, now, accessExp, uuid.NewString())
	if err != nil {
		return TokenPair{}, err
	}

	refreshExp := now.Add(s.refreshTTL)
	jti := uuid.NewString()
	refresh, err := s.signToken(user, tokenTypeRefresh, now, refreshExp, jti)
	if err != nil {
		return TokenPair{}, err
	}
	rec := &RefreshTokenRecord{
		JTI:       jti,
		UserID:    user.ID,
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	if err := s.store.CreateRefreshToken(ctx, rec); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) signToken(user *User, tokenType string, now, exp time.Time, jti string) (string, error) {
	claims := Claims{
		TokenType: tokenType,
		Role:      user.Role,
		CompanyID: user.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parseToken(raw, wantType string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != s.issuer || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
