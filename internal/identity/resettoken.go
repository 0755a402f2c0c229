package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// resetKeySalt namespaces the reset-token MAC away from session-token signing.
const resetKeySalt = "ventia.identity.reset"

// ResetSender delivers the password-reset link. The encoded user reference
// and the token travel separately so the link can replay them.
type ResetSender interface {
	SendPasswordReset(ctx context.Context, to, encodedUserID, token string) error
}

// WithResetSender wires the mail collaborator for the reset flow.
func WithResetSender(sender ResetSender) ServiceOption {
	return func(s *Service) { s.resetSender = sender }
}

// EncodeUserRef encodes a user id for use in reset links.
func EncodeUserRef(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

// DecodeUserRef reverses EncodeUserRef.
func DecodeUserRef(ref string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(ref))
	if err != nil || len(raw) == 0 {
		return "", errors.New("invalid user reference")
	}
	return string(raw), nil
}

// RequestReset mints a reset token for the account and hands it to the mail
// collaborator. The response is success-shaped whether or not the email is
// known, so the endpoint cannot be used to enumerate accounts.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}
	token := s.makeResetToken(user, s.now().UTC().Unix())
	ref := EncodeUserRef(user.ID)
	if s.resetSender == nil {
		s.log.Warn("no reset sender configured, dropping reset token", zap.String("user_id", user.ID))
		return nil
	}
	if err := s.resetSender.SendPasswordReset(ctx, user.Email, ref, token); err != nil {
		// Delivery failure must not leak account existence to the caller.
		s.log.Error("password reset mail failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// CheckResetToken validates the (user reference, token) pair and returns the
// matching user so the caller can echo the pair back for the final step.
func (s *Service) CheckResetToken(ctx context.Context, encodedUserID, token string) (*User, error) {
	userID, err := DecodeUserRef(encodedUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid reset link", ErrInvalidToken)
	}
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid reset link", ErrInvalidToken)
	}
	if err := s.checkResetToken(user, token); err != nil {
		return nil, fmt.Errorf("%w: reset token is invalid or expired", ErrInvalidToken)
	}
	return user, nil
}

// SetNewPassword finishes the reset flow. The token derivation includes the
// password hash, so the token in hand dies the moment the new hash lands.
func (s *Service) SetNewPassword(ctx context.Context, encodedUserID, token, newPassword string) error {
	user, err := s.CheckResetToken(ctx, encodedUserID, token)
	if err != nil {
		return err
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

// makeResetToken derives a token from the account's mutable state: the
// password hash and last-login timestamp are part of the MAC input, which is
// what makes the token single-use without a stored flag.
func (s *Service) makeResetToken(user *User, ts int64) string {
	return strconv.FormatInt(ts, 36) + "-" + s.resetMAC(user, ts)
}

func (s *Service) checkResetToken(user *User, token string) error {
	tsPart, _, ok := strings.Cut(strings.TrimSpace(token), "-")
	if !ok {
		return ErrInvalidToken
	}
	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil {
		return ErrInvalidToken
	}
	expected := s.makeResetToken(user, ts)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
		return ErrInvalidToken
	}
	now := s.now().UTC().Unix()
	if now < ts || now-ts > int64(s.resetTTL.Seconds()) {
		return ErrInvalidToken
	}
	return nil
}

func (s *Service) resetMAC(user *User, ts int64) string {
	var lastLogin int64
	if user.LastLogin != nil {
		lastLogin = user.LastLogin.UTC().Unix()
	}
	mac := hmac.New(sha256.New, append([]byte(resetKeySalt), s.secret...))
	fmt.Fprintf(mac, "%s|%s|%d|%d", user.ID, user.PasswordHash, lastLogin, ts)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
