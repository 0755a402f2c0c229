// Package mail delivers password-reset links. The SMTP sender is the
// production implementation; LogSender stands in for dev and tests.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// SMTPConfig carries the SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// ResetURL is the frontend base; the user reference and token are
	// appended as path segments.
	ResetURL string
}

// SMTPSender sends reset mail over plain SMTP.
type SMTPSender struct {
	cfg SMTPConfig
	log *zap.Logger
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(cfg SMTPConfig, log *zap.Logger) *SMTPSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPSender{cfg: cfg, log: log}
}

// SendPasswordReset mails the reset link for the account.
func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, encodedUserID, token string) error {
	link := fmt.Sprintf("%s/%s/%s/", strings.TrimRight(s.cfg.ResetURL, "/"), encodedUserID, token)
	body := "Hello,\r\n\r\n" +
		"Use the link below to reset your password:\r\n\r\n" +
		link + "\r\n\r\n" +
		"If you did not request this, you can ignore this message.\r\n"

	headers := map[string]string{
		"From":         s.cfg.From,
		"To":           to,
		"Subject":      "Reset your password",
		"MIME-Version": "1.0",
		"Content-Type": `text/plain; charset="utf-8"`,
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msg strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, headers[k])
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	s.log.Info("reset mail sent", zap.String("to", to))
	return nil
}

// LogSender logs the reset link instead of delivering it.
type LogSender struct {
	Log *zap.Logger
}

// SendPasswordReset writes the reset material to the log.
func (s LogSender) SendPasswordReset(ctx context.Context, to, encodedUserID, token string) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("password reset link",
		zap.String("to", to),
		zap.String("uid", encodedUserID),
		zap.String("token", token),
	)
	return nil
}
