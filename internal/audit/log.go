package audit

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ventia.app/internal/identity"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Init installs the logger used for audit events.
func Init(logger *zap.Logger) {
	if logger == nil {
		return
	}
	mu.Lock()
	log = logger
	mu.Unlock()
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	entry := []zap.Field{zap.String("event", event)}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if principal, ok := identity.PrincipalFromContext(ctx); ok && principal.User != nil {
		entry = append(entry, zap.String("actor_id", principal.User.ID))
	}
	entry = append(entry, fields...)

	mu.RLock()
	l := log
	mu.RUnlock()
	l.Info("audit", entry...)
}
