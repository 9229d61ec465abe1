package core

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/rowstore/internal/logging"
)

type contextKey string

const (
	ctxKeyClientIP  contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "user_agent"
)

// ContextWithClientIP adds the client IP to context for job logging.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// ContextWithUserAgent adds User-Agent to context for job logging.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ClientIPFromContext extracts the client IP from context.
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP).(string); ok {
		return v
	}
	return ""
}

// UserAgentFromContext extracts User-Agent from context.
func UserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// DetachContext returns a context that keeps the values of ctx (request id,
// client metadata) but is not cancelled when the request finishes.
func DetachContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// jobLogger returns a logger carrying the request id and client metadata of
// the request that submitted the job.
func jobLogger(ctx context.Context, datasetID string, mode IngestMode) *slog.Logger {
	args := []any{"dataset_id", datasetID, "mode", mode.String()}
	if ip := ClientIPFromContext(ctx); ip != "" {
		args = append(args, "client_ip", ip)
	}
	if ua := UserAgentFromContext(ctx); ua != "" {
		args = append(args, "user_agent", ua)
	}
	return logging.WithFields(ctx, args...)
}
