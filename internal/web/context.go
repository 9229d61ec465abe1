package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/rowstore/internal/core"
	mw "github.com/JonMunkholm/rowstore/internal/web/middleware"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx so ingestion
// jobs started by the request log them.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, mw.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
