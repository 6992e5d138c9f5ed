package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for the load history.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, clientIP(r)) // resolved by TrustedRealIP
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
