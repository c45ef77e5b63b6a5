// Package requestctx stores request correlation data on a context.
package requestctx

import (
	"context"

	"go.uber.org/zap"

	"github.com/uniedit/sitecache/internal/shared/tenant"
)

type ctxKey struct{}

// WithRequestID returns a copy of ctx carrying the request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestID returns the request ID stored in ctx, or an empty string.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

// Fields returns log fields correlating a log line with the request in ctx.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if site := tenant.SiteID(ctx); site != "" {
		fields = append(fields, zap.String("site_id", site))
	}
	return fields
}
