// Package tenant carries the current site identifier through a request.
//
// The site is always supplied by an outer collaborator (HTTP middleware, a job
// runner); nothing in the cache layer computes or guesses it.
package tenant

import (
	"context"
	"errors"
)

// ErrNoTenant is returned when no site identifier is present.
var ErrNoTenant = errors.New("no site in context")

type ctxKey int

const (
	siteIDKey ctxKey = iota
)

// WithSiteID returns a copy of ctx carrying siteID.
func WithSiteID(ctx context.Context, siteID string) context.Context {
	if ctx == nil {
		return context.WithValue(context.Background(), siteIDKey, siteID)
	}
	return context.WithValue(ctx, siteIDKey, siteID)
}

// SiteID returns the site stored in ctx, or an empty string.
func SiteID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(siteIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Provider resolves the site of the caller.
type Provider interface {
	SiteID(ctx context.Context) (string, error)
}

// ContextProvider reads the site from the request context.
type ContextProvider struct{}

// NewContextProvider creates a provider backed by the request context.
func NewContextProvider() *ContextProvider {
	return &ContextProvider{}
}

// SiteID implements Provider.
func (ContextProvider) SiteID(ctx context.Context) (string, error) {
	site := SiteID(ctx)
	if site == "" {
		return "", ErrNoTenant
	}
	return site, nil
}

// Static always reports the same site. Useful for jobs and tests.
type Static string

// SiteID implements Provider.
func (s Static) SiteID(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoTenant
	}
	return string(s), nil
}

var (
	_ Provider = ContextProvider{}
	_ Provider = Static("")
)
