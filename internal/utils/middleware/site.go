package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/uniedit/sitecache/internal/shared/errors"
	"github.com/uniedit/sitecache/internal/shared/tenant"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// DefaultSiteHeader carries the site when no JWT secret is configured.
	DefaultSiteHeader = "X-Site-ID"
	// SiteIDKey is the gin context key for the site ID.
	SiteIDKey = "site_id"
)

// SiteClaims are the JWT claims identifying the caller's site.
type SiteClaims struct {
	SiteID string `json:"site_id"`
	jwt.RegisteredClaims
}

// SiteConfig configures site resolution.
type SiteConfig struct {
	// JWTSecret requires HS256 bearer tokens carrying a site_id claim.
	JWTSecret string
	// Header carries the site when JWTSecret is empty.
	Header string
}

// Site returns a middleware that resolves the caller's site and stores it in
// the request context.
//
// With a JWT secret configured every request must carry a valid bearer token
// and the site comes from its site_id claim; the site header is ignored.
// Without a secret the site header is trusted. Requests without a site pass
// through and fail later where a site is required.
func Site(cfg SiteConfig) gin.HandlerFunc {
	header := cfg.Header
	if header == "" {
		header = DefaultSiteHeader
	}
	secret := []byte(cfg.JWTSecret)

	return func(c *gin.Context) {
		var siteID string

		if len(secret) > 0 {
			token := extractBearerToken(c)
			if token == "" {
				abortUnauthorized(c, apperrors.Unauthorized("TOKEN_REQUIRED", "Bearer token required", nil))
				return
			}
			claims, err := parseSiteToken(token, secret)
			if err != nil {
				abortUnauthorized(c, apperrors.Unauthorized("INVALID_TOKEN", "Invalid or expired token", err))
				return
			}
			siteID = claims.SiteID
		} else {
			siteID = strings.TrimSpace(c.GetHeader(header))
		}

		if siteID != "" {
			c.Set(SiteIDKey, siteID)
			c.Request = c.Request.WithContext(tenant.WithSiteID(c.Request.Context(), siteID))
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, err *apperrors.AppError) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}

func parseSiteToken(tokenStr string, secret []byte) (*SiteClaims, error) {
	claims := &SiteClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.SiteID == "" {
		return nil, errors.New("token has no site_id claim")
	}
	return claims, nil
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if strings.HasPrefix(authHeader, BearerPrefix) {
		return strings.TrimPrefix(authHeader, BearerPrefix)
	}
	return ""
}

// GetSiteID returns the site ID from context.
func GetSiteID(c *gin.Context) string {
	return c.GetString(SiteIDKey)
}
