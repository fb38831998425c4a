package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/cache"
	"github.com/kasuganosora/fracturesim/config"
)

const (
	ActorIDKey     = "actor_id"
	AdminKeyHeader = "X-Admin-Key"
)

func revokedKey(jti string) string { return "jwt:revoked:" + jti }

// Revoke blocks a token until it would have expired anyway.
func Revoke(ctx context.Context, c cache.Cache, claims *Claims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return c.Set(ctx, revokedKey(claims.ID), "1", ttl)
}

func abort(ctx *gin.Context, status int, code, message string) {
	ctx.AbortWithStatusJSON(status, gin.H{"success": false, "error": code, "message": message})
}

// Auth validates the Bearer JWT and rejects revoked tokens.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abort(ctx, http.StatusUnauthorized, "UNAUTHORIZED", "missing token")
			return
		}
		claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), sec.JWTSecret)
		if err != nil {
			abort(ctx, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		revoked, err := c.Exists(cacheCtx, revokedKey(claims.ID))
		if err != nil {
			abort(ctx, http.StatusServiceUnavailable, "UNAVAILABLE", "session store unavailable")
			return
		}
		if revoked {
			abort(ctx, http.StatusUnauthorized, "UNAUTHORIZED", "token revoked")
			return
		}

		ctx.Set(ActorIDKey, claims.ActorID)
		ctx.Next()
	}
}

// GetActorID retrieves the authenticated actor ID from the Gin context.
func GetActorID(c *gin.Context) int64 {
	if v, exists := c.Get(ActorIDKey); exists {
		return v.(int64)
	}
	return 0
}

// AdminKey guards operator routes with a shared key. With no key configured
// the admin surface answers 503.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			abort(c, http.StatusServiceUnavailable, "ADMIN_DISABLED", "admin endpoints are disabled")
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(AdminKeyHeader)), []byte(key)) != 1 {
			abort(c, http.StatusForbidden, "FORBIDDEN", "admin key required")
			return
		}
		c.Next()
	}
}
