package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tillpoint/controlplane/internal/metrics"
	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/permissions"
	"github.com/tillpoint/controlplane/internal/services"
)

// Context keys set by AuthMiddleware.
const (
	AccountIDKey = "accountID"
	RoleKey      = "role"
	SessionIDKey = "sessionID"
	EmailKey     = "email"
)

// AuthCookieName is the cookie the console sets on login.
const AuthCookieName = "auth_token"

// TokenValidator resolves a bearer token to its claims.
type TokenValidator interface {
	ValidateToken(token string) (*services.Claims, error)
}

// AuthMiddleware admits requests carrying a valid session token, either as
// "Authorization: Bearer <token>" or in the auth_token cookie.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Set(RoleKey, claims.Role)
		c.Set(SessionIDKey, claims.ID)
		c.Set(EmailKey, claims.Email)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
		return ""
	}
	if cookie, err := c.Cookie(AuthCookieName); err == nil {
		return cookie
	}
	return ""
}

// RoleFromContext returns the caller's role. A missing role resolves to the
// least privileged one.
func RoleFromContext(c *gin.Context) models.Role {
	if v, ok := c.Get(RoleKey); ok {
		if r, ok := v.(models.Role); ok {
			return r
		}
	}
	return models.RoleSupport
}

// RequirePermission is the admission gate. It runs before the handler so a
// denied request has no side effects, including no audit entry.
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := RoleFromContext(c)
		if !permissions.HasPermission(role, perm) {
			metrics.IncAuthorizationDenied(perm)
			GetRequestLogger(c).WithFields(logrus.Fields{
				"role":       role,
				"permission": perm,
				"path":       SanitizePath(c.Request.URL.Path),
			}).Warn("permission denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": services.ErrAuthorizationDenied.Error() + ": missing permission " + perm,
			})
			return
		}
		c.Next()
	}
}
