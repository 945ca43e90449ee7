package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-library-backend/internal/auth"
	"github.com/tbourn/go-library-backend/internal/domain"
)

// Gin context keys set by Authenticate.
const (
	ctxKeyUserID = "userID"
	ctxKeyRole   = "role"
)

// TokenParser validates a bearer token and returns its claims.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// Authenticate reads "Authorization: Bearer <token>". A valid token sets the
// "userID" and "role" Gin keys; a missing header leaves the request anonymous.
// A present but invalid token is rejected with 401 so clients notice expiry.
func Authenticate(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if h == "" {
			c.Next()
			return
		}
		scheme, raw, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "Invalid authorization header")
			return
		}
		claims, err := tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}
		c.Set(ctxKeyUserID, claims.Subject)
		c.Set(ctxKeyRole, claims.Role)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch {
		case UserID(c) == "":
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
		case !IsAdmin(c):
			abortAuth(c, http.StatusForbidden, "forbidden", "Admin access required")
		default:
			c.Next()
		}
	}
}

// UserID returns the authenticated user id, or "".
func UserID(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUserID)
	return asString(v)
}

// Role returns the authenticated role, or "".
func Role(c *gin.Context) string {
	v, _ := c.Get(ctxKeyRole)
	return asString(v)
}

// IsAdmin reports whether the caller holds the admin role.
func IsAdmin(c *gin.Context) bool { return Role(c) == domain.RoleAdmin }

func abortAuth(c *gin.Context, status int, code, msg string) {
	if status == http.StatusForbidden {
		reject(c, rejectForbidden)
	} else {
		reject(c, rejectUnauthorized)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}
