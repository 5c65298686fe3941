package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxKeyAdmin = "auth.admin"

// TokenVerifier is satisfied by *auth.Tokens.
type TokenVerifier interface {
	Verify(token string) error
}

// AdminAuth requires "Authorization: Bearer <token>" accepted by v and marks
// the request as an admin call. Everything else gets 401.
func AdminAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || v.Verify(token) != nil {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.GetString(requestIDKey),
				"code":       "unauthorized",
				"message":    "admin token required",
			})
			return
		}
		c.Set(ctxKeyAdmin, true)
		c.Next()
	}
}

// IsAdmin reports whether AdminAuth accepted the request.
func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyAdmin)
	b, _ := v.(bool)
	return b
}
