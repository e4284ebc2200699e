// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the admin token guard protecting operator-only
// endpoints (fallback sweeps, exports, queue listings). Authentication is a
// single shared secret presented in the X-Admin-Token header; the comparison
// is constant-time so the token cannot be probed byte by byte.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAdminToken is the header carrying the operator secret.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken returns a Gin middleware that rejects requests whose
// X-Admin-Token header does not match token.
//
// When token is empty the guard rejects everything: admin endpoints stay
// closed until the operator configures a secret.
func RequireAdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(HeaderAdminToken)
		if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "missing or invalid admin token",
			})
			return
		}
		c.Next()
	}
}
