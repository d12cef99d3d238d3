package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey is the request header carrying the operator API key.
const HeaderAPIKey = "X-API-Key"

// ──────────────────────────────────────────────────────────────────────────────
// APIKeyMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// APIKeyMiddleware guards mutating endpoints with a static operator key,
// accepted either in the X-API-Key header or as a Bearer token. An empty
// configured key disables the check (dev mode); production config validation
// refuses to boot that way.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		presented := c.GetHeader(HeaderAPIKey)
		if presented == "" {
			if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
				presented = strings.TrimPrefix(header, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing api key",
			})
			return
		}
		c.Next()
	}
}
