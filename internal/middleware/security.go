package middleware

import "github.com/gin-gonic/gin"

// SecurityHeaders sets conservative response headers. Geolocation stays
// available to same-origin pages.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("Permissions-Policy", "geolocation=(self)")
		c.Next()
	}
}
