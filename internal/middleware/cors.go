package middleware

import (
	"regexp"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var (
	localOriginPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^https?://localhost:\d+$`),
		regexp.MustCompile(`^https?://127\.0\.0\.1:\d+$`),
		regexp.MustCompile(`^https?://192\.168\.\d+\.\d+:\d+$`),
		regexp.MustCompile(`^https?://10\.\d+\.\d+\.\d+:\d+$`),
	}

	defaultOrigins = []string{
		"https://rapidrideonline.web.app",
		"https://rapidrideonline.firebaseapp.com",
		"https://rapidride-app-production.up.railway.app",
	}
)

// OriginPolicy decides which browser origins may call the API.
type OriginPolicy struct {
	exact map[string]struct{}
}

// NewOriginPolicy allows local and private-network origins, the hosted
// frontends and any extra origins given.
func NewOriginPolicy(extra []string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]struct{}, len(defaultOrigins)+len(extra))}
	for _, o := range defaultOrigins {
		p.exact[o] = struct{}{}
	}
	for _, o := range extra {
		p.exact[o] = struct{}{}
	}
	return p
}

// Allowed reports whether origin may make credentialed requests.
func (p *OriginPolicy) Allowed(origin string) bool {
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, re := range localOriginPatterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// CORS applies the origin policy with credentials enabled.
func CORS(policy *OriginPolicy) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  policy.Allowed,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", idempotencyHeader, requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader, "RateLimit-Limit", "RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
