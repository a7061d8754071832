package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eventcrew/feegate/pkg/metrics"
	"github.com/eventcrew/feegate/pkg/ratelimit"
	"github.com/eventcrew/feegate/pkg/response"
)

// RateLimitKeyFn derives one limiter key from the request; an empty key is
// skipped.
type RateLimitKeyFn func(c *gin.Context) string

// ClientIPKey scopes the limit by caller IP.
func ClientIPKey(scope string) RateLimitKeyFn {
	return func(c *gin.Context) string {
		return ratelimit.Key(scope, "ip", c.ClientIP())
	}
}

// ParamKey scopes the limit by a path parameter, e.g. the attendance id.
func ParamKey(scope, param string) RateLimitKeyFn {
	return func(c *gin.Context) string {
		v := c.Param(param)
		if v == "" {
			return ""
		}
		return ratelimit.Key(scope, param, v)
	}
}

// RateLimitMiddleware throttles a route group with the given policy. Every
// derived key must pass. The limiter itself fails open on store trouble, so
// this middleware only ever rejects on a counted excess.
func RateLimitMiddleware(limiter *ratelimit.Limiter, p ratelimit.Policy, keyFns ...RateLimitKeyFn) gin.HandlerFunc {
	return func(c *gin.Context) {
		keys := make([]string, 0, len(keyFns))
		for _, fn := range keyFns {
			if key := fn(c); key != "" {
				keys = append(keys, key)
			}
		}

		res := limiter.CheckAll(c.Request.Context(), p, keys...)
		if !res.Allowed {
			metrics.RateLimitBlocked.WithLabelValues(p.Scope).Inc()
			c.Header("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				response.ErrorT[any](response.APIResponseCodeRateLimited, gin.H{
					"retry_after_seconds": res.RetryAfterSeconds,
				}))
			return
		}
		c.Next()
	}
}
