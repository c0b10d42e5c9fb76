package middleware

import (
	"strconv"
	"strings"

	"workspace-backend/internal/application/ratelimit"
	"workspace-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// RateLimit counts every request per client IP against limiter. Health
// probes are exempt.
func RateLimit(limiter ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/health") {
			return c.Next()
		}
		d := limiter.Hit(c.UserContext(), c.IP())
		c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			return TooManyRequests(c, d, "Too Many Requests")
		}
		return c.Next()
	}
}

// TooManyRequests writes a 429 with Retry-After in whole seconds.
func TooManyRequests(c *fiber.Ctx, d ratelimit.Decision, message string) error {
	secs := int(d.RetryAfter.Seconds())
	if secs < 1 {
		secs = 60
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
	return response.Error(c, message, fiber.StatusTooManyRequests, nil)
}
