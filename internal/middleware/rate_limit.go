package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit creates a per-caller limiter for a named surface. Authenticated
// callers are keyed by user id so one user cannot starve the upload budget of
// everyone behind the same NAT; anonymous callers fall back to the client IP.
func RateLimit(surface string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := CurrentUserID(c); ok {
				return fmt.Sprintf("%s:user:%d", surface, userID)
			}
			return fmt.Sprintf("%s:ip:%s", surface, c.IP())
		},
	})
}
