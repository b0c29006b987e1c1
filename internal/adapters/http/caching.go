package http

import "github.com/gofiber/fiber/v2"

// CachingMiddleware sets Cache-Control headers on GET responses.
// Departure boards are real-time data, so even the longest TTL here is
// seconds, not minutes.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		var ttl string
		switch c.Path() {
		case "/v1/health", "/v1/ready":
			ttl = "public, max-age=10"
		case "/departures":
			ttl = "public, max-age=10" // matches the board cache TTL
		case "/metrics":
			ttl = "no-cache"
		case "/":
			ttl = "no-cache" // ping reports the current time
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
