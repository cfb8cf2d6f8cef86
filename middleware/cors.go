package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"gradreach/config"
)

// CORS lets the configured frontend origins call the API with credentials
// and answers preflight requests directly.
func CORS() fiber.Handler {
	allowed := make(map[string]struct{})
	for _, origin := range config.AppConfig.CORSOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	const (
		allowMethods = "GET,POST,PUT,DELETE,PATCH,OPTIONS"
		allowHeaders = "Origin,Content-Type,Accept,Authorization,X-Requested-With"
	)

	return func(c *fiber.Ctx) error {
		if origin := c.Get("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				c.Set("Access-Control-Allow-Origin", origin)
				c.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Method() == fiber.MethodOptions {
			c.Set("Access-Control-Allow-Methods", allowMethods)
			c.Set("Access-Control-Allow-Headers", allowHeaders)
			c.Set("Access-Control-Max-Age", "3600")
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
