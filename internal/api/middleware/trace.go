package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/pkg/logger"
)

// Trace tags the request context with a trace id, reusing X-Request-ID when the caller sent one.
func Trace() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if id := c.Get(fiber.HeaderXRequestID); id != "" {
			ctx = logger.WithTraceID(ctx, id)
		} else {
			ctx = logger.NewTraceID(ctx, "http")
		}
		c.SetUserContext(ctx)
		c.Set(fiber.HeaderXRequestID, logger.TraceID(ctx))
		return c.Next()
	}
}
