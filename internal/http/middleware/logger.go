package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"txrepo/internal/logger"
)

// Logger logs every request through base and injects a request-scoped logger
// (request_id, method, path) into the user context, so services can call
// logger.From(ctx). Mount it after RequestID.
func Logger(base *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqLog := base.With(
			logger.RequestID(GetRequestID(c)),
			logger.Method(c.Method()),
			logger.Path(c.Path()),
		)
		c.SetUserContext(logger.ToContext(c.UserContext(), reqLog))

		err := c.Next()

		// The global error handler runs after this middleware returns, so the
		// status of an unhandled error is taken from the error itself.
		status := c.Response().StatusCode()
		if err != nil {
			status = statusFromError(err)
		}

		fields := []zap.Field{
			logger.Status(status),
			logger.DurationMs(time.Since(start)),
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			reqLog.Error("request failed", fields...)
		case status >= fiber.StatusBadRequest:
			reqLog.Warn("request completed with client error", fields...)
		default:
			reqLog.Info("request completed", fields...)
		}
		return err
	}
}

func statusFromError(err error) int {
	if fe, ok := err.(*fiber.Error); ok {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
