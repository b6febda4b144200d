package server

import (
	"errors"
	"time"

	"github.com/esimov/vigil/internal/log"
	"github.com/gofiber/fiber/v2"
)

// requestLogger logs every request with its status and latency.
func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			// Run the error handler now, so the logged status is the one sent.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		status := c.Response().StatusCode()
		fields := log.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.IP(),
		}

		switch {
		case status >= 500:
			log.Error(fields, "Server error")
		case status >= 400:
			log.Warn(fields, "Client error")
		default:
			log.Debug(fields, "Success")
		}
		return nil
	}
}

// errorHandler answers every error with a JSON body.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, ErrSessionNotFound):
		code = fiber.StatusNotFound
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
