package middleware

import (
	"errors"

	"workspace-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorHandler is the global error handler. Returns the standard error format.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Message, fe.Code, nil)
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	return response.Error(c, "Internal server error", fiber.StatusInternalServerError, nil)
}
