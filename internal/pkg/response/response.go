package response

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"workspace-backend/internal/domain"
)

// ErrorBody is the standardized error JSON shape.
type ErrorBody struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

const genericServerError = "Internal server error"

// Success sends a 200 OK response: {"success": true, "message": ..., <fields>}.
// An empty message is omitted.
func Success(c *fiber.Ctx, message string, fields fiber.Map) error {
	return c.Status(fiber.StatusOK).JSON(successBody(message, fields))
}

// SuccessCreated sends a 201 Created response with the same shape as Success.
func SuccessCreated(c *fiber.Ctx, message string, fields fiber.Map) error {
	return c.Status(fiber.StatusCreated).JSON(successBody(message, fields))
}

// JSON sends a 200 OK response with body as-is (read endpoints).
func JSON(c *fiber.Ctx, body fiber.Map) error {
	return c.Status(fiber.StatusOK).JSON(body)
}

func successBody(message string, fields fiber.Map) fiber.Map {
	body := fiber.Map{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range fields {
		body[k] = v
	}
	return body
}

// Error sends a response with the standard error format.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	return c.Status(statusCode).JSON(ErrorBody{Error: message, Details: details})
}

// Unauthorized sends 401 with the same shape as other errors.
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, message, fiber.StatusUnauthorized, nil)
}

// BadRequest sends 400 for malformed input.
func BadRequest(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, message, fiber.StatusBadRequest, details)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidState, domain.KindLimitExceeded:
		return fiber.StatusBadRequest
	case domain.KindUnauthorized:
		return fiber.StatusUnauthorized
	case domain.KindForbidden:
		return fiber.StatusForbidden
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// FromError translates a service error. Classified errors keep their message;
// anything else is logged and answered with a generic 500.
func FromError(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		log.Error().
			Err(err).
			Str("trace_id", traceID(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request failed")
		return Error(c, genericServerError, fiber.StatusInternalServerError, nil)
	}
	return Error(c, err.Error(), StatusFor(kind), nil)
}

func traceID(c *fiber.Ctx) string {
	if v, ok := c.Locals("trace_id").(string); ok {
		return v
	}
	return ""
}
