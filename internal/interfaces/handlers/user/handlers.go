package user

import (
	"workspace-backend/internal/application/profiles"
	"workspace-backend/internal/middleware"
	"workspace-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Handlers holds the profile service for the /api/user endpoints.
type Handlers struct {
	Profiles *profiles.Service
}

// CompanyStatus GET /api/user/company-status
func (h *Handlers) CompanyStatus(c *fiber.Ctx) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	status, err := h.Profiles.CompanyStatus(c.UserContext(), identity)
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(status)
}

// UpdateProfile PATCH /api/user/profile
func (h *Handlers) UpdateProfile(c *fiber.Ctx) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var in profiles.UpdateProfileInput
	if err := c.BodyParser(&in); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}
	if _, err := h.Profiles.EnsureProfile(c.UserContext(), identity); err != nil {
		return response.FromError(c, err)
	}
	p, err := h.Profiles.UpdateProfile(c.UserContext(), identity.UserID, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", fiber.Map{"profile": p})
}
