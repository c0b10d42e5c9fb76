package invitations

import (
	invsvc "workspace-backend/internal/application/invitations"
	"workspace-backend/internal/middleware"
	"workspace-backend/internal/pkg/constants"
	"workspace-backend/internal/pkg/response"
	"workspace-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// Handlers holds dependencies for invitation endpoints.
type Handlers struct {
	Service *invsvc.Service
}

// SendRequest is the body of POST /api/invitations. Reinvite revives an
// earlier rejected or archived invitation instead of creating one.
type SendRequest struct {
	ToEmail      string  `json:"toEmail"`
	CompanyID    string  `json:"companyId"`
	Role         string  `json:"role"`
	Message      *string `json:"message"`
	Reinvite     bool    `json:"reinvite"`
	InvitationID string  `json:"invitationId"`
}

// RespondRequest is the body of PATCH /api/invitations/:id.
type RespondRequest struct {
	Status string `json:"status"`
}

// Send POST /api/invitations
func (h *Handlers) Send(c *fiber.Ctx) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req SendRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, invsvc.ErrMissingFields.Error(), nil)
	}
	companyID, ok := validation.ParseID(req.CompanyID)
	if !ok {
		return response.BadRequest(c, "Invalid company ID", nil)
	}

	if req.Reinvite {
		in := invsvc.ReinviteInput{
			ToEmail:   req.ToEmail,
			CompanyID: companyID,
			Role:      constants.Role(req.Role),
			Message:   req.Message,
		}
		if req.InvitationID != "" {
			id, ok := validation.ParseID(req.InvitationID)
			if !ok {
				return response.BadRequest(c, "Invalid invitation ID", nil)
			}
			in.InvitationID = &id
		}
		inv, err := h.Service.Reinvite(c.UserContext(), identity, in)
		if err != nil {
			return response.FromError(c, err)
		}
		return response.Success(c, "Invitation sent again", fiber.Map{"invitation": inv})
	}

	inv, err := h.Service.Create(c.UserContext(), identity, invsvc.CreateInput{
		ToEmail:   req.ToEmail,
		CompanyID: companyID,
		Role:      constants.Role(req.Role),
		Message:   req.Message,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Invitation sent successfully", fiber.Map{"invitation": inv})
}

// List GET /api/invitations?include_all=true
func (h *Handlers) List(c *fiber.Ctx) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	views, err := h.Service.List(c.UserContext(), identity, c.Query("include_all") == "true")
	if err != nil {
		return response.FromError(c, err)
	}
	return response.JSON(c, fiber.Map{"invitations": views})
}

// Respond PATCH /api/invitations/:id
func (h *Handlers) Respond(c *fiber.Ctx) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.FromError(c, invsvc.ErrRespondNotFound)
	}
	var req RespondRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, invsvc.ErrInvalidDecision)
	}
	result, err := h.Service.Respond(c.UserContext(), identity, id, invsvc.Decision(req.Status))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, result.Message(), nil)
}

// Cancel DELETE /api/invitations/:id
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.FromError(c, invsvc.ErrInvitationNotFound)
	}
	if err := h.Service.Cancel(c.UserContext(), identity, id); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Invitation canceled successfully", nil)
}
