package companies

import (
	"workspace-backend/internal/application/companies"
	"workspace-backend/internal/application/membership"
	"workspace-backend/internal/domain"
	"workspace-backend/internal/middleware"
	"workspace-backend/internal/pkg/constants"
	"workspace-backend/internal/pkg/response"
	"workspace-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers holds dependencies for company and member endpoints.
type Handlers struct {
	Companies  *companies.Service
	Membership *membership.Service
}

// ChangeRoleRequest is the body of PATCH /members.
type ChangeRoleRequest struct {
	MemberID string `json:"memberId"`
	NewRole  string `json:"newRole"`
}

// LogoRequest is the body of POST /logo.
type LogoRequest struct {
	FileName string `json:"fileName"`
}

func companyParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := validation.ParseID(c.Params("companyId"))
	if !ok || id == uuid.Nil {
		return uuid.Nil, companies.ErrCompanyNotFound
	}
	return id, nil
}

func caller(c *fiber.Ctx) (domain.Identity, uuid.UUID, error) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return identity, uuid.Nil, domain.NewError(domain.KindUnauthorized, "Unauthorized")
	}
	companyID, err := companyParam(c)
	return identity, companyID, err
}

// Create POST /api/companies
func (h *Handlers) Create(c *fiber.Ctx) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var in companies.CreateCompanyInput
	if err := c.BodyParser(&in); err != nil {
		return response.FromError(c, companies.ErrHandleAndNameRequired)
	}
	company, err := h.Companies.CreateCompany(c.UserContext(), identity, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Company created successfully", fiber.Map{"company": company})
}

// Get GET /api/companies/:companyId
func (h *Handlers) Get(c *fiber.Ctx) error {
	identity, companyID, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	company, err := h.Companies.GetCompany(c.UserContext(), identity, companyID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.JSON(c, fiber.Map{"company": company})
}

// Update PATCH /api/companies/:companyId
func (h *Handlers) Update(c *fiber.Ctx) error {
	identity, companyID, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var in companies.UpdateCompanyInput
	if err := c.BodyParser(&in); err != nil {
		return response.FromError(c, companies.ErrInvalidBody)
	}
	company, err := h.Companies.UpdateCompany(c.UserContext(), identity, companyID, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Company updated successfully", fiber.Map{"company": company})
}

// Logo POST /api/companies/:companyId/logo
func (h *Handlers) Logo(c *fiber.Ctx) error {
	identity, companyID, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req LogoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, companies.ErrFileNameRequired)
	}
	res, err := h.Companies.RequestLogoUpload(c.UserContext(), identity, companyID, req.FileName)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.JSON(c, fiber.Map{
		"uploadUrl": res.UploadURL,
		"publicUrl": res.PublicURL,
		"path":      res.Path,
	})
}

// Members GET /api/companies/:companyId/members
func (h *Handlers) Members(c *fiber.Ctx) error {
	identity, companyID, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	members, err := h.Companies.ListMembers(c.UserContext(), identity, companyID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.JSON(c, fiber.Map{"members": members})
}

// ChangeRole PATCH /api/companies/:companyId/members
func (h *Handlers) ChangeRole(c *fiber.Ctx) error {
	identity, companyID, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req ChangeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, membership.ErrMissingFields)
	}
	memberID, ok := validation.ParseID(req.MemberID)
	if !ok {
		return response.BadRequest(c, "Invalid member ID", nil)
	}
	if err := h.Membership.ChangeRole(c.UserContext(), identity, companyID, memberID, constants.Role(req.NewRole)); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Member role updated successfully", nil)
}

// RemoveMember DELETE /api/companies/:companyId/members?memberId=
func (h *Handlers) RemoveMember(c *fiber.Ctx) error {
	identity, companyID, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	memberID, ok := validation.ParseID(c.Query("memberId"))
	if !ok {
		return response.BadRequest(c, "Invalid member ID", nil)
	}
	self, err := h.Membership.RemoveMember(c.UserContext(), identity, companyID, memberID)
	if err != nil {
		return response.FromError(c, err)
	}
	message := "Member removed from company successfully"
	if self {
		message = "You have left the company"
	}
	return response.Success(c, message, fiber.Map{"isSelfRemoval": self})
}
