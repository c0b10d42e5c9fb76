package companies

import (
	"context"
	"errors"
	"strings"

	"workspace-backend/internal/application/profiles"
	"workspace-backend/internal/application/saga"
	"workspace-backend/internal/application/uploads"
	"workspace-backend/internal/domain"
	"workspace-backend/internal/pkg/constants"
	"workspace-backend/internal/pkg/validation"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrHandleAndNameRequired = domain.NewError(domain.KindValidation, "Company handle and name are required")
	ErrInvalidHandle         = domain.NewError(domain.KindValidation, "Company handle can only contain lowercase letters, numbers, dashes and underscores")
	ErrHandleTaken           = domain.NewError(domain.KindConflict, "Company handle is already taken")
	ErrAlreadyInCompany      = domain.NewError(domain.KindConflict, "You already belong to a company. You must leave your current company before creating a new one.")
	ErrCompanyNotFound       = domain.NewError(domain.KindNotFound, "Company not found")
	ErrCannotViewCompany     = domain.NewError(domain.KindForbidden, "You do not have permission to view this company")
	ErrCannotViewMembers     = domain.NewError(domain.KindForbidden, "You do not have permission to view members of this company")
	ErrOnlyAdminsCanUpdate   = domain.NewError(domain.KindForbidden, "Only administrators can update the company")
	ErrNoValidFields         = domain.NewError(domain.KindValidation, "No valid fields to update")
	ErrEmptyName             = domain.NewError(domain.KindValidation, "Company name cannot be empty")
	ErrInvalidBody           = domain.NewError(domain.KindValidation, "Invalid request body")
	ErrFileNameRequired      = domain.NewError(domain.KindValidation, "fileName is required")
)

// Service is the company registry.
type Service struct {
	DB         *gorm.DB
	Profiles   *profiles.Service
	Uploads    *uploads.Service
	LogoBucket string
}

// CreateCompanyInput is the body of POST /companies.
type CreateCompanyInput struct {
	Handle      string  `json:"handle"`
	Name        string  `json:"name"`
	Logo        *string `json:"logo"`
	Description *string `json:"description"`
	Industry    *string `json:"industry"`
	Size        *string `json:"size"`
}

// Validate normalizes the handle and checks required fields.
func (in *CreateCompanyInput) Validate() error {
	in.Handle = strings.ToLower(strings.TrimSpace(in.Handle))
	in.Name = strings.TrimSpace(in.Name)
	if in.Handle == "" || in.Name == "" {
		return ErrHandleAndNameRequired
	}
	if !validation.IsValidHandle(in.Handle) {
		return ErrInvalidHandle
	}
	return nil
}

// CreateCompany inserts a company and binds actor as its Admin. The handle
// pre-check only improves the error; the unique index decides.
func (s *Service) CreateCompany(ctx context.Context, actor domain.Identity, in CreateCompanyInput) (*domain.Company, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)

	profile, err := s.Profiles.EnsureProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	if profile.HasCompany() {
		return nil, ErrAlreadyInCompany
	}

	var taken int64
	if err := db.Model(&domain.Company{}).Where("handle = ?", in.Handle).Count(&taken).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "check handle")
	}
	if taken > 0 {
		return nil, ErrHandleTaken
	}

	company := &domain.Company{
		ID:          uuid.New(),
		Handle:      in.Handle,
		Name:        in.Name,
		Logo:        in.Logo,
		Description: in.Description,
		Industry:    in.Industry,
		Size:        in.Size,
	}

	err = saga.Run(ctx,
		saga.Step{
			Name: "insert company",
			Do: func(ctx context.Context) error {
				if err := db.Create(company).Error; err != nil {
					if errors.Is(err, gorm.ErrDuplicatedKey) {
						return ErrHandleTaken
					}
					return pkgerrors.Wrap(err, "insert company")
				}
				return nil
			},
			Undo: func(ctx context.Context) error {
				return db.Delete(&domain.Company{}, "id = ?", company.ID).Error
			},
		},
		saga.Step{
			Name: "bind admin",
			Do: func(ctx context.Context) error {
				res := db.Model(&domain.Profile{}).
					Where("id = ? AND company_id IS NULL", profile.ID).
					Updates(map[string]interface{}{"company_id": company.ID, "role": constants.Admin})
				if res.Error != nil {
					return pkgerrors.Wrap(res.Error, "bind admin")
				}
				if res.RowsAffected == 0 {
					return ErrAlreadyInCompany
				}
				return nil
			},
		},
	)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("company_id", company.ID.String()).
		Str("handle", company.Handle).
		Str("user_id", actor.UserID.String()).
		Msg("company created")
	return company, nil
}

func (s *Service) load(db *gorm.DB, companyID uuid.UUID) (*domain.Company, error) {
	var c domain.Company
	if err := db.Where("id = ?", companyID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, pkgerrors.Wrap(err, "load company")
	}
	return &c, nil
}

// GetCompany returns the company details to one of its members.
func (s *Service) GetCompany(ctx context.Context, actor domain.Identity, companyID uuid.UUID) (*domain.Company, error) {
	p, err := s.Profiles.GetByUserID(ctx, actor.UserID)
	if err != nil && !errors.Is(err, profiles.ErrProfileNotFound) {
		return nil, err
	}
	if p == nil || !p.InCompany(companyID) {
		return nil, ErrCannotViewCompany
	}
	return s.load(s.DB.WithContext(ctx), companyID)
}

// UpdateCompanyInput is a partial company update. Nil fields are left as is.
type UpdateCompanyInput struct {
	Name        *string `json:"name"`
	Logo        *string `json:"logo"`
	Description *string `json:"description"`
	Industry    *string `json:"industry"`
	Size        *string `json:"size"`
}

// Validate trims the name and rejects empty updates.
func (in *UpdateCompanyInput) Validate() error {
	if in.Name == nil && in.Logo == nil && in.Description == nil && in.Industry == nil && in.Size == nil {
		return ErrNoValidFields
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return ErrEmptyName
		}
		in.Name = &name
	}
	return nil
}

func (in UpdateCompanyInput) columns() map[string]interface{} {
	cols := make(map[string]interface{})
	for col, v := range map[string]*string{
		"name":        in.Name,
		"logo":        in.Logo,
		"description": in.Description,
		"industry":    in.Industry,
		"size":        in.Size,
	} {
		if v != nil {
			cols[col] = *v
		}
	}
	return cols
}

// UpdateCompany applies the set fields. Admins only.
func (s *Service) UpdateCompany(ctx context.Context, actor domain.Identity, companyID uuid.UUID, in UpdateCompanyInput) (*domain.Company, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, actor, companyID); err != nil {
		return nil, err
	}

	db := s.DB.WithContext(ctx)
	res := db.Model(&domain.Company{}).Where("id = ?", companyID).Updates(in.columns())
	if res.Error != nil {
		return nil, pkgerrors.Wrap(res.Error, "update company")
	}
	if res.RowsAffected == 0 {
		return nil, ErrCompanyNotFound
	}
	return s.load(db, companyID)
}

// RequestLogoUpload issues a signed storage URL for the company logo. Admins only.
func (s *Service) RequestLogoUpload(ctx context.Context, actor domain.Identity, companyID uuid.UUID, fileName string) (*uploads.UploadResult, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, ErrFileNameRequired
	}
	if err := s.requireAdmin(ctx, actor, companyID); err != nil {
		return nil, err
	}
	res, err := s.Uploads.GetSignedUploadURL(ctx, s.LogoBucket, companyID.String(), fileName)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "sign logo upload")
	}
	return res, nil
}

// ListMembers returns the members of companyID to one of its members.
func (s *Service) ListMembers(ctx context.Context, actor domain.Identity, companyID uuid.UUID) ([]domain.Member, error) {
	p, err := s.Profiles.GetByUserID(ctx, actor.UserID)
	if err != nil && !errors.Is(err, profiles.ErrProfileNotFound) {
		return nil, err
	}
	if p == nil || !p.InCompany(companyID) {
		return nil, ErrCannotViewMembers
	}

	var rows []domain.Profile
	if err := s.DB.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "list members")
	}
	members := make([]domain.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, domain.Member{
			ID:       r.ID,
			UserID:   r.UserID,
			Username: r.Username,
			Email:    r.Email,
			Avatar:   r.Avatar,
			Role:     r.Role,
			Tags:     r.Tags,
		})
	}
	return members, nil
}

func (s *Service) requireAdmin(ctx context.Context, actor domain.Identity, companyID uuid.UUID) error {
	p, err := s.Profiles.GetByUserID(ctx, actor.UserID)
	if err != nil && !errors.Is(err, profiles.ErrProfileNotFound) {
		return err
	}
	if p == nil || !p.InCompany(companyID) || p.RoleOrEmpty() != constants.Admin {
		return ErrOnlyAdminsCanUpdate
	}
	return nil
}
