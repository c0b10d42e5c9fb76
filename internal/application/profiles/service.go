package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"workspace-backend/internal/domain"
	"workspace-backend/internal/pkg/validation"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrProfileNotFound = domain.NewError(domain.KindNotFound, "Profile not found")
	ErrInvalidTags     = domain.NewError(domain.KindValidation, "Tags must be a JSON object or array")
	ErrEmptyUsername   = domain.NewError(domain.KindValidation, "Username cannot be empty")
)

// Service owns the per-user profile row.
type Service struct {
	DB *gorm.DB
}

// EnsureProfile returns the profile for identity, creating it on first sight.
// A changed provider email is synced onto the row.
func (s *Service) EnsureProfile(ctx context.Context, identity domain.Identity) (*domain.Profile, error) {
	email := validation.NormalizeEmail(identity.Email)
	p := domain.Profile{UserID: identity.UserID, Email: email}
	if err := s.DB.WithContext(ctx).
		Where(domain.Profile{UserID: identity.UserID}).
		FirstOrCreate(&p).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "ensure profile")
	}
	if email != "" && p.Email != email {
		if err := s.DB.WithContext(ctx).Model(&p).Update("email", email).Error; err != nil {
			return nil, pkgerrors.Wrap(err, "sync profile email")
		}
	}
	return &p, nil
}

// GetByUserID loads the profile of an identity-provider user.
func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	return LoadByUserID(s.DB.WithContext(ctx), userID)
}

// LoadByUserID is GetByUserID for callers already holding a scoped *gorm.DB.
func LoadByUserID(db *gorm.DB, userID uuid.UUID) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, pkgerrors.Wrap(err, "load profile")
	}
	return &p, nil
}

// UpdateProfileInput holds the self-service fields. Nil fields are left as is.
type UpdateProfileInput struct {
	Username *string         `json:"username"`
	Avatar   *string         `json:"avatar"`
	Tags     json.RawMessage `json:"tags"`
}

// UpdateProfile applies in to the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (*domain.Profile, error) {
	updates := map[string]interface{}{}
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if name == "" {
			return nil, ErrEmptyUsername
		}
		updates["username"] = name
	}
	if in.Avatar != nil {
		updates["avatar"] = strings.TrimSpace(*in.Avatar)
	}
	if len(in.Tags) > 0 {
		trimmed := strings.TrimSpace(string(in.Tags))
		if !json.Valid(in.Tags) || (!strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[")) {
			return nil, ErrInvalidTags
		}
		updates["tags"] = datatypes.JSON(in.Tags)
	}

	p, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return p, nil
	}
	if err := s.DB.WithContext(ctx).Model(p).Updates(updates).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "update profile")
	}
	return s.GetByUserID(ctx, userID)
}

// CompanyStatus is the onboarding view of a user.
type CompanyStatus struct {
	HasCompany  bool                    `json:"hasCompany"`
	Profile     *domain.Profile         `json:"profile"`
	Invitations []domain.InvitationView `json:"invitations"`
}

// CompanyStatus reports whether identity belongs to a company. When it does
// not, the pending invitations addressed to it are included.
func (s *Service) CompanyStatus(ctx context.Context, identity domain.Identity) (*CompanyStatus, error) {
	p, err := s.EnsureProfile(ctx, identity)
	if err != nil {
		return nil, err
	}
	status := &CompanyStatus{HasCompany: p.HasCompany(), Profile: p, Invitations: []domain.InvitationView{}}
	if p.HasCompany() {
		return status, nil
	}

	var invs []domain.Invitation
	if err := s.DB.WithContext(ctx).
		Preload("Company").
		Where("to_email = ? AND status = ?", p.Email, domain.InvitationPending).
		Order("created_at DESC").
		Find(&invs).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "list invitations")
	}
	for _, inv := range invs {
		status.Invitations = append(status.Invitations, inv.View())
	}
	return status, nil
}
