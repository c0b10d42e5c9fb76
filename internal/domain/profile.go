package domain

import (
	"time"

	"workspace-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Profile is the per-user membership record. CompanyID and Role are either both
// set or both nil.
type Profile struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	Username  *string         `gorm:"column:username" json:"username"`
	Email     string          `gorm:"column:email;not null;index" json:"email"`
	Avatar    *string         `gorm:"column:avatar" json:"avatar"`
	CompanyID *uuid.UUID      `gorm:"column:company_id;type:uuid;index" json:"company_id"`
	Role      *constants.Role `gorm:"column:role" json:"role"`
	Tags      datatypes.JSON  `gorm:"column:tags" json:"tags"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// HasCompany reports whether the profile is bound to a company.
func (p *Profile) HasCompany() bool {
	return p.CompanyID != nil
}

// InCompany reports whether the profile belongs to companyID.
func (p *Profile) InCompany(companyID uuid.UUID) bool {
	return p.CompanyID != nil && *p.CompanyID == companyID
}

// RoleOrEmpty returns the profile role, or "" when unbound.
func (p *Profile) RoleOrEmpty() constants.Role {
	if p.Role == nil {
		return ""
	}
	return *p.Role
}

// Member is the listing shape of a company member.
type Member struct {
	ID       uuid.UUID       `json:"id"`
	UserID   uuid.UUID       `json:"user_id"`
	Username *string         `json:"username"`
	Email    string          `json:"email"`
	Avatar   *string         `json:"avatar"`
	Role     *constants.Role `json:"role"`
	Tags     datatypes.JSON  `json:"tags"`
}
