package policies

import (
	"workspace-backend/internal/domain"
	"workspace-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CountAdmins returns the number of Admin profiles bound to companyID.
func CountAdmins(db *gorm.DB, companyID uuid.UUID) (int64, error) {
	var count int64
	err := db.Model(&domain.Profile{}).
		Where("company_id = ? AND role = ?", companyID, constants.Admin).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count admins")
	}
	return count, nil
}

// ValidateRoleChange checks that actor may move target to newRole without
// leaving companyID without an Admin.
func ValidateRoleChange(db *gorm.DB, actor *domain.Profile, companyID uuid.UUID, target *domain.Profile, newRole constants.Role) error {
	if actor == nil || !actor.InCompany(companyID) || actor.RoleOrEmpty() != constants.Admin {
		return ErrOnlyAdminsCanChangeRoles
	}
	if target == nil || !target.InCompany(companyID) {
		return ErrMemberNotFound
	}
	if target.RoleOrEmpty() == constants.Admin && newRole != constants.Admin {
		count, err := CountAdmins(db, companyID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastAdminRoleChange
		}
	}
	return nil
}

// ValidateMemberRemoval checks that actor may remove target from companyID.
// Anyone may remove themselves; only an Admin of the company may remove others.
func ValidateMemberRemoval(db *gorm.DB, actor *domain.Profile, companyID uuid.UUID, target *domain.Profile) error {
	if target == nil || !target.InCompany(companyID) {
		return ErrMemberNotFound
	}
	self := actor != nil && target.UserID == actor.UserID
	if !self && (actor == nil || !actor.InCompany(companyID) || actor.RoleOrEmpty() != constants.Admin) {
		return ErrCannotRemoveOtherMembers
	}
	if target.RoleOrEmpty() == constants.Admin {
		count, err := CountAdmins(db, companyID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastAdminRemoval
		}
	}
	return nil
}
