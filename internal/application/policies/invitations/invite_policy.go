package policies

import (
	"errors"

	"workspace-backend/internal/domain"
	"workspace-backend/internal/pkg/constants"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrCompanyMismatch         = domain.NewError(domain.KindUnauthorized, "You can only send invitations for your own company")
	ErrRoleNotAssignable       = domain.NewError(domain.KindForbidden, "You can only invite users with a lower role than yours")
	ErrPendingInvitationExists = domain.NewError(domain.KindConflict, "An invitation has already been sent to this email")
	ErrRecipientHasCompany     = domain.NewError(domain.KindConflict, "This user already belongs to a company")
	ErrUseReinvite             = domain.NewError(domain.KindConflict, "An invitation was already sent to this email. Use reinvite to send it again")
	ErrNotReinvitable          = domain.NewError(domain.KindInvalidState, "Only rejected or archived invitations can be sent again")
	ErrReinviteLimit           = domain.NewError(domain.KindLimitExceeded, "This invitation has reached the maximum number of attempts")
)

// ValidateInviteSender checks that actor may invite into companyID with role.
func ValidateInviteSender(actor *domain.Profile, companyID uuid.UUID, role constants.Role) error {
	if !actor.InCompany(companyID) {
		return ErrCompanyMismatch
	}
	if !constants.CanAssign(actor.RoleOrEmpty(), role) {
		return ErrRoleNotAssignable
	}
	return nil
}

// ValidateInviteCreation checks a brand new invitation for (toEmail, companyID).
// toEmail must already be normalized.
func ValidateInviteCreation(db *gorm.DB, actor *domain.Profile, toEmail string, companyID uuid.UUID, role constants.Role) error {
	if err := ValidateInviteSender(actor, companyID, role); err != nil {
		return err
	}

	var pending int64
	if err := db.Model(&domain.Invitation{}).
		Where("to_email = ? AND company_id = ? AND status = ?", toEmail, companyID, domain.InvitationPending).
		Count(&pending).Error; err != nil {
		return pkgerrors.Wrap(err, "check pending invitation")
	}
	if pending > 0 {
		return ErrPendingInvitationExists
	}

	var recipient domain.Profile
	err := db.Where("email = ?", toEmail).First(&recipient).Error
	switch {
	case err == nil:
		if recipient.HasCompany() {
			return ErrRecipientHasCompany
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(err, "load recipient profile")
	}

	var previous int64
	if err := db.Model(&domain.Invitation{}).
		Where("to_email = ? AND company_id = ? AND status IN ?", toEmail, companyID,
			[]domain.InvitationStatus{domain.InvitationRejected, domain.InvitationArchived}).
		Count(&previous).Error; err != nil {
		return pkgerrors.Wrap(err, "check previous invitation")
	}
	if previous > 0 {
		return ErrUseReinvite
	}
	return nil
}

// ValidateReinvite checks that inv may be revived to pending by actor with role.
func ValidateReinvite(actor *domain.Profile, inv *domain.Invitation, role constants.Role) error {
	if err := ValidateInviteSender(actor, inv.CompanyID, role); err != nil {
		return err
	}
	if !domain.CanTransition(inv.Status, domain.InvitationPending) {
		return ErrNotReinvitable
	}
	if inv.AttemptCount >= domain.MaxInviteAttempts {
		return ErrReinviteLimit
	}
	return nil
}

// CanCancel reports whether actor may cancel inv: the recipient always may;
// within the company an Admin always may, and any role above Member may cancel
// invitations aimed at Member or Guest.
func CanCancel(actor *domain.Profile, inv *domain.Invitation) bool {
	if actor.Email == inv.ToEmail {
		return true
	}
	if !actor.InCompany(inv.CompanyID) {
		return false
	}
	role := actor.RoleOrEmpty()
	if role == constants.Admin {
		return true
	}
	return role.Rank() > 0 && !role.IsJunior() && inv.Role.IsJunior()
}
