package policies

import "workspace-backend/internal/domain"

var (
	ErrOnlyAdminsCanChangeRoles = domain.NewError(domain.KindForbidden, "Only administrators can change member roles")
	ErrMemberNotFound           = domain.NewError(domain.KindNotFound, "Member not found in this company")
	ErrLastAdminRoleChange      = domain.NewError(domain.KindInvalidState, "Cannot change the role of the last admin in the company")
	ErrCannotRemoveOtherMembers = domain.NewError(domain.KindForbidden, "You do not have permission to remove other members")
	ErrLastAdminRemoval         = domain.NewError(domain.KindInvalidState, "Cannot remove the last admin from the company")
)
