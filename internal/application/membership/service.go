package membership

import (
	"context"
	"errors"

	memberpolicy "workspace-backend/internal/application/policies/membership"
	"workspace-backend/internal/application/profiles"
	"workspace-backend/internal/domain"
	"workspace-backend/internal/infrastructure/database"
	"workspace-backend/internal/pkg/constants"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrMissingFields = domain.NewError(domain.KindValidation, "Member ID and new role are required")
	ErrInvalidRole   = domain.NewError(domain.KindValidation, "Invalid role")
)

// UserScope runs fn with the caller's restricted capability (see database.AsUser).
type UserScope func(db *gorm.DB, userID uuid.UUID, fn func(tx *gorm.DB) error) error

// Service is the membership guard.
type Service struct {
	DB *gorm.DB
	// Scope restricts member removal to the caller's row-level permissions.
	// Nil runs the write with the service's own connection.
	Scope UserScope
	// Elevator is invoked only when the restricted removal is denied.
	Elevator Elevator
}

// lastAdminGuard keeps a write from demoting or removing the only Admin. It is
// only race-free when the caller holds lockAdmins in the same transaction.
const lastAdminGuard = "(role <> ? OR (SELECT count(*) FROM profiles AS admins WHERE admins.company_id = ? AND admins.role = ?) > 1)"

// lockAdmins row-locks the company's Admins in id order, so concurrent
// demotions and removals serialize before the guard counts them.
func lockAdmins(tx *gorm.DB, companyID uuid.UUID) error {
	var ids []uuid.UUID
	return tx.Session(&gorm.Session{NewDB: true}).Model(&domain.Profile{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND role = ?", companyID, constants.Admin).
		Order("id").
		Pluck("id", &ids).Error
}

func (s *Service) loadPair(ctx context.Context, actorID uuid.UUID, companyID, memberID uuid.UUID) (*domain.Profile, *domain.Profile, error) {
	db := s.DB.WithContext(ctx)
	actor, err := profiles.LoadByUserID(db, actorID)
	if err != nil && !errors.Is(err, profiles.ErrProfileNotFound) {
		return nil, nil, err
	}
	var target domain.Profile
	err = db.Where("id = ? AND company_id = ?", memberID, companyID).First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return actor, nil, nil
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "load member")
	}
	return actor, &target, nil
}

// ChangeRole sets memberID's role within companyID. Admins only.
func (s *Service) ChangeRole(ctx context.Context, actor domain.Identity, companyID, memberID uuid.UUID, newRole constants.Role) error {
	if memberID == uuid.Nil || newRole == "" {
		return ErrMissingFields
	}
	if !constants.IsValidRole(string(newRole)) {
		return ErrInvalidRole
	}

	actorProfile, target, err := s.loadPair(ctx, actor.UserID, companyID, memberID)
	if err != nil {
		return err
	}
	if err := memberpolicy.ValidateRoleChange(s.DB.WithContext(ctx), actorProfile, companyID, target, newRole); err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&domain.Profile{}).Where("id = ? AND company_id = ?", memberID, companyID)
		if newRole != constants.Admin {
			if err := lockAdmins(tx, companyID); err != nil {
				return pkgerrors.Wrap(err, "lock admins")
			}
			q = q.Where(lastAdminGuard, constants.Admin, companyID, constants.Admin)
		}
		res := q.Update("role", newRole)
		if res.Error != nil {
			return pkgerrors.Wrap(res.Error, "update member role")
		}
		if res.RowsAffected == 0 {
			return memberpolicy.ErrLastAdminRoleChange
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("company_id", companyID.String()).
		Str("member_id", memberID.String()).
		Str("role", string(newRole)).
		Str("actor_id", actor.UserID.String()).
		Msg("member role changed")
	return nil
}

// RemoveMember tears down memberID's membership of companyID and reports
// whether the actor removed themselves. The write is first attempted under
// the actor's own permissions; only an authorization denial escalates to the
// Elevator.
func (s *Service) RemoveMember(ctx context.Context, actor domain.Identity, companyID, memberID uuid.UUID) (bool, error) {
	if memberID == uuid.Nil {
		return false, domain.NewError(domain.KindValidation, "Member ID is required")
	}

	actorProfile, target, err := s.loadPair(ctx, actor.UserID, companyID, memberID)
	if err != nil {
		return false, err
	}
	if err := memberpolicy.ValidateMemberRemoval(s.DB.WithContext(ctx), actorProfile, companyID, target); err != nil {
		return false, err
	}
	self := target.UserID == actor.UserID

	err = s.removeRestricted(ctx, actor.UserID, companyID, memberID)
	if err != nil && database.IsAuthorizationDenied(err) && s.Elevator != nil {
		log.Warn().
			Err(err).
			Str("actor_id", actor.UserID.String()).
			Str("member_id", memberID.String()).
			Str("company_id", companyID.String()).
			Msg("restricted removal denied, using elevated removal")
		err = s.Elevator.RemoveMember(ctx, actor.UserID, memberID, companyID)
	}
	if err != nil {
		if domain.KindOf(err) != domain.KindInternal {
			return false, err
		}
		return false, pkgerrors.Wrap(err, "remove member")
	}

	log.Info().
		Str("company_id", companyID.String()).
		Str("member_id", memberID.String()).
		Str("actor_id", actor.UserID.String()).
		Bool("self", self).
		Msg("member removed")
	return self, nil
}

func (s *Service) removeRestricted(ctx context.Context, actorID, companyID, memberID uuid.UUID) error {
	write := func(tx *gorm.DB) error {
		if err := lockAdmins(tx, companyID); err != nil {
			return err
		}
		res := tx.Model(&domain.Profile{}).
			Where("id = ? AND company_id = ?", memberID, companyID).
			Where(lastAdminGuard, constants.Admin, companyID, constants.Admin).
			Updates(map[string]interface{}{"company_id": nil, "role": nil, "tags": nil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return database.ErrNoRowsAffected
		}
		return nil
	}

	db := s.DB.WithContext(ctx)
	if s.Scope != nil {
		return s.Scope(db, actorID, write)
	}
	if err := db.Transaction(write); err != nil {
		if errors.Is(err, database.ErrNoRowsAffected) {
			return memberpolicy.ErrLastAdminRemoval
		}
		return err
	}
	return nil
}
