package membership

import (
	"context"
	"errors"

	memberpolicy "workspace-backend/internal/application/policies/membership"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Elevator performs membership writes with privileges above the caller's.
// Implementations must audit every call.
type Elevator interface {
	RemoveMember(ctx context.Context, actorID, memberID, companyID uuid.UUID) error
}

// PostgresElevator calls the SECURITY DEFINER remove_company_member function,
// which re-checks permissions and the last-admin rule and writes membership_audit.
type PostgresElevator struct {
	DB *gorm.DB
}

func (e *PostgresElevator) RemoveMember(ctx context.Context, actorID, memberID, companyID uuid.UUID) error {
	err := e.DB.WithContext(ctx).
		Exec("SELECT remove_company_member(?, ?, ?)", actorID, memberID, companyID).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "P0001":
			return memberpolicy.ErrLastAdminRemoval
		case "P0002":
			return memberpolicy.ErrMemberNotFound
		case "42501":
			return memberpolicy.ErrCannotRemoveOtherMembers
		}
	}
	return err
}
