package database

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// insufficientPrivilege is the SQLSTATE raised for row-level security and grant denials.
const insufficientPrivilege = "42501"

// ErrNoRowsAffected reports a write that matched nothing. Under row-level
// security this is how a policy denial of UPDATE surfaces.
var ErrNoRowsAffected = errors.New("no rows affected")

// AsUser runs fn in a transaction scoped to userID: the request claims are set
// for the policies and the role is switched to authenticated. Both settings are
// local to the transaction.
func AsUser(db *gorm.DB, userID uuid.UUID, fn func(tx *gorm.DB) error) error {
	claims, err := json.Marshal(map[string]string{"sub": userID.String(), "role": "authenticated"})
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT set_config('request.jwt.claims', ?, true)", string(claims)).Error; err != nil {
			return err
		}
		if err := tx.Exec("SET LOCAL ROLE authenticated").Error; err != nil {
			return err
		}
		return fn(tx)
	})
}

// IsAuthorizationDenied reports whether err came from the store's
// authorization layer rather than from validation or connectivity.
func IsAuthorizationDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoRowsAffected) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == insufficientPrivilege
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "row-level security")
}
