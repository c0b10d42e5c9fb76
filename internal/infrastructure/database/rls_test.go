package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsAuthorizationDenied(t *testing.T) {
	assert.False(t, IsAuthorizationDenied(nil))
	assert.True(t, IsAuthorizationDenied(ErrNoRowsAffected))
	assert.True(t, IsAuthorizationDenied(fmt.Errorf("update: %w", &pgconn.PgError{Code: "42501"})))
	assert.True(t, IsAuthorizationDenied(errors.New(`new row violates row-level security policy for table "profiles"`)))
	assert.True(t, IsAuthorizationDenied(errors.New("permission denied for table profiles")))

	assert.False(t, IsAuthorizationDenied(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsAuthorizationDenied(errors.New("connection refused")))
}
