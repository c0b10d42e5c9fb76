package database

import (
	"workspace-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN (Supabase/Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer, Supabase, Render).
// TranslateError maps unique violations to gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
}

// AutoMigrate creates the core tables. Used by tests against SQLite; Postgres
// deployments run the embedded goose migrations instead (see Migrate).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Company{}, &domain.Profile{}, &domain.Invitation{})
}
