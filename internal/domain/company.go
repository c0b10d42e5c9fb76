package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is a workspace. Handle is globally unique.
type Company struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Handle      string    `gorm:"column:handle;not null;uniqueIndex" json:"handle"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Logo        *string   `gorm:"column:logo" json:"logo"`
	Description *string   `gorm:"column:description" json:"description"`
	Industry    *string   `gorm:"column:industry" json:"industry"`
	Size        *string   `gorm:"column:size" json:"size"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Company) TableName() string {
	return "companies"
}

// BeforeCreate ensures id is set for DBs without default uuid.
func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CompanySummary is the company shape embedded in invitation listings.
type CompanySummary struct {
	ID     uuid.UUID `json:"id"`
	Handle string    `json:"handle"`
	Name   string    `json:"name"`
	Logo   *string   `json:"logo"`
}

// Summary returns the listing view of c.
func (c *Company) Summary() *CompanySummary {
	if c == nil {
		return nil
	}
	return &CompanySummary{ID: c.ID, Handle: c.Handle, Name: c.Name, Logo: c.Logo}
}
