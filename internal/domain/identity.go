package domain

import "github.com/google/uuid"

// Identity is the authenticated caller as reported by the identity provider.
type Identity struct {
	UserID uuid.UUID `json:"id"`
	Email  string    `json:"email"`
}
