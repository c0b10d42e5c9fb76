package validation

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Company handles: lowercase letters, numbers, dashes and underscores.
var handleRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// MinPasswordLength is the shortest password accepted on sign-in and sign-up.
const MinPasswordLength = 6

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func IsValidHandle(handle string) bool {
	return handleRe.MatchString(handle)
}

func IsValidPassword(password string) bool {
	return len(password) >= MinPasswordLength
}

// FieldErrors collects per-field validation messages for a 400 details payload.
type FieldErrors map[string]string

func (f FieldErrors) Add(field, message string) {
	if _, ok := f[field]; !ok {
		f[field] = message
	}
}

func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Credentials validates a sign-in / sign-up body.
func Credentials(email, password string) FieldErrors {
	errs := FieldErrors{}
	if !IsValidEmail(email) {
		errs.Add("email", "Invalid email address")
	}
	if !IsValidPassword(password) {
		errs.Add("password", "Password must be at least 6 characters")
	}
	return errs
}

// ParseID parses a UUID from a path or body field. Empty input yields
// uuid.Nil with ok true so callers can report it as a missing field.
func ParseID(s string) (id uuid.UUID, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(s)
	return id, err == nil
}
