package middleware

import (
	"strings"

	"workspace-backend/internal/domain"
	"workspace-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const identityLocal = "identity"

// TokenVerifier turns a bearer access token into an identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// RequireAuth resolves the caller from the session, else from an
// "Authorization: Bearer" access token. Returns 401 if neither yields one.
func RequireAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if u, ok := GetSessionUser(c); ok {
			if id, err := uuid.Parse(u.UserID); err == nil {
				c.Locals(identityLocal, domain.Identity{UserID: id, Email: u.Email})
				return c.Next()
			}
		}
		if verifier != nil {
			if token := bearerToken(c); token != "" {
				identity, err := verifier.Verify(token)
				if err == nil {
					c.Locals(identityLocal, identity)
					return c.Next()
				}
			}
		}
		return response.Unauthorized(c, "Unauthorized")
	}
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// GetIdentity returns the authenticated caller set by RequireAuth.
func GetIdentity(c *fiber.Ctx) (domain.Identity, bool) {
	id, ok := c.Locals(identityLocal).(domain.Identity)
	return id, ok
}

// SetIdentity stores identity for downstream handlers. Used by tests and by
// sign-in after a fresh session is issued.
func SetIdentity(c *fiber.Ctx, identity domain.Identity) {
	c.Locals(identityLocal, identity)
}
