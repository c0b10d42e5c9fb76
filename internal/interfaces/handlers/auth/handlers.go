package auth

import (
	"errors"
	"net/url"

	authsvc "workspace-backend/internal/application/auth"
	"workspace-backend/internal/application/profiles"
	"workspace-backend/internal/application/ratelimit"
	"workspace-backend/internal/domain"
	"workspace-backend/internal/middleware"
	"workspace-backend/internal/pkg/response"
	"workspace-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	Provider      authsvc.IdentityProvider
	Profiles      *profiles.Service
	SignInLimiter ratelimit.Limiter
	SignUpLimiter ratelimit.Limiter
	Rdb           *redis.Client
	Config        middleware.SessionConfig
	SiteURL       string
}

// Credentials is the sign-in / sign-up body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func parseCredentials(c *fiber.Ctx) (Credentials, validation.FieldErrors) {
	var req Credentials
	if err := c.BodyParser(&req); err != nil {
		return req, validation.FieldErrors{"body": "Request body must be JSON"}
	}
	req.Email = validation.NormalizeEmail(req.Email)
	return req, validation.Credentials(req.Email, req.Password)
}

// SignIn POST /api/auth/signin: password sign-in against the identity
// provider, then a fresh server session.
func (h *Handlers) SignIn(c *fiber.Ctx) error {
	ctx := c.UserContext()
	ip := c.IP()
	if d := h.SignInLimiter.Hit(ctx, ip); !d.Allowed {
		return middleware.TooManyRequests(c, d, "Too many sign-in attempts. Please try again later.")
	}

	req, errs := parseCredentials(c)
	if !errs.Empty() {
		return response.BadRequest(c, "Invalid input", errs)
	}

	session, err := h.Provider.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		message := "Authentication failed"
		var pe *authsvc.ProviderError
		if errors.As(err, &pe) {
			switch {
			case pe.InvalidCredentials():
				message = "Invalid email or password"
			case pe.EmailNotConfirmed():
				message = "Please verify your email before signing in"
			}
		} else {
			log.Warn().Err(err).Msg("sign-in: identity provider unreachable")
		}
		return response.Unauthorized(c, message)
	}

	h.SignInLimiter.Reset(ctx, ip)

	identity := domain.Identity{UserID: session.User.ID, Email: session.User.Email}
	if _, err := h.Profiles.EnsureProfile(ctx, identity); err != nil {
		return response.FromError(c, err)
	}

	sessionID := middleware.RegenerateSessionID(c, h.Rdb)
	middleware.SetSessionUser(c, middleware.SessionUser{
		UserID:      identity.UserID.String(),
		Email:       identity.Email,
		AccessToken: session.AccessToken,
	})
	c.Cookie(middleware.SessionCookie(h.Config, sessionID))

	log.Info().Str("user_id", identity.UserID.String()).Msg("signed in")
	return response.Success(c, "", nil)
}

// SignUp POST /api/auth/signup: registers with the identity provider, which
// sends the verification email.
func (h *Handlers) SignUp(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if d := h.SignUpLimiter.Hit(ctx, c.IP()); !d.Allowed {
		return middleware.TooManyRequests(c, d, "Too many sign-up attempts. Please try again later.")
	}

	req, errs := parseCredentials(c)
	if !errs.Empty() {
		return response.BadRequest(c, "Invalid input", errs)
	}

	user, err := h.Provider.SignUp(ctx, req.Email, req.Password, h.SiteURL+"/auth/callback")
	if err != nil {
		log.Error().Err(err).Msg("sign-up failed")
		return response.Error(c, "Registration failed. Please try again later.", fiber.StatusInternalServerError, nil)
	}

	if user != nil && user.ID != uuid.Nil {
		email := user.Email
		if email == "" {
			email = req.Email
		}
		if _, err := h.Profiles.EnsureProfile(ctx, domain.Identity{UserID: user.ID, Email: email}); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("sign-up: profile not created")
		}
	}

	return response.Success(c, "Verification email sent", fiber.Map{
		"redirectUrl": "/auth/confirmation?email=" + url.QueryEscape(req.Email),
	})
}

// SignOut POST /api/auth/signout: best-effort revoke at the provider, then
// drop the server session and its cookie.
func (h *Handlers) SignOut(c *fiber.Ctx) error {
	if u, ok := middleware.GetSessionUser(c); ok && u.AccessToken != "" {
		if err := h.Provider.SignOut(c.UserContext(), u.AccessToken); err != nil {
			log.Warn().Err(err).Str("user_id", u.UserID).Msg("sign-out: provider revoke failed")
		}
	}
	middleware.DestroySession(c, h.Rdb)
	c.Cookie(middleware.SessionCookie(h.Config, ""))
	return response.Success(c, "", nil)
}

// Me GET /api/auth/me
func (h *Handlers) Me(c *fiber.Ctx) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	return response.JSON(c, fiber.Map{"user": identity})
}
