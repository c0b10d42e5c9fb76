package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionConfig for the Redis-backed cookie session.
type SessionConfig struct {
	AllowCrossSiteDev bool
	IsProduction      bool
}

const (
	SessionCookieName  = "ws.sid"
	SessionRedisPrefix = "session:"
	sessionMaxAge      = 24 * time.Hour
)

// SessionUser is the shape stored in the session under "user".
type SessionUser struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	AccessToken string `json:"access_token"`
}

// OpenRedis parses a redis:// URL and returns a client.
func OpenRedis(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

// Session loads the session named by the cookie from Redis into Locals and
// persists it after the handler when a session id is set.
func Session(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(SessionCookieName)
		ctx := context.Background()

		var data map[string]interface{}
		if sessionID != "" {
			b, err := rdb.Get(ctx, SessionRedisPrefix+sessionID).Bytes()
			switch {
			case err == nil:
				_ = json.Unmarshal(b, &data)
			case err != redis.Nil:
				log.Warn().Err(err).Msg("session load failed")
			}
		}
		if data == nil {
			data = make(map[string]interface{})
			// Unknown or expired id: never resurrect it.
			sessionID = ""
		}

		c.Locals("session_data", data)
		c.Locals("user", data["user"])
		c.Locals("session_id", sessionID)

		if err := c.Next(); err != nil {
			return err
		}

		if sid, _ := c.Locals("session_id").(string); sid != "" {
			updated, _ := c.Locals("session_data").(map[string]interface{})
			if updated != nil {
				b, _ := json.Marshal(updated)
				if err := rdb.Set(ctx, SessionRedisPrefix+sid, b, sessionMaxAge).Err(); err != nil {
					log.Warn().Err(err).Msg("session save failed")
				}
			}
		}
		return nil
	}
}

// GetSessionID returns the current session ID from context.
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals("session_id").(string)
	return sid
}

// GetSessionUser returns the user stored in the session, if any.
func GetSessionUser(c *fiber.Ctx) (SessionUser, bool) {
	m, ok := c.Locals("user").(map[string]interface{})
	if !ok {
		return SessionUser{}, false
	}
	u := SessionUser{}
	u.UserID, _ = m["user_id"].(string)
	u.Email, _ = m["email"].(string)
	u.AccessToken, _ = m["access_token"].(string)
	return u, u.UserID != ""
}

// SetSessionUser sets the user in the session and marks it for save.
// Call RegenerateSessionID first so a sign-in never reuses an old id.
func SetSessionUser(c *fiber.Ctx, user SessionUser) {
	data, _ := c.Locals("session_data").(map[string]interface{})
	if data == nil {
		data = make(map[string]interface{})
	}
	data["user"] = map[string]interface{}{
		"user_id":      user.UserID,
		"email":        user.Email,
		"access_token": user.AccessToken,
	}
	c.Locals("session_data", data)
	c.Locals("user", data["user"])
}

// RegenerateSessionID creates a new session ID and sets it in Locals (cookie
// set by handler). The previous session, if any, is deleted from Redis.
func RegenerateSessionID(c *fiber.Ctx, rdb *redis.Client) string {
	if old := GetSessionID(c); old != "" && rdb != nil {
		if err := rdb.Del(c.UserContext(), SessionRedisPrefix+old).Err(); err != nil {
			log.Warn().Err(err).Msg("old session delete failed")
		}
	}
	newID := uuid.New().String()
	c.Locals("session_id", newID)
	return newID
}

// DestroySession deletes the stored session and clears Locals so nothing is
// written back.
func DestroySession(c *fiber.Ctx, rdb *redis.Client) {
	if sid := GetSessionID(c); sid != "" && rdb != nil {
		if err := rdb.Del(context.Background(), SessionRedisPrefix+sid).Err(); err != nil {
			log.Warn().Err(err).Msg("session delete failed")
		}
	}
	c.Locals("session_data", make(map[string]interface{}))
	c.Locals("user", nil)
	c.Locals("session_id", "")
}

// SessionCookie returns the session cookie carrying value (empty value with
// negative MaxAge clears it).
func SessionCookie(cfg SessionConfig, value string) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if cfg.AllowCrossSiteDev {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	maxAge := int(sessionMaxAge.Seconds())
	if value == "" {
		maxAge = -1
	}
	return &fiber.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HTTPOnly: true,
		Secure:   cfg.IsProduction || cfg.AllowCrossSiteDev,
		SameSite: sameSite,
	}
}
