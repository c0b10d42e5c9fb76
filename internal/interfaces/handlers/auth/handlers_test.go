package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	authsvc "workspace-backend/internal/application/auth"
	"workspace-backend/internal/application/profiles"
	"workspace-backend/internal/application/ratelimit"
	"workspace-backend/internal/domain"
	"workspace-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeProvider struct {
	userID    uuid.UUID
	password  string
	signInErr error
	signUpErr error
	signedOut []string
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*authsvc.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	if password != f.password {
		return nil, &authsvc.ProviderError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	return &authsvc.Session{AccessToken: "access-" + email, User: authsvc.User{ID: f.userID, Email: email}}, nil
}

func (f *fakeProvider) SignUp(_ context.Context, email, _, _ string) (*authsvc.User, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	return &authsvc.User{ID: f.userID, Email: email}, nil
}

func (f *fakeProvider) SignOut(_ context.Context, accessToken string) error {
	f.signedOut = append(f.signedOut, accessToken)
	return nil
}

func setupAuthTest(t *testing.T, provider *fakeProvider) (*fiber.App, *gorm.DB, *miniredis.Miniredis) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Company{}, &domain.Profile{}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := &Handlers{
		Provider:      provider,
		Profiles:      &profiles.Service{DB: db},
		SignInLimiter: ratelimit.New(rdb, "signin", 5, time.Minute),
		SignUpLimiter: ratelimit.New(rdb, "signup", 5, time.Hour),
		Rdb:           rdb,
		SiteURL:       "http://localhost:3000",
	}

	app := fiber.New()
	app.Use(middleware.Session(rdb))
	app.Post("/signin", h.SignIn)
	app.Post("/signup", h.SignUp)
	app.Post("/signout", h.SignOut)
	app.Get("/me", middleware.RequireAuth(nil), h.Me)
	return app, db, mr
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}, cookie string) *httptestResult {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", middleware.SessionCookieName+"="+cookie)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	out := &httptestResult{Status: resp.StatusCode, Body: map[string]interface{}{}}
	_ = json.NewDecoder(resp.Body).Decode(&out.Body)
	for _, ck := range resp.Cookies() {
		if ck.Name == middleware.SessionCookieName {
			out.SessionID = ck.Value
		}
	}
	return out
}

type httptestResult struct {
	Status    int
	Body      map[string]interface{}
	SessionID string
}

func TestSignIn_InvalidInput(t *testing.T) {
	app, _, _ := setupAuthTest(t, &fakeProvider{})

	res := postJSON(t, app, "/signin", map[string]string{"email": "nope", "password": "123"}, "")
	assert.Equal(t, fiber.StatusBadRequest, res.Status)
	assert.Equal(t, "Invalid input", res.Body["error"])
	details, _ := res.Body["details"].(map[string]interface{})
	assert.Equal(t, "Invalid email address", details["email"])
}

func TestSignIn_WrongPassword(t *testing.T) {
	app, _, _ := setupAuthTest(t, &fakeProvider{userID: uuid.New(), password: "secret123"})

	res := postJSON(t, app, "/signin", map[string]string{"email": "a@b.co", "password": "wrong-pass"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, res.Status)
	assert.Equal(t, "Invalid email or password", res.Body["error"])
}

func TestSignIn_EmailNotConfirmed(t *testing.T) {
	app, _, _ := setupAuthTest(t, &fakeProvider{
		signInErr: &authsvc.ProviderError{Status: 400, Code: "email_not_confirmed", Message: "Email not confirmed"},
	})

	res := postJSON(t, app, "/signin", map[string]string{"email": "a@b.co", "password": "secret123"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, res.Status)
	assert.Equal(t, "Please verify your email before signing in", res.Body["error"])
}

func TestSignIn_SuccessCreatesProfileAndSession(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{userID: userID, password: "secret123"}
	app, db, mr := setupAuthTest(t, provider)

	res := postJSON(t, app, "/signin", map[string]string{"email": "A@B.co", "password": "secret123"}, "")
	require.Equal(t, fiber.StatusOK, res.Status)
	assert.Equal(t, true, res.Body["success"])
	require.NotEmpty(t, res.SessionID)
	assert.True(t, mr.Exists(middleware.SessionRedisPrefix+res.SessionID))

	var p domain.Profile
	require.NoError(t, db.Where("user_id = ?", userID).First(&p).Error)
	assert.Equal(t, "a@b.co", p.Email)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Cookie", middleware.SessionCookieName+"="+res.SessionID)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := postJSON(t, app, "/signout", nil, res.SessionID)
	assert.Equal(t, fiber.StatusOK, out.Status)
	assert.Equal(t, []string{"access-a@b.co"}, provider.signedOut)
	assert.False(t, mr.Exists(middleware.SessionRedisPrefix+res.SessionID))
}

func TestSignIn_RateLimited(t *testing.T) {
	app, _, _ := setupAuthTest(t, &fakeProvider{userID: uuid.New(), password: "secret123"})

	for i := 0; i < 5; i++ {
		res := postJSON(t, app, "/signin", map[string]string{"email": "a@b.co", "password": "wrong-pass"}, "")
		assert.Equal(t, fiber.StatusUnauthorized, res.Status)
	}
	res := postJSON(t, app, "/signin", map[string]string{"email": "a@b.co", "password": "secret123"}, "")
	assert.Equal(t, fiber.StatusTooManyRequests, res.Status)
	assert.Equal(t, "Too many sign-in attempts. Please try again later.", res.Body["error"])
}

func TestSignUp_Success(t *testing.T) {
	userID := uuid.New()
	app, db, _ := setupAuthTest(t, &fakeProvider{userID: userID})

	res := postJSON(t, app, "/signup", map[string]string{"email": "new@b.co", "password": "secret123"}, "")
	require.Equal(t, fiber.StatusOK, res.Status)
	assert.Equal(t, "Verification email sent", res.Body["message"])
	assert.Equal(t, "/auth/confirmation?email=new%40b.co", res.Body["redirectUrl"])

	var count int64
	db.Model(&domain.Profile{}).Where("user_id = ?", userID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSignUp_ProviderFailure(t *testing.T) {
	app, _, _ := setupAuthTest(t, &fakeProvider{signUpErr: &authsvc.ProviderError{Status: 500, Message: "boom"}})

	res := postJSON(t, app, "/signup", map[string]string{"email": "new@b.co", "password": "secret123"}, "")
	assert.Equal(t, fiber.StatusInternalServerError, res.Status)
	assert.Equal(t, "Registration failed. Please try again later.", res.Body["error"])
}

func TestMe_Unauthenticated(t *testing.T) {
	app, _, _ := setupAuthTest(t, &fakeProvider{})

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
