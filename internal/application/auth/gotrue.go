package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the identity-provider account as returned by sign-in and sign-up.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Session is an issued provider session.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// IdentityProvider is what the auth handlers need from the external provider.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (*User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// ProviderError is a non-2xx answer from the provider.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider: status %d: %s", e.Status, e.Message)
}

// EmailNotConfirmed reports whether sign-in failed only because the address
// was never verified.
func (e *ProviderError) EmailNotConfirmed() bool {
	return e.Code == "email_not_confirmed" || strings.Contains(strings.ToLower(e.Message), "email not confirmed")
}

// InvalidCredentials reports a wrong email/password pair.
func (e *ProviderError) InvalidCredentials() bool {
	return e.Code == "invalid_credentials" || e.Code == "invalid_grant" ||
		strings.Contains(strings.ToLower(e.Message), "invalid login credentials")
}

// GoTrueClient is an IdentityProvider backed by the Supabase auth REST API.
type GoTrueClient struct {
	BaseURL string
	AnonKey string
	Client  *http.Client
}

type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *GoTrueClient) SignUp(ctx context.Context, email, password, redirectTo string) (*User, error) {
	path := "/auth/v1/signup"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	// With autoconfirm the provider answers with a session; otherwise the bare user.
	var out struct {
		User
		Session *struct {
			User User `json:"user"`
		} `json:"session"`
		Nested *User `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, path, "", body, &out); err != nil {
		return nil, err
	}
	switch {
	case out.ID != uuid.Nil:
		return &out.User, nil
	case out.Nested != nil && out.Nested.ID != uuid.Nil:
		return out.Nested, nil
	case out.Session != nil:
		return &out.Session.User, nil
	}
	return nil, fmt.Errorf("identity provider: sign-up returned no user")
}

func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

func (c *GoTrueClient) do(ctx context.Context, method, path, bearer string, in, out interface{}) error {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if c.BaseURL == "" {
		return fmt.Errorf("identity provider: SUPABASE_URL is not set")
	}

	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.AnonKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer == "" {
		bearer = c.AnonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeProviderError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("identity provider response decode: %w", err)
	}
	return nil
}

func decodeProviderError(status int, body []byte) *ProviderError {
	pe := &ProviderError{Status: status, Message: http.StatusText(status)}
	var ge gotrueError
	if json.Unmarshal(body, &ge) != nil {
		return pe
	}
	pe.Code = ge.ErrorCode
	if pe.Code == "" {
		pe.Code = ge.Error
	}
	for _, m := range []string{ge.Msg, ge.ErrorDescription, ge.Message} {
		if m != "" {
			pe.Message = m
			break
		}
	}
	return pe
}
