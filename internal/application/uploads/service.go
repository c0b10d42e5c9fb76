package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// StorageClient defines what we need from Supabase storage.
type StorageClient interface {
	CreateSignedUploadURL(ctx context.Context, bucket, objectPath string) (string, error)
}

// HTTPClient is a StorageClient backed by the storage REST API.
// ServiceKey must be the service_role key; the anon key is rejected by upload/sign.
type HTTPClient struct {
	BaseURL    string
	ServiceKey string
	Client     *http.Client
}

type signedUploadResponse struct {
	SignedURL      string `json:"signedUrl"`
	SignedURLSnake string `json:"signed_url"`
	URL            string `json:"url"` // relative path returned by upload/sign
}

func (c *HTTPClient) CreateSignedUploadURL(ctx context.Context, bucket, objectPath string) (string, error) {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if c.BaseURL == "" {
		return "", fmt.Errorf("storage: SUPABASE_URL is not set")
	}
	if c.ServiceKey == "" {
		return "", fmt.Errorf("storage: SUPABASE_SERVICE_ROLE_KEY is not set")
	}
	base := strings.TrimRight(c.BaseURL, "/")
	endpoint := fmt.Sprintf("%s/storage/v1/object/upload/sign/%s/%s", base, bucket, escapePath(objectPath))

	bodyBytes, _ := json.Marshal(map[string]interface{}{
		"expiresIn": 3600,
		"upsert":    true,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage error: status %d body: %s", resp.StatusCode, string(respBody))
	}

	var data signedUploadResponse
	if err := json.Unmarshal(respBody, &data); err != nil {
		return "", fmt.Errorf("storage response decode: %w", err)
	}
	switch {
	case data.SignedURL != "":
		return absolute(base, data.SignedURL), nil
	case data.SignedURLSnake != "":
		return absolute(base, data.SignedURLSnake), nil
	case data.URL != "":
		return absolute(base+"/storage/v1", data.URL), nil
	}
	return "", fmt.Errorf("storage returned no signed URL, body: %s", string(respBody))
}

func absolute(base, u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return base + u
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// Service issues upload URLs for public assets.
type Service struct {
	Client      StorageClient
	SupabaseURL string
}

// UploadResult is returned to the client: it PUTs the file to UploadURL and
// stores PublicURL.
type UploadResult struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	Path      string `json:"path"`
}

// GetSignedUploadURL signs an upload of fileName under dir in bucket. The
// object name is prefixed with a millisecond timestamp so re-uploads never
// collide with cached copies.
func (s *Service) GetSignedUploadURL(ctx context.Context, bucket, dir, fileName string) (*UploadResult, error) {
	objectPath := path.Join(dir, fmt.Sprintf("%d-%s", time.Now().UnixMilli(), path.Base(fileName)))

	signedURL, err := s.Client.CreateSignedUploadURL(ctx, bucket, objectPath)
	if err != nil {
		return nil, err
	}

	publicBase := strings.TrimRight(s.SupabaseURL, "/")
	return &UploadResult{
		UploadURL: signedURL,
		PublicURL: fmt.Sprintf("%s/storage/v1/object/public/%s/%s", publicBase, bucket, escapePath(objectPath)),
		Path:      objectPath,
	}, nil
}
