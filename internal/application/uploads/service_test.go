package uploads

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSignedUploadURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "Bearer service", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"url":"/object/upload/sign/company-logos/x?token=abc"}`))
	}))
	defer srv.Close()

	svc := &Service{
		Client:      &HTTPClient{BaseURL: srv.URL, ServiceKey: "service"},
		SupabaseURL: srv.URL,
	}
	res, err := svc.GetSignedUploadURL(context.Background(), "company-logos", "c1", "../logo.png")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotPath, "/storage/v1/object/upload/sign/company-logos/c1/"))
	assert.True(t, strings.HasPrefix(res.Path, "c1/"))
	assert.True(t, strings.HasSuffix(res.Path, "-logo.png"))
	assert.Equal(t, srv.URL+"/storage/v1/object/upload/sign/company-logos/x?token=abc", res.UploadURL)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/company-logos/"+res.Path, res.PublicURL)
}

func TestCreateSignedUploadURL_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
	}))
	defer srv.Close()

	_, err := (&HTTPClient{BaseURL: srv.URL, ServiceKey: "anon"}).CreateSignedUploadURL(context.Background(), "b", "p")
	assert.ErrorContains(t, err, "status 403")

	_, err = (&HTTPClient{BaseURL: srv.URL}).CreateSignedUploadURL(context.Background(), "b", "p")
	assert.ErrorContains(t, err, "SUPABASE_SERVICE_ROLE_KEY")
}
