package companies

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"workspace-backend/internal/application/companies"
	"workspace-backend/internal/application/membership"
	"workspace-backend/internal/application/profiles"
	"workspace-backend/internal/application/uploads"
	"workspace-backend/internal/domain"
	"workspace-backend/internal/middleware"
	"workspace-backend/internal/pkg/constants"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubStorage struct{}

func (stubStorage) CreateSignedUploadURL(_ context.Context, bucket, objectPath string) (string, error) {
	return "https://storage.test/upload/" + bucket + "/" + objectPath + "?token=t", nil
}

func setupCompaniesTest(t *testing.T) (*Handlers, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Company{}, &domain.Profile{}, &domain.Invitation{}))

	profileSvc := &profiles.Service{DB: db}
	h := &Handlers{
		Companies: &companies.Service{
			DB:         db,
			Profiles:   profileSvc,
			Uploads:    &uploads.Service{Client: stubStorage{}, SupabaseURL: "https://storage.test"},
			LogoBucket: "company-logos",
		},
		Membership: &membership.Service{DB: db},
	}
	return h, db
}

func seedCompany(t *testing.T, db *gorm.DB, roles ...constants.Role) (domain.Company, []domain.Profile) {
	company := domain.Company{Handle: "acme", Name: "Acme"}
	require.NoError(t, db.Create(&company).Error)
	var members []domain.Profile
	for i, role := range roles {
		role := role
		p := domain.Profile{
			UserID: uuid.New(), Email: string(rune('a'+i)) + "@x.com",
			CompanyID: &company.ID, Role: &role,
		}
		require.NoError(t, db.Create(&p).Error)
		members = append(members, p)
	}
	return company, members
}

func appAs(h *Handlers, p domain.Profile) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		middleware.SetIdentity(c, domain.Identity{UserID: p.UserID, Email: p.Email})
		return c.Next()
	})
	app.Post("/companies", h.Create)
	app.Get("/companies/:companyId", h.Get)
	app.Patch("/companies/:companyId", h.Update)
	app.Post("/companies/:companyId/logo", h.Logo)
	app.Get("/companies/:companyId/members", h.Members)
	app.Patch("/companies/:companyId/members", h.ChangeRole)
	app.Delete("/companies/:companyId/members", h.RemoveMember)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestCreate_BindsAdmin(t *testing.T) {
	h, db := setupCompaniesTest(t)
	user := domain.Profile{UserID: uuid.New(), Email: "founder@x.com"}
	app := appAs(h, user)

	status, body := do(t, app, "POST", "/companies", map[string]string{"handle": " NewCo ", "name": "New Co"})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "Company created successfully", body["message"])
	company, _ := body["company"].(map[string]interface{})
	assert.Equal(t, "newco", company["handle"])

	var p domain.Profile
	require.NoError(t, db.Where("user_id = ?", user.UserID).First(&p).Error)
	require.NotNil(t, p.Role)
	assert.Equal(t, constants.Admin, *p.Role)

	status, _ = do(t, app, "POST", "/companies", map[string]string{"handle": "other", "name": "Other"})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestCreate_InvalidHandle(t *testing.T) {
	h, _ := setupCompaniesTest(t)

	status, body := do(t, appAs(h, domain.Profile{UserID: uuid.New(), Email: "f@x.com"}), "POST", "/companies",
		map[string]string{"handle": "bad handle!", "name": "Bad"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, companies.ErrInvalidHandle.Error(), body["error"])
}

func TestCreate_HandleTaken(t *testing.T) {
	h, db := setupCompaniesTest(t)
	seedCompany(t, db)

	status, _ := do(t, appAs(h, domain.Profile{UserID: uuid.New(), Email: "f@x.com"}), "POST", "/companies",
		map[string]string{"handle": "acme", "name": "Acme 2"})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestGetAndUpdate(t *testing.T) {
	h, db := setupCompaniesTest(t)
	company, members := seedCompany(t, db, constants.Admin, constants.Member)
	path := "/companies/" + company.ID.String()

	status, body := do(t, appAs(h, members[1]), "GET", path, nil)
	require.Equal(t, fiber.StatusOK, status)
	got, _ := body["company"].(map[string]interface{})
	assert.Equal(t, "Acme", got["name"])

	status, _ = do(t, appAs(h, members[1]), "PATCH", path, map[string]string{"name": "Nope"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = do(t, appAs(h, members[0]), "PATCH", path, map[string]string{"name": "Acme Inc", "handle": "ignored"})
	require.Equal(t, fiber.StatusOK, status)
	got, _ = body["company"].(map[string]interface{})
	assert.Equal(t, "Acme Inc", got["name"])
	assert.Equal(t, "acme", got["handle"])

	outsider := domain.Profile{UserID: uuid.New(), Email: "z@x.com"}
	status, _ = do(t, appAs(h, outsider), "GET", path, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestUpdate_RejectsMalformedFields(t *testing.T) {
	h, db := setupCompaniesTest(t)
	company, members := seedCompany(t, db, constants.Admin)
	path := "/companies/" + company.ID.String()
	admin := appAs(h, members[0])

	for _, body := range []map[string]interface{}{
		{"description": map[string]interface{}{"a": 1}},
		{"size": 50},
		{"name": "Acme", "logo": []string{"x"}},
	} {
		status, out := do(t, admin, "PATCH", path, body)
		assert.Equal(t, fiber.StatusBadRequest, status, "body %v", body)
		assert.Equal(t, companies.ErrInvalidBody.Error(), out["error"])
	}

	status, out := do(t, admin, "PATCH", path, map[string]string{"handle": "other"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, companies.ErrNoValidFields.Error(), out["error"])

	// Shape is checked before membership, so outsiders see the same 400.
	outsider := domain.Profile{UserID: uuid.New(), Email: "z@x.com"}
	status, _ = do(t, appAs(h, outsider), "PATCH", path, map[string]interface{}{"size": 50})
	assert.Equal(t, fiber.StatusBadRequest, status)

	var stored domain.Company
	require.NoError(t, db.First(&stored, "id = ?", company.ID).Error)
	assert.Equal(t, "Acme", stored.Name)
	assert.Nil(t, stored.Size)
}

func TestLogo(t *testing.T) {
	h, db := setupCompaniesTest(t)
	company, members := seedCompany(t, db, constants.Admin)

	status, body := do(t, appAs(h, members[0]), "POST", "/companies/"+company.ID.String()+"/logo",
		map[string]string{"fileName": "logo.png"})
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, strings.HasPrefix(body["path"].(string), company.ID.String()+"/"))
	assert.Contains(t, body["uploadUrl"], "token=t")
	assert.Contains(t, body["publicUrl"], "/storage/v1/object/public/company-logos/")
}

func TestMembers_ListAndChangeRole(t *testing.T) {
	h, db := setupCompaniesTest(t)
	company, members := seedCompany(t, db, constants.Admin, constants.Member)
	path := "/companies/" + company.ID.String() + "/members"

	status, body := do(t, appAs(h, members[1]), "GET", path, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["members"], 2)

	status, _ = do(t, appAs(h, members[1]), "PATCH", path, map[string]string{
		"memberId": members[0].ID.String(), "newRole": "Guest",
	})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = do(t, appAs(h, members[0]), "PATCH", path, map[string]string{
		"memberId": members[1].ID.String(), "newRole": "Manager",
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Member role updated successfully", body["message"])

	status, _ = do(t, appAs(h, members[0]), "PATCH", path, map[string]string{
		"memberId": members[0].ID.String(), "newRole": "Member",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRemoveMember(t *testing.T) {
	h, db := setupCompaniesTest(t)
	company, members := seedCompany(t, db, constants.Admin, constants.Member)
	path := "/companies/" + company.ID.String() + "/members?memberId="

	status, body := do(t, appAs(h, members[1]), "DELETE", path+members[1].ID.String(), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["isSelfRemoval"])

	var p domain.Profile
	require.NoError(t, db.First(&p, "id = ?", members[1].ID).Error)
	assert.Nil(t, p.CompanyID)
	assert.Nil(t, p.Role)

	status, _ = do(t, appAs(h, members[0]), "DELETE", path+members[0].ID.String(), nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
