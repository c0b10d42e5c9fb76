package router

import (
	"net/http"
	"time"

	authsvc "workspace-backend/internal/application/auth"
	"workspace-backend/internal/application/companies"
	"workspace-backend/internal/application/emails"
	healthsvc "workspace-backend/internal/application/health"
	invsvc "workspace-backend/internal/application/invitations"
	"workspace-backend/internal/application/membership"
	"workspace-backend/internal/application/profiles"
	"workspace-backend/internal/application/ratelimit"
	"workspace-backend/internal/application/uploads"
	"workspace-backend/internal/config"
	"workspace-backend/internal/infrastructure/database"
	authhandler "workspace-backend/internal/interfaces/handlers/auth"
	companyhandler "workspace-backend/internal/interfaces/handlers/companies"
	healthhandler "workspace-backend/internal/interfaces/handlers/health"
	invhandler "workspace-backend/internal/interfaces/handlers/invitations"
	userhandler "workspace-backend/internal/interfaces/handlers/user"
	"workspace-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CreateApp wires configuration, stores and handlers into a Fiber app.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil, errors.New("DATABASE_URL is required")
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "open database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "database handle")
	}
	rdb, err := middleware.OpenRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "open redis")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		SiteURL:       cfg.SiteURL,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.Session(rdb))
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.RouteLogger())
	app.Use(middleware.RateLimit(ratelimit.New(rdb, "general", cfg.RateLimitGeneral, time.Minute)))

	hh := &healthhandler.Handlers{
		Checker:        healthsvc.NewChecker(sqlDB, rdb, cfg.SupabaseURL),
		Rdb:            rdb,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/health/json", hh.JSON)
	app.Delete("/health/stats", hh.Reset)

	sessionCfg := middleware.SessionConfig{
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.IsProduction(),
	}
	requireAuth := middleware.RequireAuth(authsvc.NewTokenVerifier(cfg.SupabaseJWTSecret))

	profileSvc := &profiles.Service{DB: db}

	var mailer emails.Sender
	if cfg.BrevoAPIKey != "" {
		mailer = &emails.BrevoClient{APIKey: cfg.BrevoAPIKey, MailFrom: cfg.MailFrom}
	}

	ah := &authhandler.Handlers{
		Provider:      &authsvc.GoTrueClient{BaseURL: cfg.SupabaseURL, AnonKey: cfg.SupabaseAnonKey},
		Profiles:      profileSvc,
		SignInLimiter: ratelimit.New(rdb, "signin", cfg.RateLimitSignIn, time.Minute),
		SignUpLimiter: ratelimit.New(rdb, "signup", cfg.RateLimitSignUp, time.Hour),
		Rdb:           rdb,
		Config:        sessionCfg,
		SiteURL:       cfg.SiteURL,
	}
	ag := app.Group("/api/auth")
	ag.Post("/signin", ah.SignIn)
	ag.Post("/signup", ah.SignUp)
	ag.Post("/signout", ah.SignOut)
	ag.Get("/me", requireAuth, ah.Me)

	ih := &invhandler.Handlers{Service: &invsvc.Service{
		DB:       db,
		Profiles: profileSvc,
		Mailer:   mailer,
		SiteURL:  cfg.SiteURL,
	}}
	ig := app.Group("/api/invitations", requireAuth)
	ig.Post("/", ih.Send)
	ig.Get("/", ih.List)
	ig.Patch("/:id", ih.Respond)
	ig.Delete("/:id", ih.Cancel)

	memberSvc := &membership.Service{DB: db, Elevator: &membership.PostgresElevator{DB: db}}
	if cfg.RowLevelSecurity {
		memberSvc.Scope = database.AsUser
	}
	ch := &companyhandler.Handlers{
		Companies: &companies.Service{
			DB:       db,
			Profiles: profileSvc,
			Uploads: &uploads.Service{
				Client:      &uploads.HTTPClient{BaseURL: cfg.SupabaseURL, ServiceKey: cfg.SupabaseServiceRoleKey},
				SupabaseURL: cfg.SupabaseURL,
			},
			LogoBucket: cfg.LogoBucket,
		},
		Membership: memberSvc,
	}
	cg := app.Group("/api/companies", requireAuth)
	cg.Post("/", ch.Create)
	cg.Get("/:companyId", ch.Get)
	cg.Patch("/:companyId", ch.Update)
	cg.Post("/:companyId/logo", ch.Logo)
	cg.Get("/:companyId/members", ch.Members)
	cg.Patch("/:companyId/members", ch.ChangeRole)
	cg.Delete("/:companyId/members", ch.RemoveMember)

	uh := &userhandler.Handlers{Profiles: profileSvc}
	ug := app.Group("/api/user", requireAuth)
	ug.Get("/company-status", uh.CompanyStatus)
	ug.Patch("/profile", uh.UpdateProfile)

	return app, db, rdb, nil
}

// Handler adapts app for net/http hosts.
func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
