package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env      string
	Port     string
	LogLevel string

	DatabaseURL      string
	MigrateOnStart   bool
	RowLevelSecurity bool // run member removal under the caller's claims first
	RedisURL         string

	SupabaseURL            string // e.g. https://<project>.supabase.co (auth REST and storage)
	SupabaseAnonKey        string // apikey header for auth endpoints
	SupabaseServiceRoleKey string // storage signed upload URLs
	SupabaseJWTSecret      string // HS256 secret for access token verification
	LogoBucket             string

	SiteURL             string // base for email links and signup redirect
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool

	BrevoAPIKey string
	MailFrom    string

	RateLimitGeneral int // requests per minute per IP
	RateLimitSignIn  int // attempts per minute per IP
	RateLimitSignUp  int // attempts per hour per IP

	HealthAdminKey string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOGO_BUCKET", "company-logos")
	v.SetDefault("SITE_URL", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_GENERAL", 100)
	v.SetDefault("RATE_LIMIT_SIGNIN", 5)
	v.SetDefault("RATE_LIMIT_SIGNUP", 5)

	return &Config{
		Env:                    v.GetString("APP_ENV"),
		Port:                   v.GetString("PORT"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		MigrateOnStart:         v.GetBool("MIGRATE_ON_START"),
		RowLevelSecurity:       v.GetBool("ROW_LEVEL_SECURITY"),
		RedisURL:               v.GetString("REDIS_URL"),
		SupabaseURL:            strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseAnonKey:        v.GetString("SUPABASE_ANON_KEY"),
		SupabaseServiceRoleKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseJWTSecret:      v.GetString("SUPABASE_JWT_SECRET"),
		LogoBucket:             v.GetString("LOGO_BUCKET"),
		SiteURL:                strings.TrimRight(strings.TrimSpace(v.GetString("SITE_URL")), "/"),
		FrontendURLEndsWith:    v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:            v.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:      v.GetBool("ALLOW_CROSS_SITE_DEV"),
		BrevoAPIKey:            v.GetString("BREVO_API_KEY"),
		MailFrom:               v.GetString("MAIL_FROM"),
		RateLimitGeneral:       v.GetInt("RATE_LIMIT_GENERAL"),
		RateLimitSignIn:        v.GetInt("RATE_LIMIT_SIGNIN"),
		RateLimitSignUp:        v.GetInt("RATE_LIMIT_SIGNUP"),
		HealthAdminKey:         v.GetString("HEALTH_ADMIN_KEY"),
	}, nil
}

// IsProduction reports whether the service runs with production cookie flags.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
