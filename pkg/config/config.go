package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

// LogoType selects how the favicon and navbar logo are rendered.
type LogoType string

const (
	LogoTypeLetter LogoType = "letter"
	LogoTypeIcon   LogoType = "icon"
)

// Logo describes the generated brand mark.
type Logo struct {
	BackgroundColor string
	TextColor       string
	Roundness       string // rounded-none, rounded-sm, rounded, ..., rounded-full
	Type            LogoType
	FirstLetter     string // used when Type is letter
	Icon            string // icon name, used when Type is icon
}

// App holds application-wide display configuration. It is built once in main
// and passed to whatever needs it; nothing reads it as a global.
type App struct {
	Name        string
	Description string
	SiteURL     string
	Logo        Logo
	ContactMail string
	SupportMail string
}

// Stripe holds the payment provider credentials and price references.
type Stripe struct {
	SecretKey       string
	WebhookSecret   string
	ProPriceID      string
	LifetimePriceID string
}

// Auth holds the hosted auth provider endpoints.
type Auth struct {
	JWKSURL   string
	LogoutURL string
}

type DB struct {
	DatabasePath   string
	MigrationsPath string
}

type Config struct {
	App    App
	Stripe Stripe
	Auth   Auth
	DB     DB
	Port   string
	Log    LogConfig
}

type LogConfig struct {
	Level string
}

// Load reads configuration from the environment. Every missing required
// variable is reported in a single aggregated error so the process fails fast
// at startup instead of at first request.
func Load() (*Config, error) {
	var errs *multierror.Error

	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s environment variable is required", key))
		}
		return v
	}
	optional := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		App: App{
			Name:        optional("APP_NAME", "100NextCoding"),
			Description: optional("APP_DESCRIPTION", "A comprehensive SaaS template with auth and Stripe integration"),
			SiteURL:     optional("SITE_URL", "http://localhost:3000"),
			Logo: Logo{
				BackgroundColor: optional("LOGO_BACKGROUND_COLOR", "#1f2937"),
				TextColor:       optional("LOGO_TEXT_COLOR", "#ffffff"),
				Roundness:       optional("LOGO_ROUNDNESS", "rounded"),
				Type:            LogoType(optional("LOGO_TYPE", string(LogoTypeIcon))),
				FirstLetter:     optional("LOGO_FIRST_LETTER", "N"),
				Icon:            optional("LOGO_ICON", "Zap"),
			},
			ContactMail: optional("CONTACT_EMAIL", "contact@example.com"),
			SupportMail: optional("SUPPORT_EMAIL", "support@example.com"),
		},
		Stripe: Stripe{
			SecretKey:       required("STRIPE_SECRET_KEY"),
			WebhookSecret:   required("STRIPE_WEBHOOK_SECRET"),
			ProPriceID:      required("STRIPE_PRO_PRICE_ID"),
			LifetimePriceID: required("STRIPE_LIFETIME_PRICE_ID"),
		},
		Auth: Auth{
			JWKSURL:   required("AUTH_JWKS_URL"),
			LogoutURL: required("AUTH_LOGOUT_URL"),
		},
		DB: DB{
			DatabasePath:   optional("DATABASE_PATH", "./users.db"),
			MigrationsPath: optional("MIGRATIONS_PATH", "./migrations"),
		},
		Port: optional("PORT", "5801"),
		Log: LogConfig{
			Level: optional("LOG_LEVEL", "info"),
		},
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}
