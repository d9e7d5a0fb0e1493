package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	Port          string `mapstructure:"PORT"`
	AppEnv        string `mapstructure:"APP_ENV"`
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	FrontendURL    string `mapstructure:"FRONTEND_URL"`
	GoogleClientID string `mapstructure:"GOOGLE_CLIENT_ID"`

	SMTPHost string        `mapstructure:"SMTP_HOST"`
	SMTPPort int           `mapstructure:"SMTP_PORT"`
	SMTPUser string        `mapstructure:"SMTP_USER"`
	SMTPPass string        `mapstructure:"SMTP_PASS"`
	MailFrom string        `mapstructure:"MAIL_FROM"`
	OTPTTL   time.Duration `mapstructure:"OTP_TTL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	CleanupSchedule string        `mapstructure:"CLEANUP_SCHEDULE"`
	LobbyRetention  time.Duration `mapstructure:"LOBBY_RETENTION"`
}

var defaults = map[string]interface{}{
	"PORT":             "8080",
	"APP_ENV":          "development",
	"STORAGE_DRIVER":   StorageDriverPostgres,
	"DATABASE_URL":     "",
	"REDIS_ADDR":       "localhost:6379",
	"REDIS_PASSWORD":   "",
	"REDIS_DB":         0,
	"JWT_SECRET":       "",
	"JWT_TTL":          "168h",
	"FRONTEND_URL":     "",
	"GOOGLE_CLIENT_ID": "",
	"SMTP_HOST":        "smtp.gmail.com",
	"SMTP_PORT":        587,
	"SMTP_USER":        "",
	"SMTP_PASS":        "",
	"MAIL_FROM":        "",
	"OTP_TTL":          "5m",
	"RATE_LIMIT_RPS":   1.0,
	"RATE_LIMIT_BURST": 5,
	"CLEANUP_SCHEDULE": "@daily",
	"LOBBY_RETENTION":  "720h",
}

// LoadConfig loads the configuration from a .env file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Println("Warning: .env file not found, loading from environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	return &cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres storage driver"))
		}
	case StorageDriverMemory:
	default:
		errs = append(errs, errors.New("STORAGE_DRIVER must be postgres or memory"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// AllowedOrigins returns the CORS origins: the local dev server plus
// FRONTEND_URL when set.
func (c *Config) AllowedOrigins() []string {
	origins := []string{"http://localhost:5173"}
	if c.FrontendURL != "" {
		origins = append(origins, strings.TrimRight(c.FrontendURL, "/"))
	}
	return origins
}

// MailEnabled reports whether SMTP credentials are configured.
func (c *Config) MailEnabled() bool {
	return c.SMTPUser != ""
}
