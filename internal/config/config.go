package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`

	// StrictOneHardNext makes a one-hard-next violation unconditionally
	// fatal: no role may override it.
	StrictOneHardNext bool `mapstructure:"STRICT_ONE_HARD_NEXT"`
	// OverrideMinJustification is the minimum justification length
	// accepted when a privileged actor bypasses one-hard-next.
	OverrideMinJustification int `mapstructure:"OVERRIDE_MIN_JUSTIFICATION"`

	CalendarBaseURL string `mapstructure:"CALENDAR_BASE_URL"`
	SMTPHost        string `mapstructure:"SMTP_HOST"`
	SMTPPort        int    `mapstructure:"SMTP_PORT"`
	SMTPFrom        string `mapstructure:"SMTP_FROM"`
	PushGatewayURL  string `mapstructure:"PUSH_GATEWAY_URL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("STRICT_ONE_HARD_NEXT", false)
	v.SetDefault("OVERRIDE_MIN_JUSTIFICATION", 10)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "noreply@care.local")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("STRICT_ONE_HARD_NEXT")
	v.BindEnv("OVERRIDE_MIN_JUSTIFICATION")
	v.BindEnv("CALENDAR_BASE_URL")
	v.BindEnv("SMTP_HOST")
	v.BindEnv("SMTP_PORT")
	v.BindEnv("SMTP_FROM")
	v.BindEnv("PUSH_GATEWAY_URL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OverrideMinJustification < 1 {
		return nil, fmt.Errorf("OVERRIDE_MIN_JUSTIFICATION must be positive")
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		log.Println("WARNING: JWT_SECRET is empty; requests authenticate as the dev admin actor")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
