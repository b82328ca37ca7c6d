package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"production"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET" required:"true"`

	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
	AdminFullName string `envconfig:"ADMIN_FULL_NAME" default:"Academy Admin"`

	BrevoAPIKey     string `envconfig:"BREVO_API_KEY"`
	BrevoBaseURL    string `envconfig:"BREVO_BASE_URL" default:"https://api.brevo.com"`
	EmailSender     string `envconfig:"EMAIL_SENDER"`
	EmailSenderName string `envconfig:"EMAIL_SENDER_NAME"`

	MinWithdrawal   decimal.Decimal `envconfig:"MIN_WITHDRAWAL" default:"10"`
	ReferrerShare   decimal.Decimal `envconfig:"REFERRER_SHARE" default:"0.5"`
	PlansFile       string          `envconfig:"PLANS_FILE"`
	StipendSchedule string          `envconfig:"STIPEND_SCHEDULE" default:"0 6 * * *"`

	RedisURL string `envconfig:"REDIS_URL"`
}

func (c Config) Development() bool {
	return c.Env == "development"
}

func loadDotEnv() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}
}

// migrateConfig is what the migrate command needs. It carries no secrets.
type migrateConfig struct {
	Env         string `envconfig:"ENV" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile     string `envconfig:"LOG_FILE"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

// LoadForMigrate decodes only the database and logging keys.
func LoadForMigrate() (*Config, error) {
	loadDotEnv()

	var mc migrateConfig
	if err := envconfig.Process("", &mc); err != nil {
		return nil, err
	}
	return &Config{
		Env:         mc.Env,
		LogLevel:    mc.LogLevel,
		LogFile:     mc.LogFile,
		DatabaseURL: mc.DatabaseURL,
	}, nil
}

// Load reads .env when present and then decodes the environment.
func Load() (*Config, error) {
	loadDotEnv()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if !c.MinWithdrawal.IsPositive() {
		return fmt.Errorf("MIN_WITHDRAWAL must be greater than zero, got %s", c.MinWithdrawal)
	}
	if c.ReferrerShare.IsNegative() || c.ReferrerShare.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("REFERRER_SHARE must be between 0 and 1, got %s", c.ReferrerShare)
	}
	return nil
}
