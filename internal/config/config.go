package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string `env:"PORT" envDefault:"8080"`
	DatabaseURL    string `env:"DATABASE_URL"`
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`

	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	LLMRatePerMinute int    `env:"LLM_RATE_PER_MINUTE" envDefault:"30"`

	AuthSecret   string `env:"AUTH_SECRET"`
	AuthIssuer   string `env:"AUTH_ISSUER"`
	AuthAudience string `env:"AUTH_AUDIENCE"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	MutationConcurrency int64         `env:"MUTATION_CONCURRENCY" envDefault:"8"`
	MutationTimeout     time.Duration `env:"MUTATION_TIMEOUT" envDefault:"15s"`

	GmailEnabled         bool          `env:"GMAIL_ENABLED" envDefault:"false"`
	GmailCredentialsFile string        `env:"GMAIL_CREDENTIALS_FILE" envDefault:"credential.json"`
	GmailTokenFile       string        `env:"GMAIL_TOKEN_FILE" envDefault:"token.json"`
	GmailOwnerID         string        `env:"GMAIL_OWNER_ID"`
	GmailPollInterval    time.Duration `env:"GMAIL_POLL_INTERVAL" envDefault:"1m"`

	TelegramBotToken      string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID        int64         `env:"TELEGRAM_CHAT_ID"`
	ReminderOwnerID       string        `env:"REMINDER_OWNER_ID"`
	ReminderCheckInterval time.Duration `env:"REMINDER_CHECK_INTERVAL" envDefault:"1h"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file loaded, using process environment")
	}

	cfg := &Config{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	if c.GmailEnabled && c.GmailOwnerID == "" {
		return fmt.Errorf("GMAIL_OWNER_ID is required when GMAIL_ENABLED is set")
	}
	if c.TelegramBotToken != "" && (c.TelegramChatID == 0 || c.ReminderOwnerID == "") {
		return fmt.Errorf("TELEGRAM_CHAT_ID and REMINDER_OWNER_ID are required with TELEGRAM_BOT_TOKEN")
	}
	return nil
}
