package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, ParseEnv(&cfg))

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, int64(8), cfg.MutationConcurrency)
	assert.Equal(t, 15*time.Second, cfg.MutationTimeout)
	assert.Equal(t, time.Minute, cfg.GmailPollInterval)
	assert.False(t, cfg.GmailEnabled)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000,https://jobpilot.app")
	t.Setenv("MUTATION_TIMEOUT", "3s")

	var cfg Config
	require.NoError(t, ParseEnv(&cfg))
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000", "https://jobpilot.app"}, cfg.CORSOrigins)
	assert.Equal(t, 3*time.Second, cfg.MutationTimeout)
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("MUTATION_CONCURRENCY", "lots")

	var cfg Config
	err := ParseEnv(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing secret", Config{}, true},
		{"minimal", Config{AuthSecret: "s"}, false},
		{"gmail without owner", Config{AuthSecret: "s", GmailEnabled: true}, true},
		{"gmail with owner", Config{AuthSecret: "s", GmailEnabled: true, GmailOwnerID: "u1"}, false},
		{"telegram without chat", Config{AuthSecret: "s", TelegramBotToken: "t", ReminderOwnerID: "u1"}, true},
		{"telegram complete", Config{AuthSecret: "s", TelegramBotToken: "t", TelegramChatID: 42, ReminderOwnerID: "u1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
