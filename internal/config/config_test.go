package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "arizona.edu", cfg.VerifyDomain)
	assert.Equal(t, "Member", cfg.VerifyRoleName)
	assert.Equal(t, 465, cfg.SMTPPort)
	assert.Equal(t, []time.Duration{-time.Hour}, cfg.ReminderOffsets)
	assert.Equal(t, 5*time.Second, cfg.Policy().PollInterval())
	assert.Equal(t, 7*24*time.Hour, cfg.CTFTimeWindow())
	assert.False(t, cfg.EmailConfigured())
	assert.NoError(t, cfg.Validate(false))
	assert.Error(t, cfg.Validate(true), "running needs a token")
}

func TestLoad_YamlThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	yamlContent := `
verifyDomain: "@email.arizona.edu"
reminderTolerance: 1m
reminderOffsets: [-24h, -1h]
calendarLookahead: 48h
databasePath: /var/lib/bot/bot.db
ctfChannelId: "0"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))
	t.Setenv("DISCORD_TOKEN", " token ")
	t.Setenv("GUILD_IDS", "111, 222,")
	t.Setenv("DATABASE_PATH", "override.db")
	t.Setenv("DEADLINE_PRECISION", "2s")
	t.Setenv("GMAIL_USER", "club@gmail.com")
	t.Setenv("GMAIL_APP_PASSWORD", "app-password")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, []string{"111", "222"}, cfg.GuildIDs)
	assert.Equal(t, "email.arizona.edu", cfg.VerifyDomain)
	assert.Equal(t, []time.Duration{-24 * time.Hour, -time.Hour}, cfg.ReminderOffsets)
	assert.Equal(t, "override.db", cfg.DatabasePath)
	assert.Equal(t, "", cfg.CTFChannelID)
	assert.Equal(t, 2*time.Second, cfg.Policy().PollInterval())
	assert.True(t, cfg.EmailConfigured())
	assert.NoError(t, cfg.Validate(true))

	settings := cfg.FeedSettings()
	assert.Equal(t, 48*time.Hour, settings.CalendarLookahead)
	assert.Equal(t, cfg.ReminderOffsets, settings.ReminderOffsets)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadEnvironment(t *testing.T) {
	t.Setenv("REMINDER_TOLERANCE", "two minutes")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero tolerance", func(c *Config) { c.ReminderTolerance = 0 }},
		{"negative precision", func(c *Config) { c.DeadlinePrecision = -time.Second }},
		{"no rate", func(c *Config) { c.DeliveryRateRequests = 0 }},
		{"no offsets", func(c *Config) { c.ReminderOffsets = nil }},
		{"offset beyond lookahead", func(c *Config) { c.ReminderOffsets = []time.Duration{-48 * time.Hour} }},
		{"short retention", func(c *Config) { c.Retention = 72 * time.Hour }},
		{"bad port", func(c *Config) { c.SMTPPort = 70000 }},
		{"no ctf window", func(c *Config) { c.CTFTimeWindowDays = 0 }},
		{"refresh outruns lookahead", func(c *Config) {
			c.CalendarLookahead = time.Hour
			c.FeedRefreshInterval = time.Hour
			c.ReminderOffsets = []time.Duration{-60 * time.Minute}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate(false))
		})
	}
}

func TestValidate_LookaheadCoversRefresh(t *testing.T) {
	cfg := Default()
	cfg.ReminderOffsets = []time.Duration{-60 * time.Minute}
	cfg.ReminderTolerance = 2 * time.Minute
	cfg.FeedRefreshInterval = time.Hour

	cfg.CalendarLookahead = 118*time.Minute - time.Second
	err := cfg.Validate(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs at least 1h58m0s")

	// Exactly one refresh plus the reminder lead time, less the tolerance
	cfg.CalendarLookahead = 118 * time.Minute
	assert.NoError(t, cfg.Validate(false))
}
