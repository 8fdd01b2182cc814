package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"cybersecbot/internal/common"
	"cybersecbot/internal/engine"
	"cybersecbot/internal/feeds"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string   `yaml:"discordToken" envconfig:"DISCORD_TOKEN"`
	GuildIDs     []string `yaml:"guildIds"     envconfig:"GUILD_IDS"`

	VerifyDomain     string        `yaml:"verifyDomain"     envconfig:"VERIFY_DOMAIN"`
	VerifyRoleName   string        `yaml:"verifyRoleName"   envconfig:"VERIFY_ROLE_NAME"`
	VerifyRoleID     string        `yaml:"verifyRoleId"     envconfig:"VERIFY_ROLE_ID"`
	GmailUser        string        `yaml:"gmailUser"        envconfig:"GMAIL_USER"`
	GmailAppPassword string        `yaml:"gmailAppPassword" envconfig:"GMAIL_APP_PASSWORD"`
	SMTPHost         string        `yaml:"smtpHost"         envconfig:"SMTP_HOST"`
	SMTPPort         int           `yaml:"smtpPort"         envconfig:"SMTP_PORT"`
	VerifyCodeTTL    time.Duration `yaml:"verifyCodeTtl"    envconfig:"VERIFY_CODE_TTL"`

	CalendarICSURL      string        `yaml:"calendarIcsUrl"      envconfig:"CALENDAR_ICS_URL"`
	CalendarChannelID   string        `yaml:"calendarChannelId"   envconfig:"CALENDAR_CHANNEL_ID"`
	CalendarLookahead   time.Duration `yaml:"calendarLookahead"   envconfig:"CALENDAR_LOOKAHEAD"`
	CTFChannelID        string        `yaml:"ctfChannelId"        envconfig:"CTF_CHANNEL_ID"`
	CTFTimeWindowDays   int           `yaml:"ctftimeWindowDays"   envconfig:"CTFTIME_EVENTS_WINDOW_DAYS"`
	FeedRefreshInterval time.Duration `yaml:"feedRefreshInterval" envconfig:"FEED_REFRESH_INTERVAL"`

	ReminderOffsets      []time.Duration `yaml:"reminderOffsets"      envconfig:"REMINDER_OFFSETS"`
	ReminderTolerance    time.Duration   `yaml:"reminderTolerance"    envconfig:"REMINDER_TOLERANCE"`
	DeadlinePrecision    time.Duration   `yaml:"deadlinePrecision"    envconfig:"DEADLINE_PRECISION"`
	DeliveryTimeout      time.Duration   `yaml:"deliveryTimeout"      envconfig:"DELIVERY_TIMEOUT"`
	DeliveryRateRequests int             `yaml:"deliveryRateRequests" envconfig:"DELIVERY_RATE_REQUESTS"`
	DeliveryRatePeriod   time.Duration   `yaml:"deliveryRatePeriod"   envconfig:"DELIVERY_RATE_PERIOD"`
	ShutdownGrace        time.Duration   `yaml:"shutdownGrace"        envconfig:"SHUTDOWN_GRACE"`
	Retention            time.Duration   `yaml:"retention"            envconfig:"RETENTION"`

	DatabasePath   string `yaml:"databasePath"   envconfig:"DATABASE_PATH"`
	MetricsAddress string `yaml:"metricsAddress" envconfig:"METRICS_ADDRESS"`
	LogLevel       string `yaml:"logLevel"       envconfig:"LOG_LEVEL"`
	LogPretty      bool   `yaml:"logPretty"      envconfig:"LOG_PRETTY"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		VerifyDomain:         "arizona.edu",
		VerifyRoleName:       "Member",
		SMTPHost:             "smtp.gmail.com",
		SMTPPort:             465,
		VerifyCodeTTL:        10 * time.Minute,
		CalendarLookahead:    24 * time.Hour,
		CTFTimeWindowDays:    7,
		FeedRefreshInterval:  time.Hour,
		ReminderOffsets:      []time.Duration{-60 * time.Minute},
		ReminderTolerance:    2 * time.Minute,
		DeadlinePrecision:    5 * time.Second,
		DeliveryTimeout:      10 * time.Second,
		DeliveryRateRequests: 5,
		DeliveryRatePeriod:   5 * time.Second,
		ShutdownGrace:        10 * time.Second,
		Retention:            60 * 24 * time.Hour,
		DatabasePath:         "data/bot.db",
		LogLevel:             "info",
	}
}

// Load builds the configuration from the defaults, then the YAML file if
// one is given, then the environment
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	cfg.normalise()
	return cfg, nil
}

func (c *Config) normalise() {
	c.GuildIDs = trimAll(c.GuildIDs)
	c.DiscordToken = strings.TrimSpace(c.DiscordToken)
	c.VerifyDomain = strings.TrimPrefix(strings.TrimSpace(c.VerifyDomain), "@")
	c.VerifyRoleName = strings.TrimSpace(c.VerifyRoleName)
	c.VerifyRoleID = strings.TrimSpace(c.VerifyRoleID)
	c.GmailUser = strings.TrimSpace(c.GmailUser)
	c.GmailAppPassword = strings.TrimSpace(c.GmailAppPassword)
	c.CalendarICSURL = strings.TrimSpace(c.CalendarICSURL)
	c.CalendarChannelID = strings.TrimSpace(c.CalendarChannelID)
	c.CTFChannelID = strings.TrimSpace(c.CTFChannelID)
	// Ids of 0 mean unset
	for _, id := range []*string{&c.VerifyRoleID, &c.CalendarChannelID, &c.CTFChannelID} {
		if *id == "0" {
			*id = ""
		}
	}
}

func trimAll(values []string) []string {
	trimmed := []string{}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			trimmed = append(trimmed, v)
		}
	}
	return trimmed
}

// Validate checks the configuration. The Discord token is only required to
// run the bot
func (c *Config) Validate(requireToken bool) error {
	var errs []error
	if requireToken && c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}

	positive := map[string]time.Duration{
		"VERIFY_CODE_TTL":       c.VerifyCodeTTL,
		"CALENDAR_LOOKAHEAD":    c.CalendarLookahead,
		"FEED_REFRESH_INTERVAL": c.FeedRefreshInterval,
		"REMINDER_TOLERANCE":    c.ReminderTolerance,
		"DEADLINE_PRECISION":    c.DeadlinePrecision,
		"DELIVERY_TIMEOUT":      c.DeliveryTimeout,
		"DELIVERY_RATE_PERIOD":  c.DeliveryRatePeriod,
		"SHUTDOWN_GRACE":        c.ShutdownGrace,
		"RETENTION":             c.Retention,
	}
	for _, key := range slices.Sorted(maps.Keys(positive)) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, positive[key]))
		}
	}
	if c.DeliveryRateRequests <= 0 {
		errs = append(errs, fmt.Errorf("DELIVERY_RATE_REQUESTS must be positive, got %d", c.DeliveryRateRequests))
	}
	if c.CTFTimeWindowDays <= 0 {
		errs = append(errs, fmt.Errorf("CTFTIME_EVENTS_WINDOW_DAYS must be positive, got %d", c.CTFTimeWindowDays))
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		errs = append(errs, fmt.Errorf("SMTP_PORT out of range: %d", c.SMTPPort))
	}

	if len(c.ReminderOffsets) == 0 {
		errs = append(errs, errors.New("REMINDER_OFFSETS needs at least one offset"))
	}
	// An event can enter the lookahead window just after a refresh and is
	// only seen at the next one, which must still be before its reminder
	for _, offset := range c.ReminderOffsets {
		if needed := -offset + c.FeedRefreshInterval - c.ReminderTolerance; c.CalendarLookahead < needed {
			errs = append(errs, fmt.Errorf("CALENDAR_LOOKAHEAD %s is too short for reminder offset %s with FEED_REFRESH_INTERVAL %s, needs at least %s",
				c.CalendarLookahead, offset, c.FeedRefreshInterval, needed))
		}
	}

	// Closed feed campaigns must outlive the windows they are found in
	if c.Retention <= c.CalendarLookahead || c.Retention <= c.CTFTimeWindow() {
		errs = append(errs, fmt.Errorf("RETENTION %s must exceed CALENDAR_LOOKAHEAD and the CTFtime window", c.Retention))
	}
	return errors.Join(errs...)
}

func (c *Config) CTFTimeWindow() time.Duration {
	return time.Duration(c.CTFTimeWindowDays) * 24 * time.Hour
}

func (c *Config) Policy() engine.Policy {
	return engine.Policy{DeadlinePrecision: c.DeadlinePrecision, ReminderTolerance: c.ReminderTolerance}
}

func (c *Config) DeliveryRestrictions() []common.Restriction {
	return []common.Restriction{{Requests: c.DeliveryRateRequests, Duration: c.DeliveryRatePeriod}}
}

func (c *Config) EmailConfigured() bool {
	return c.GmailUser != "" && c.GmailAppPassword != ""
}

func (c *Config) FeedSettings() feeds.Settings {
	return feeds.Settings{
		CalendarURL:       c.CalendarICSURL,
		CalendarChannelID: c.CalendarChannelID,
		CalendarLookahead: c.CalendarLookahead,
		ReminderOffsets:   c.ReminderOffsets,
		ReminderTolerance: c.ReminderTolerance,
		CTFChannelID:      c.CTFChannelID,
		CTFTimeWindow:     c.CTFTimeWindow(),
	}
}
