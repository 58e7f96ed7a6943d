package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "ARXIV_ALERT_CONFIG"
	ledgerDSNEnv    = "LEDGER_DSN"
	smtpUsernameEnv = "SMTP_USERNAME"
	smtpPasswordEnv = "SMTP_PASSWORD"
	chatWebhookEnv  = "CHAT_WEBHOOK_URL"
	webhookTokenEnv = "WEBHOOK_AUTH_TOKEN"
)

// Channel protocol kinds recognized in configuration.
const (
	KindEmail          = "email"
	KindChatWebhook    = "chat-webhook"
	KindGenericWebhook = "generic-webhook"
)

// Config holds high-level settings required across the application.
type Config struct {
	Ledger    LedgerConfig    `yaml:"ledger"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Filter    FilterConfig    `yaml:"filter"`
	Retry     RetryConfig     `yaml:"retry"`
	Channels  []ChannelConfig `yaml:"channels"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sites     []SiteConfig    `yaml:"sites"`
}

// LedgerConfig describes the durable sent-papers store.
type LedgerConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	// Path is the database file for the sqlite driver.
	Path string `yaml:"path"`
	// DSN is the connection string for the postgres driver.
	DSN string `yaml:"dsn"`
	// BusyTimeout applies to sqlite only; empty means driver default.
	BusyTimeout string `yaml:"busyTimeout"`

	busyTimeout time.Duration `yaml:"-"`
}

// BusyTimeoutDuration returns the parsed sqlite busy timeout.
func (l LedgerConfig) BusyTimeoutDuration() time.Duration {
	return l.busyTimeout
}

// SchedulerConfig defines when dispatch cycles run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// FilterConfig narrows fetched papers by keyword before dispatch.
type FilterConfig struct {
	TitleKeywords    []string `yaml:"titleKeywords"`
	AbstractKeywords []string `yaml:"abstractKeywords"`
}

// RetryConfig bounds delivery retries for all channels.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"maxAttempts"`
	BaseDelay      string  `yaml:"baseDelay"`
	MaxDelay       string  `yaml:"maxDelay"`
	JitterFraction float64 `yaml:"jitterFraction"`

	baseDelay time.Duration `yaml:"-"`
	maxDelay  time.Duration `yaml:"-"`
}

// BaseDelayDuration returns the parsed base backoff delay.
func (r RetryConfig) BaseDelayDuration() time.Duration { return r.baseDelay }

// MaxDelayDuration returns the parsed backoff ceiling.
func (r RetryConfig) MaxDelayDuration() time.Duration { return r.maxDelay }

// ChannelConfig wires one notification surface.
type ChannelConfig struct {
	ID      string         `yaml:"id"`
	Kind    string         `yaml:"kind"`
	Email   *EmailConfig   `yaml:"email,omitempty"`
	Chat    *ChatConfig    `yaml:"chat,omitempty"`
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`
}

// EmailConfig holds SMTP digest delivery settings.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// ChatConfig holds chat webhook (Slack-style) settings.
type ChatConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	MaxPerMessage int    `yaml:"maxPerMessage"`
	RatePerSec    int    `yaml:"ratePerSec"`
}

// WebhookConfig holds generic webhook settings.
type WebhookConfig struct {
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
	AuthHeader string `yaml:"authHeader"`
	AuthToken  string `yaml:"authToken"`
	BatchSize  int    `yaml:"batchSize"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" (default) or "json"
}

// SiteConfig describes a single catalog site with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds the concrete endpoints to crawl (e.g., arXiv category URLs).
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	if err := cfg.bindDurations(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg, nil
}

// Validate checks channel wiring before the application starts.
func (c Config) Validate() error {
	seen := map[string]bool{}
	for i, ch := range c.Channels {
		if strings.TrimSpace(ch.ID) == "" {
			return fmt.Errorf("config: channel %d: id is required", i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("config: duplicate channel id %q", ch.ID)
		}
		seen[ch.ID] = true

		switch ch.Kind {
		case KindEmail:
			if ch.Email == nil || ch.Email.Host == "" || len(ch.Email.To) == 0 {
				return fmt.Errorf("config: channel %q: email requires host and recipients", ch.ID)
			}
		case KindChatWebhook:
			if ch.Chat == nil || ch.Chat.URL == "" {
				return fmt.Errorf("config: channel %q: chat-webhook requires url", ch.ID)
			}
		case KindGenericWebhook:
			if ch.Webhook == nil || ch.Webhook.URL == "" {
				return fmt.Errorf("config: channel %q: generic-webhook requires url", ch.ID)
			}
		default:
			return fmt.Errorf("config: channel %q: unknown kind %q", ch.ID, ch.Kind)
		}
	}

	switch c.Ledger.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown ledger driver %q", c.Ledger.Driver)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(ledgerDSNEnv); v != "" {
		c.Ledger.DSN = v
	}

	for i := range c.Channels {
		ch := &c.Channels[i]
		switch ch.Kind {
		case KindEmail:
			if ch.Email == nil {
				continue
			}
			if v := os.Getenv(smtpUsernameEnv); v != "" {
				ch.Email.Username = v
			}
			if v := os.Getenv(smtpPasswordEnv); v != "" {
				ch.Email.Password = v
			}
		case KindChatWebhook:
			if ch.Chat == nil {
				continue
			}
			if v := os.Getenv(chatWebhookEnv); v != "" {
				ch.Chat.URL = v
			}
		case KindGenericWebhook:
			if ch.Webhook == nil {
				continue
			}
			if v := os.Getenv(webhookTokenEnv); v != "" {
				ch.Webhook.AuthToken = v
			}
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func (c *Config) bindDurations() error {
	var err error
	if c.Retry.baseDelay, err = parseDurationOrDefault("retry.baseDelay", c.Retry.BaseDelay, time.Second); err != nil {
		return err
	}
	if c.Retry.maxDelay, err = parseDurationOrDefault("retry.maxDelay", c.Retry.MaxDelay, 30*time.Second); err != nil {
		return err
	}
	if c.Ledger.busyTimeout, err = parseDurationOrDefault("ledger.busyTimeout", c.Ledger.BusyTimeout, 5*time.Second); err != nil {
		return err
	}
	return nil
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s: duration must be >= 0", path)
	}
	return d, nil
}

func mergeConfig(base, override Config) Config {
	if override.Ledger.Driver != "" {
		base.Ledger.Driver = override.Ledger.Driver
	}
	if override.Ledger.Path != "" {
		base.Ledger.Path = override.Ledger.Path
	}
	if override.Ledger.DSN != "" {
		base.Ledger.DSN = override.Ledger.DSN
	}
	if override.Ledger.BusyTimeout != "" {
		base.Ledger.BusyTimeout = override.Ledger.BusyTimeout
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if len(override.Filter.TitleKeywords) > 0 {
		base.Filter.TitleKeywords = override.Filter.TitleKeywords
	}
	if len(override.Filter.AbstractKeywords) > 0 {
		base.Filter.AbstractKeywords = override.Filter.AbstractKeywords
	}

	if override.Retry.MaxAttempts > 0 {
		base.Retry.MaxAttempts = override.Retry.MaxAttempts
	}
	if override.Retry.BaseDelay != "" {
		base.Retry.BaseDelay = override.Retry.BaseDelay
	}
	if override.Retry.MaxDelay != "" {
		base.Retry.MaxDelay = override.Retry.MaxDelay
	}
	if override.Retry.JitterFraction > 0 {
		base.Retry.JitterFraction = override.Retry.JitterFraction
	}

	if len(override.Channels) > 0 {
		base.Channels = override.Channels
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Ledger:    LedgerConfig{Driver: "sqlite", Path: "arxiv_papers.db"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Retry: RetryConfig{
			MaxAttempts:    3,
			JitterFraction: 0.2,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Sites: []SiteConfig{
			{
				Name:    "arxiv-default",
				Scanner: "arxiv",
				Categories: []CategoryConfig{
					{Name: "cs.AI", URL: "https://export.arxiv.org/list/cs.AI/pastweek"},
				},
			},
		},
	}
}
