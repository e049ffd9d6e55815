// Package config handles loading, parsing, and validating the engine's YAML
// configuration, with environment variable overrides for secrets and
// deployment-specific values.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropforge/twitch-drops-go/internal/constants"
)

// Duration wraps time.Duration so YAML values can be written either as a
// duration string ("300s", "5m") or as plain integer seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full engine configuration loaded from a YAML file and
// overlaid with environment variables.
type Config struct {
	Credentials   CredentialsConfig   `yaml:"credentials"`
	DataDir       string              `yaml:"data_dir"`
	TargetGames   []string            `yaml:"target_games"`
	Intervals     IntervalsConfig     `yaml:"intervals"`
	Log           LogConfig           `yaml:"log"`
	Server        ServerConfig        `yaml:"server"`
	Chat          ChatConfig          `yaml:"chat"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// CredentialsConfig holds the OAuth application credentials.
type CredentialsConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// IntervalsConfig holds the engine timing knobs.
type IntervalsConfig struct {
	Poll         Duration `yaml:"poll"`
	Heartbeat    Duration `yaml:"heartbeat"`
	ErrorBackoff Duration `yaml:"error_backoff"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir"`
	NoColor bool   `yaml:"no_color"`
}

// ServerConfig holds the status/control API settings.
type ServerConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr"`
}

// ChatConfig holds the optional IRC chat presence settings.
type ChatConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
}

// NotificationsConfig holds all notification provider configurations.
type NotificationsConfig struct {
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
	Discord  *DiscordConfig  `yaml:"discord,omitempty"`
	Webhook  *WebhookConfig  `yaml:"webhook,omitempty"`
}

// TelegramConfig holds Telegram notification settings.
type TelegramConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Token               string   `yaml:"token,omitempty"`
	ChatID              string   `yaml:"chat_id,omitempty"`
	Events              []string `yaml:"events"`
	DisableNotification bool     `yaml:"disable_notification"`
}

// DiscordConfig holds Discord webhook notification settings.
type DiscordConfig struct {
	Enabled    bool     `yaml:"enabled"`
	WebhookURL string   `yaml:"webhook_url,omitempty"`
	Events     []string `yaml:"events"`
}

// WebhookConfig holds generic webhook notification settings.
type WebhookConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Endpoint string   `yaml:"endpoint,omitempty"`
	Method   string   `yaml:"method"`
	Events   []string `yaml:"events"`
}

// Load reads the config file at path, applies defaults, and overlays
// environment variables. A missing file is not an error: the engine can run
// entirely from environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// env-only setup
	default:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Credentials.RedirectURI == "" {
		cfg.Credentials.RedirectURI = "http://localhost:5000/auth/callback"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Intervals.Poll == 0 {
		cfg.Intervals.Poll = Duration(constants.DefaultPollInterval)
	}
	if cfg.Intervals.Heartbeat == 0 {
		cfg.Intervals.Heartbeat = Duration(constants.DefaultHeartbeatInterval)
	}
	if cfg.Intervals.ErrorBackoff == 0 {
		cfg.Intervals.ErrorBackoff = Duration(constants.ErrorBackoff)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "INFO"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "0.0.0.0:5001"
	}
	if cfg.Notifications.Webhook != nil && cfg.Notifications.Webhook.Method == "" {
		cfg.Notifications.Webhook.Method = "POST"
	}
}

// applyEnvOverrides overlays environment variables. Secrets always win over
// file values so config files can be committed without credentials.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TWITCH_CLIENT_ID"); v != "" {
		cfg.Credentials.ClientID = v
	}
	if v := os.Getenv("TWITCH_CLIENT_SECRET"); v != "" {
		cfg.Credentials.ClientSecret = v
	}
	if v := os.Getenv("TWITCH_REDIRECT_URI"); v != "" {
		cfg.Credentials.RedirectURI = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MINER_TARGET_GAMES"); v != "" {
		games := strings.Split(v, ",")
		cfg.TargetGames = cfg.TargetGames[:0]
		for _, g := range games {
			if g = strings.TrimSpace(g); g != "" {
				cfg.TargetGames = append(cfg.TargetGames, g)
			}
		}
	}
	if v := os.Getenv("MINER_POLL_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Intervals.Poll = Duration(parsed)
		}
	}
	if v := os.Getenv("MINER_HEARTBEAT_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Intervals.Heartbeat = Duration(parsed)
		}
	}
	if v := os.Getenv("MINER_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		if cfg.Notifications.Discord == nil {
			cfg.Notifications.Discord = &DiscordConfig{Enabled: true}
		}
		cfg.Notifications.Discord.WebhookURL = v
	}
	if cfg.Notifications.Telegram != nil {
		if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
			cfg.Notifications.Telegram.Token = v
		}
		if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
			cfg.Notifications.Telegram.ChatID = v
		}
	}
	if cfg.Notifications.Webhook != nil {
		if v := os.Getenv("WEBHOOK_URL"); v != "" {
			cfg.Notifications.Webhook.Endpoint = v
		}
	}
}

// Validate checks the configuration for common errors.
func Validate(cfg *Config) error {
	if cfg.Credentials.ClientID == "" {
		return fmt.Errorf("client_id is required (set credentials.client_id or TWITCH_CLIENT_ID)")
	}
	if cfg.Credentials.ClientSecret == "" {
		return fmt.Errorf("client_secret is required (set credentials.client_secret or TWITCH_CLIENT_SECRET)")
	}
	if _, err := url.Parse(cfg.Credentials.RedirectURI); err != nil {
		return fmt.Errorf("redirect_uri %q is not a valid URL: %w", cfg.Credentials.RedirectURI, err)
	}

	if cfg.Intervals.Poll.Std() <= 0 {
		return fmt.Errorf("intervals.poll must be positive")
	}
	if cfg.Intervals.Heartbeat.Std() <= 0 {
		return fmt.Errorf("intervals.heartbeat must be positive")
	}

	if cfg.Chat.Enabled && cfg.Chat.Username == "" {
		return fmt.Errorf("chat enabled but chat.username not set")
	}

	if cfg.Notifications.Telegram != nil && cfg.Notifications.Telegram.Enabled {
		if cfg.Notifications.Telegram.Token == "" || cfg.Notifications.Telegram.ChatID == "" {
			return fmt.Errorf("telegram enabled but token or chat_id not set (use env vars TELEGRAM_TOKEN and TELEGRAM_CHAT_ID)")
		}
	}
	if cfg.Notifications.Discord != nil && cfg.Notifications.Discord.Enabled {
		if cfg.Notifications.Discord.WebhookURL == "" {
			return fmt.Errorf("discord enabled but webhook_url not set (use env var DISCORD_WEBHOOK_URL)")
		}
	}
	if cfg.Notifications.Webhook != nil && cfg.Notifications.Webhook.Enabled {
		if cfg.Notifications.Webhook.Endpoint == "" {
			return fmt.Errorf("webhook enabled but endpoint not set (use env var WEBHOOK_URL)")
		}
	}

	return nil
}

// ServerEnabled returns whether the status API server should run.
// Defaults to true when not specified.
func (c *Config) ServerEnabled() bool {
	if c.Server.Enabled == nil {
		return true
	}
	return *c.Server.Enabled
}
