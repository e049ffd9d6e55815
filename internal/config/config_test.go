package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "http://localhost:5000/auth/callback", cfg.Credentials.RedirectURI)
	assert.Equal(t, 300*time.Second, cfg.Intervals.Poll.Std())
	assert.Equal(t, 30*time.Second, cfg.Intervals.Heartbeat.Std())
	assert.Equal(t, 30*time.Second, cfg.Intervals.ErrorBackoff.Std())
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0:5001", cfg.Server.Addr)
	assert.True(t, cfg.ServerEnabled())
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, `
credentials:
  client_id: abc123
  client_secret: shhh
  redirect_uri: "http://127.0.0.1:9000/auth/callback"
data_dir: /var/lib/miner
target_games:
  - Rust
  - "Sea of Thieves"
intervals:
  poll: 2m
  heartbeat: 15
log:
  level: DEBUG
  dir: /var/log/miner
server:
  enabled: false
  addr: "127.0.0.1:8088"
chat:
  enabled: true
  username: drops_bot
notifications:
  discord:
    enabled: true
    webhook_url: "https://discord.example/hook"
    events: [DROP_CLAIM]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc123", cfg.Credentials.ClientID)
	assert.Equal(t, "http://127.0.0.1:9000/auth/callback", cfg.Credentials.RedirectURI)
	assert.Equal(t, "/var/lib/miner", cfg.DataDir)
	assert.Equal(t, []string{"Rust", "Sea of Thieves"}, cfg.TargetGames)
	assert.Equal(t, 2*time.Minute, cfg.Intervals.Poll.Std())
	assert.Equal(t, 15*time.Second, cfg.Intervals.Heartbeat.Std())
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.False(t, cfg.ServerEnabled())
	assert.Equal(t, "127.0.0.1:8088", cfg.Server.Addr)
	assert.True(t, cfg.Chat.Enabled)
	require.NotNil(t, cfg.Notifications.Discord)
	assert.Equal(t, "https://discord.example/hook", cfg.Notifications.Discord.WebhookURL)

	require.NoError(t, Validate(cfg))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "credentials: [not: a: mapping\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "env-client")
	t.Setenv("TWITCH_CLIENT_SECRET", "env-secret")
	t.Setenv("TWITCH_REDIRECT_URI", "http://env.example/cb")
	t.Setenv("DATA_DIR", "/tmp/env-data")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("MINER_TARGET_GAMES", " Rust , Valorant ,")
	t.Setenv("MINER_POLL_INTERVAL", "90s")
	t.Setenv("MINER_SERVER_ADDR", "0.0.0.0:7777")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.Credentials.ClientID)
	assert.Equal(t, "env-secret", cfg.Credentials.ClientSecret)
	assert.Equal(t, "http://env.example/cb", cfg.Credentials.RedirectURI)
	assert.Equal(t, "/tmp/env-data", cfg.DataDir)
	assert.Equal(t, "WARN", cfg.Log.Level)
	assert.Equal(t, []string{"Rust", "Valorant"}, cfg.TargetGames)
	assert.Equal(t, 90*time.Second, cfg.Intervals.Poll.Std())
	assert.Equal(t, "0.0.0.0:7777", cfg.Server.Addr)
}

func TestEnvSecretsWinOverFile(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_SECRET", "env-secret")

	path := writeConfig(t, `
credentials:
  client_id: file-client
  client_secret: file-secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-client", cfg.Credentials.ClientID)
	assert.Equal(t, "env-secret", cfg.Credentials.ClientSecret)
}

func TestDiscordWebhookEnvCreatesProvider(t *testing.T) {
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example/env-hook")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.NotNil(t, cfg.Notifications.Discord)
	assert.True(t, cfg.Notifications.Discord.Enabled)
	assert.Equal(t, "https://discord.example/env-hook", cfg.Notifications.Discord.WebhookURL)
}

func TestDurationYAMLForms(t *testing.T) {
	type doc struct {
		D Duration `yaml:"d"`
	}

	var plain doc
	require.NoError(t, yaml.Unmarshal([]byte("d: 90"), &plain))
	assert.Equal(t, 90*time.Second, plain.D.Std())

	var str doc
	require.NoError(t, yaml.Unmarshal([]byte(`d: 2m30s`), &str))
	assert.Equal(t, 150*time.Second, str.D.Std())

	var bad doc
	require.Error(t, yaml.Unmarshal([]byte(`d: soon`), &bad))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		cfg.Credentials.ClientID = "id"
		cfg.Credentials.ClientSecret = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing client id", func(c *Config) { c.Credentials.ClientID = "" }, "client_id"},
		{"missing client secret", func(c *Config) { c.Credentials.ClientSecret = "" }, "client_secret"},
		{"zero poll interval", func(c *Config) { c.Intervals.Poll = 0 }, "intervals.poll"},
		{"negative heartbeat", func(c *Config) { c.Intervals.Heartbeat = Duration(-time.Second) }, "intervals.heartbeat"},
		{"chat without username", func(c *Config) { c.Chat.Enabled = true }, "chat.username"},
		{
			"telegram without token",
			func(c *Config) { c.Notifications.Telegram = &TelegramConfig{Enabled: true, ChatID: "42"} },
			"telegram",
		},
		{
			"discord without webhook",
			func(c *Config) { c.Notifications.Discord = &DiscordConfig{Enabled: true} },
			"discord",
		},
		{
			"webhook without endpoint",
			func(c *Config) { c.Notifications.Webhook = &WebhookConfig{Enabled: true} },
			"webhook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerEnabled(t *testing.T) {
	var cfg Config
	assert.True(t, cfg.ServerEnabled())

	off := false
	cfg.Server.Enabled = &off
	assert.False(t, cfg.ServerEnabled())

	on := true
	cfg.Server.Enabled = &on
	assert.True(t, cfg.ServerEnabled())
}
