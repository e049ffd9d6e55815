package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchableConfig = `
credentials:
  client_id: abc123
  client_secret: shhh
target_games: [Rust]
log:
  level: INFO
`

func TestWatchReloadsOnChange(t *testing.T) {
	path := writeConfig(t, watchableConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, func(cfg *Config) {
		reloaded <- cfg
	}))

	updated := `
credentials:
  client_id: abc123
  client_secret: shhh
target_games: [Valorant, Fortnite]
log:
  level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, []string{"Valorant", "Fortnite"}, cfg.TargetGames)
		assert.Equal(t, "DEBUG", cfg.Log.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatchSkipsInvalidReload(t *testing.T) {
	path := writeConfig(t, watchableConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, func(cfg *Config) {
		reloaded <- cfg
	}))

	// A reload that fails validation is dropped silently.
	require.NoError(t, os.WriteFile(path, []byte("credentials:\n  client_id: only\n"), 0o644))

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config was delivered: %+v", cfg)
	case <-time.After(700 * time.Millisecond):
	}

	// The next valid write still comes through.
	require.NoError(t, os.WriteFile(path, []byte(watchableConfig), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, []string{"Rust"}, cfg.TargetGames)
	case <-time.After(3 * time.Second):
		t.Fatal("valid config change was not observed")
	}
}

func TestWatchMissingDirectoryFails(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent-dir-for-watch/config.yaml", func(*Config) {})
	require.Error(t, err)
}
