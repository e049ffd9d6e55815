// Command miner runs the Twitch drops mining engine: it discovers active
// drop campaigns, watches their channels, claims earned rewards, and
// exposes a JSON control API with a WebSocket event feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/dropforge/twitch-drops-go/internal/auth"
	"github.com/dropforge/twitch-drops-go/internal/chat"
	"github.com/dropforge/twitch-drops-go/internal/config"
	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/errtrack"
	"github.com/dropforge/twitch-drops-go/internal/events"
	"github.com/dropforge/twitch-drops-go/internal/gql"
	"github.com/dropforge/twitch-drops-go/internal/logger"
	"github.com/dropforge/twitch-drops-go/internal/metrics"
	"github.com/dropforge/twitch-drops-go/internal/miner"
	"github.com/dropforge/twitch-drops-go/internal/model"
	"github.com/dropforge/twitch-drops-go/internal/notify"
	"github.com/dropforge/twitch-drops-go/internal/pubsub"
	"github.com/dropforge/twitch-drops-go/internal/server"
)

const banner = `
╔══════════════════════════════════════╗
║       Twitch Drops Miner (Go)        ║
╚══════════════════════════════════════╝
`

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	addr := flag.String("addr", "", "Listen address for the status API (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides config)")
	noColor := flag.Bool("no-color", false, "Disable colored output (overrides TTY detection)")
	noAutostart := flag.Bool("no-autostart", false, "Do not start mining on boot; wait for POST /api/start")
	flag.Parse()

	// A .env file is optional; real environment variables still win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	colored := !*noColor && !cfg.Log.NoColor &&
		term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

	log, err := logger.Setup(logger.Config{
		Level:     logger.ParseLevel(cfg.Log.Level),
		FileLevel: slog.LevelDebug,
		Colored:   colored,
		LogDir:    cfg.Log.Dir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(banner)
	log.Info("🚀 Starting Twitch drops miner")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("Received shutdown signal", "signal", sig.String())
		cancel()

		time.AfterFunc(30*time.Second, func() {
			log.Error("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		})
	}()

	met := metrics.NewMetrics("drops")

	store := auth.NewFileStore(filepath.Join(cfg.DataDir, constants.DefaultTokenFile))
	authMgr := auth.NewManager(
		cfg.Credentials.ClientID,
		cfg.Credentials.ClientSecret,
		cfg.Credentials.RedirectURI,
		store, met, log,
	)

	dispatcher := events.NewDispatcher(log)
	defer dispatcher.Close()

	notifier := notify.NewDispatcher(cfg.Notifications, log)
	if notifier.HasNotifiers() {
		log.SetNotifyFunc(notifier.NotifyFunc())
	}

	api := gql.NewClient(authMgr, met, log)
	m := miner.New(miner.Config{
		PollInterval:      cfg.Intervals.Poll.Std(),
		HeartbeatInterval: cfg.Intervals.Heartbeat.Std(),
		ErrorBackoff:      cfg.Intervals.ErrorBackoff.Std(),
	}, api, authMgr, dispatcher, errtrack.New(0), met, log)

	g, gctx := errgroup.WithContext(ctx)

	// Keeps g.Wait blocked until shutdown even when the API server and
	// chat presence are both disabled.
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	var srv *server.Server
	if cfg.ServerEnabled() {
		srv = server.New(server.Config{
			Addr:        cfg.Server.Addr,
			TargetGames: cfg.TargetGames,
		}, m, authMgr, dispatcher, met, log)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if cfg.Chat.Enabled {
		if token, err := authMgr.AccessToken(ctx); err != nil {
			log.Warn("Chat presence disabled, authenticate and restart to enable", "error", err)
		} else {
			presence := chat.NewManager(cfg.Chat.Username, token, log)
			m.SetPresence(presence)
			g.Go(func() error { return presence.Run(gctx) })
		}
	}

	// Drop events pushed over PubSub credit progress between poll cycles.
	if authMgr.Authenticated() {
		feed := pubsub.NewListener(authMgr.UserID(), authMgr, m, log)
		g.Go(func() error { return feed.Run(gctx) })
	}

	if err := config.Watch(gctx, *configPath, func(next *config.Config) {
		log.SetLevel(logger.ParseLevel(next.Log.Level))
		if srv != nil {
			srv.SetTargetGames(next.TargetGames)
		}
		log.Info("🔄 Config reloaded",
			"log_level", next.Log.Level,
			"target_games", len(next.TargetGames),
		)
	}); err != nil {
		log.Warn("Config hot-reload unavailable", "error", err)
	}

	if !*noAutostart {
		switch {
		case !authMgr.Authenticated():
			log.Info("🔑 Not authenticated, open /auth/login to connect an account")
		default:
			if err := m.Start(ctx, cfg.TargetGames...); err != nil {
				if errors.Is(err, miner.ErrNoCampaigns) {
					log.Info("No matching campaigns yet, retry via POST /api/start")
				} else {
					log.Error("Mining failed to start", "error", err)
				}
			}
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Component failed", "error", err)
	}

	if s := m.State(); s == model.StateRunning || s == model.StatePaused {
		if err := m.Stop(); err != nil {
			log.Warn("Stopping miner failed", "error", err)
		}
	}

	log.Info("👋 Shutdown complete")
}
