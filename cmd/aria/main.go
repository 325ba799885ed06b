// Command aria is the Discord music bot server: it connects the Discord
// gateway, a Lavalink v4 audio node and PostgreSQL, and serves metrics and
// health endpoints over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyeonsong/aria/internal/config"
	discordbot "github.com/hyeonsong/aria/internal/discord"
	"github.com/hyeonsong/aria/internal/health"
	"github.com/hyeonsong/aria/internal/i18n"
	"github.com/hyeonsong/aria/internal/lavalink"
	"github.com/hyeonsong/aria/internal/observe"
	"github.com/hyeonsong/aria/internal/player"
	"github.com/hyeonsong/aria/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aria: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aria: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("aria starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "aria"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	// ── Persistence ───────────────────────────────────────────────────────────
	pg, pool, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		return 1
	}
	defer pool.Close()

	// ── Localization ──────────────────────────────────────────────────────────
	catalog, err := i18n.New(cfg.I18n.DefaultLocale)
	if err != nil {
		slog.Error("failed to load locale catalogs", "err", err)
		return 1
	}
	if cfg.I18n.Dir != "" {
		if err := catalog.LoadDir(cfg.I18n.Dir); err != nil {
			slog.Error("failed to overlay locale directory", "dir", cfg.I18n.Dir, "err", err)
			return 1
		}
	}

	// ── Discord gateway ───────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:   cfg.Discord.Token,
		GuildID: cfg.Discord.GuildID,
	})
	if err != nil {
		slog.Error("failed to connect to Discord", "err", err)
		return 1
	}
	slog.Info("discord gateway connected", "user_id", bot.Session().State.User.ID)

	// ── Audio node ────────────────────────────────────────────────────────────
	nodeCfg := lavalink.Config{
		Address:  cfg.Lavalink.Address,
		Password: cfg.Lavalink.Password,
		Secure:   cfg.Lavalink.Secure,
		UserID:   bot.Session().State.User.ID,
	}
	node := lavalink.NewClient(nodeCfg)

	// ── Playback orchestrator ─────────────────────────────────────────────────
	manager := player.New(player.Config{
		Backend:    node,
		Platform:   bot.Platform(catalog),
		Store:      pg,
		Translator: catalog,
		Metrics:    metrics,
		MaxVolume:  cfg.Player.MaxVolume,
		IdleWindow: cfg.Player.IdleWindow.Std(),
		WindowTTL:  cfg.Player.WindowTTL.Std(),
	})

	events := lavalink.NewNode(nodeCfg, node, manager, metrics)
	go func() {
		if err := events.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("node event loop error", "err", err)
		}
	}()

	// ── Command surface ───────────────────────────────────────────────────────
	commands := discordbot.NewPlayerCommands(manager, bot.Platform(catalog), catalog, pg, pg, events.Connected)
	if err := commands.LoadDedicatedChannels(ctx); err != nil {
		slog.Warn("dedicated channel cache load failed", "err", err)
	}
	bot.Bind(manager, commands, node, catalog)

	// ── HTTP: metrics + health ────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(
		health.Database(pool),
		health.AudioNode(events.Connected),
	).Register(mux)

	httpSrv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()

	go func() {
		if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("discord bot error", "err", err)
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down")
	<-ctx.Done()
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		slog.Warn("player shutdown error", "err", err)
	}
	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
