// cmd/scrims/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssesports/scrims-bot/internal/audit"
	"github.com/ssesports/scrims-bot/internal/config"
	"github.com/ssesports/scrims-bot/internal/dashboard"
	"github.com/ssesports/scrims-bot/internal/discord"
	"github.com/ssesports/scrims-bot/internal/registry"
	"github.com/ssesports/scrims-bot/internal/storage"
	v "github.com/ssesports/scrims-bot/internal/version"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	log.Info().Str("app", v.AppName).Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	state, err := storage.New(cfg.StoragePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("storage open failed")
	}
	defer state.Close()

	trail := audit.New(cfg.AuditLogPath)

	store := registry.NewStore(state, cfg.DuplicateGrace)
	timers := registry.NewTimers()

	bot := discord.NewBot(cfg, store, state, trail, log)
	trail.AddSink(bot)

	engine := registry.NewEngine(store, timers, registry.Options{
		PendingExpiry:       cfg.PendingExpiry,
		PaymentTimeout:      cfg.PaymentTimeout,
		LobbyCapacity:       cfg.LobbyCapacity,
		TypeCapacity:        cfg.TypeCapacity,
		EnforceTypeCapacity: cfg.EnforceTypeCapacity,
		AutoBlacklist:       cfg.AutoBlacklist,
	}, cfg.MatchTypes(), registry.Collaborators{
		Messenger: bot,
		Access:    bot,
		Boards:    bot,
		Blacklist: state,
		Audit:     trail,
	}, log)
	bot.SetEngine(engine)
	defer engine.Shutdown()

	if cfg.DashboardToken != "" {
		dash, err := dashboard.New(engine, store, state, bot, cfg.Lobbies(), cfg.LobbyCapacity, cfg.DashboardToken, log)
		if err != nil {
			log.Fatal().Err(err).Msg("dashboard setup failed")
		}
		go func() {
			if err := dash.Run(ctx, cfg.DashboardAddr); err != nil {
				log.Error().Err(err).Msg("dashboard error")
			}
		}()
	} else {
		log.Warn().Msg("no dashboard token configured, staff API disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("bot error")
		}
		cancel()
	case <-ctx.Done():
	}

	log.Info().Msg("exited cleanly")
}
