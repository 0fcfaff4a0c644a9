package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mteedev/lighthouse-bridge/internal/admin"
	"github.com/mteedev/lighthouse-bridge/internal/config"
	"github.com/mteedev/lighthouse-bridge/internal/hsclient"
	"github.com/mteedev/lighthouse-bridge/internal/httpapi"
	"github.com/mteedev/lighthouse-bridge/internal/puppet"
	"github.com/mteedev/lighthouse-bridge/internal/relay"
	"github.com/mteedev/lighthouse-bridge/internal/simclient"
	"github.com/mteedev/lighthouse-bridge/internal/store"
)

var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", envOr("LIGHTHOUSE_CONFIG", "./config.yaml"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// CONFIG errors are fatal at startup (§7).
		zerolog.New(zerolog.NewConsoleWriter()).Fatal().Err(err).Msg("Failed to load config")
	}

	log := newLogger(cfg.Server.LogLevel)
	log.Info().Str("tag", Tag).Str("commit", Commit).Str("build_time", BuildTime).Msg("Starting lighthouse-bridge")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URI(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	hs := hsclient.New(cfg.Matrix.BaseURL, cfg.Matrix.Homeserver, cfg.Matrix.BotLocalpart, cfg.Matrix.ASToken, cfg.Matrix.HSToken)
	sim := simclient.New(cfg.Sim.RegionURL, cfg.Sim.BridgeSecret)

	puppetEngine := puppet.New(hs, st, cfg.Avatar.BaseURL, cfg.Matrix.Homeserver, log)
	relayEngine := relay.New(hs, sim, st, puppetEngine, cfg.Matrix.BotLocalpart, log)
	adminEngine := admin.New(hs, st, puppetEngine, cfg.Matrix.Homeserver, log)

	server := httpapi.New(relayEngine, adminEngine, st, cfg.Matrix.ASToken, cfg.Matrix.HSToken, cfg.Sim.BridgeSecret, cfg.Matrix.Homeserver, cfg.Matrix.BotMXID(), log)

	// One listener serves everything: the AppService transaction/user-query
	// surface, the admin endpoints, and /sim/event. There is no separate
	// OpenSim-facing bind.
	httpServer := &http.Server{
		Addr:    cfg.Server.AppServiceHost + ":" + strconv.Itoa(cfg.Server.AppServicePort),
		Handler: server.Router,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Listening for HTTP requests")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.NewConsoleWriter()).Level(lvl).With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

