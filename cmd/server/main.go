package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/relay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	setupLogger()

	config := relay.NewConfigFromEnv()
	relay.SetConfig(config)

	relay.StartHub()

	router := relay.SetupRoutes()
	httpServer := relay.CreateServer(config.Port, router)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- relay.StartServer(httpServer)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}

	if err := relay.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := relay.GetHub().Shutdown(shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("hub shutdown incomplete")
	}
}

func setupLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// JSON logs in prod, console output everywhere else.
	if os.Getenv("APP_ENV") != "prod" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
