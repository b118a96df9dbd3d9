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
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/david2928/wedding-sub000/internal/gateway"
	"github.com/david2928/wedding-sub000/internal/reveal"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer pool.Close()

	services, err := setupServices(pool, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	defer func() {
		if err := services.Publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close broadcast publisher")
		}
	}()

	natsURL := getEnv("NATS_URL", config.NATS.URL)
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	// WebSocket fan-out: NATS events → connected clients
	connectionManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	go connectionManager.Start(ctx)

	gatewayConsumerConfig := gateway.DefaultEventConsumerConfig()
	gatewayConsumerConfig.URL = natsURL
	gatewayConsumer, err := gateway.NewEventConsumer(connectionManager, gatewayConsumerConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway event consumer")
	}
	go func() {
		if err := gatewayConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway event consumer stopped")
		}
	}()
	defer gatewayConsumer.Stop()

	// Auto-reveal: store-polled scheduler plus event-armed timers
	go func() {
		if err := services.Orchestrator.RunScheduler(ctx); err != nil {
			log.Error().Err(err).Msg("reveal scheduler stopped")
		}
	}()

	revealConsumerConfig := reveal.DefaultConsumerConfig()
	revealConsumerConfig.URL = natsURL
	revealConsumer, err := reveal.NewEventConsumer(services.Orchestrator, revealConsumerConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create reveal event consumer")
	}
	go func() {
		if err := revealConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("reveal event consumer stopped")
		}
	}()
	defer revealConsumer.Stop()

	server := setupServer(services, connectionManager)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("quiz server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
