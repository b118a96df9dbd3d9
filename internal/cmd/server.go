package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/david2928/wedding-sub000/internal/gateway"
)

func setupServer(services *Services, connectionManager *gateway.ConnectionManager) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register handlers
	registerHandlers(mux, services, connectionManager)

	// Add health check endpoint
	setupHealthCheck(mux)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", getEnv("PORT", "8080")),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerHandlers(mux *http.ServeMux, services *Services, connectionManager *gateway.ConnectionManager) {
	// Recovery endpoints: every client reconstructs state from these.
	stateHandler := gateway.NewStateHandler(services.State)
	stateHandler.RegisterStateRoutes(mux)

	// Admin control surface
	controlHandler := gateway.NewControlHandler(services.Sessions, stateHandler, services.Orchestrator, services.Config.Quiz.DefaultTimeLimitSec)
	controlHandler.RegisterControlRoutes(mux)

	// Guest-facing join/answer surface
	playHandler := gateway.NewPlayHandler(services.Participants, services.Answers)
	playHandler.RegisterPlayRoutes(mux)

	// WebSocket fan-out
	wsHandler := gateway.NewWebSocketHandler(connectionManager)
	wsHandler.RegisterRoutes(mux)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
