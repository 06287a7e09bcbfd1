package main

import (
	"net/http"
	"time"

	"github.com/meridiantt/wayfarer/internal/assistant"
	"github.com/meridiantt/wayfarer/internal/chat"
	"github.com/meridiantt/wayfarer/internal/clients"
	"github.com/meridiantt/wayfarer/internal/config"
	"github.com/meridiantt/wayfarer/internal/logging"
	"github.com/meridiantt/wayfarer/internal/monitoring"
	"github.com/meridiantt/wayfarer/internal/server"
	"github.com/meridiantt/wayfarer/internal/tourvisor"
	"github.com/meridiantt/wayfarer/internal/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("wayfarer")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Wayfarer (AI Travel Consultant API)")

	cfg := config.LoadConfig()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("wayfarer", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("wayfarer", version.Version, version.GitCommit)

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"ASSISTANT_API_KEY": cfg.AssistantAPIKey,
		"ASSISTANT_ID":      cfg.AssistantID,
		"TOURVISOR_LOGIN":   cfg.TourvisorLogin,
		"TOURVISOR_PASS":    cfg.TourvisorPassword,
	}))
	healthChecker.AddCheck("tourvisor", monitoring.HTTPHealthCheck(
		&http.Client{Timeout: 5 * time.Second},
		cfg.TourvisorBaseURL,
	))

	assistantClient, err := assistant.NewClient(assistant.Config{
		APIURL:      cfg.AssistantAPIURL,
		APIKey:      cfg.AssistantAPIKey,
		AssistantID: cfg.AssistantID,
		Timeout:     cfg.HTTPTimeout,
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize assistant client")
	}

	searchBreaker := clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:   "tourvisor",
		Logger: logger,
	})
	retry := clients.DefaultRetryConfig()
	retry.MaxRetries = cfg.RetryMaxAttempts
	retry.BaseDelay = cfg.RetryBaseDelay
	retry.CircuitBreaker = searchBreaker

	tourvisorClient, err := tourvisor.NewClient(tourvisor.Config{
		BaseURL:         cfg.TourvisorBaseURL,
		Login:           cfg.TourvisorLogin,
		Password:        cfg.TourvisorPassword,
		Timeout:         cfg.HTTPTimeout,
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
		Retry:           retry,
		Logger:          logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tour search client")
	}

	registry := chat.NewRegistry(logger)
	registry.Register(chat.NewSearchToursTool(tourvisorClient, cfg.SearchResultLimit, logger))

	bridge := chat.NewBridge(assistantClient, registry, logger)
	gate := chat.NewSessionGate()
	chatHandler := chat.NewChatHandler(assistantClient, bridge, gate, logger)
	chatHandler.KeepAliveInterval = cfg.KeepAliveInterval

	// Setup router with unified monitoring
	router := server.SetupRouter(logger)
	router.Use(metricsCollector.MetricsMiddleware())
	router.GET("/health", healthChecker.Handler())
	router.GET("/metrics", metricsCollector.Handler())
	chat.RegisterRoutes(router, chatHandler)

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig("wayfarer", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
