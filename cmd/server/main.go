package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weather-etl/internal/config"
	"weather-etl/internal/handlers"
	"weather-etl/internal/repository"
	"weather-etl/internal/scheduler"
	"weather-etl/internal/services"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("weather-api", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting weather ETL API server", logging.Fields{
		"version":     "1.0.0",
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"db_name":     cfg.Database.Database,
	})

	metricsCollector := metrics.NewCollector("weather_etl", nil)

	db, err := database.Open(cfg.DBConfig(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)

	pagination := services.Pagination{
		DefaultPageSize:   cfg.API.DefaultPageSize,
		DefaultPageNumber: cfg.API.DefaultPageNumber,
		MaxPageSize:       cfg.API.MaxPageSize,
	}
	weatherService := services.NewWeatherService(weatherRepo, pagination, logger, metricsCollector)
	statsService := services.NewStatisticsService(weatherRepo, logger, metricsCollector)

	weatherHandler := handlers.NewWeatherHandler(weatherService, weatherRepo, logger, metricsCollector)

	router := mux.NewRouter()
	weatherHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	refresh := scheduler.New(statsService, cfg.Transform.SourceTable, cfg.Transform.RefreshInterval, logger)
	if err := refresh.Start(); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to schedule transform refresh", logging.Fields{}, err)
	}
	defer refresh.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
