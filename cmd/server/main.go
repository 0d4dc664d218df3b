package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/usefloww/floww-backend/internal/api"
	"github.com/usefloww/floww-backend/internal/auth"
	"github.com/usefloww/floww-backend/internal/config"
	"github.com/usefloww/floww-backend/internal/logging"
	"github.com/usefloww/floww-backend/internal/repository"
	"github.com/usefloww/floww-backend/internal/services"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"auth_provider", cfg.Auth.Provider,
		"centrifugo_host", cfg.Centrifugo.Host,
	)

	logger.Info("Starting floww realtime backend")

	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer dbPool.Close()

	logger.Info("Database connected")

	store := repository.NewPostgresStore(dbPool)

	provider, err := auth.NewProvider(cfg)
	if err != nil {
		logger.Error("Failed to initialize identity provider", "error", err)
		log.Fatalf("Auth initialization failed: %v", err)
	}
	authz := auth.New(provider, store, logger)

	accessService := services.NewAccessService(store)
	tokenService := services.NewChannelTokenService(accessService, cfg.Centrifugo.TokenHMACSecret)

	brokerURL := fmt.Sprintf("http://%s:%d", cfg.Centrifugo.Host, cfg.Centrifugo.Port)
	publisher := services.NewCentrifugoService(brokerURL, cfg.Centrifugo.APIKey, logger)

	logger.Info("Service layer initialized", "broker", brokerURL)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.Centrifugo.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Centrifugo.AllowedOrigins,
		}))
	}

	server := api.NewServer(authz, accessService, tokenService, publisher, store, logger, cfg.Centrifugo.AllowAnonymous)

	// Broker callbacks, webhook ingestion and health stay outside the auth
	// middleware; the connect proxy verifies the forwarded header itself so
	// denials reach the broker as error objects rather than HTTP 401s.
	server.RegisterPublicRoutes(e)

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(authz.RequireAuth)
	server.RegisterAPIRoutes(apiGroup)

	logger.Info("HTTP handlers mounted")

	httpServer := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", httpServer.Addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := httpServer.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
