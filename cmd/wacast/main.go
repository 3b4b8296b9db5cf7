package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wacast/internal/config"
	"wacast/internal/constants"
	"wacast/internal/database"
	"wacast/internal/retry"
	"wacast/internal/service"
	"wacast/internal/tracing"
	"wacast/pkg/wagateway"
	"wacast/pkg/wagateway/types"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	if *version {
		fmt.Printf("wacast %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wacast")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// The database container may still be coming up; retry the open.
	var db *database.Database
	backoff := retry.New(cfg.Retry)
	err = backoff.Do(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	apiKey := os.Getenv("WACAST_GATEWAY_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("WACAST_GATEWAY_API_KEY environment variable is required")
	}

	gateway := wagateway.NewClient(types.ClientConfig{
		BaseURL:    cfg.Gateway.APIBaseURL,
		APIKey:     apiKey,
		Timeout:    time.Duration(cfg.Gateway.TimeoutSec) * time.Second,
		RetryCount: cfg.Gateway.RetryCount,
	})

	registry := service.NewRegistry(gateway, db, cfg.Gateway, logger)
	bindings, err := db.ListSessionBindings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session bindings: %w", err)
	}
	for _, b := range bindings {
		registry.Register(b.SessionID, b.DevicePK)
	}
	logger.WithField("sessions", len(bindings)).Info("Session registry initialized")

	ledger := service.NewDedupLedger()
	dispatcher := service.NewDispatcher(db, registry, ledger, cfg.Dispatch, logger)
	if err := dispatcher.Start(ctx, cfg.Dispatch.Spec); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer dispatcher.Stop()

	gate := service.NewBusinessHourGate(db, registry, logger)
	campaigns := service.NewCampaignReplyHandler(db, registry, logger)
	router := service.NewInboundRouter(gate, campaigns, nil, logger)

	if cfg.Gateway.EventsURL != "" {
		events := wagateway.NewEventStream(cfg.Gateway.EventsURL, apiKey, router.HandleEvent, logger)
		go events.Run(ctx)
	} else {
		logger.Warn("No events URL configured, inbound handling disabled")
	}

	server := NewServer(cfg, db, registry, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown incomplete")
	}
	return nil
}
