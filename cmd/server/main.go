package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/api"
	"github.com/vanco-dosing-server/internal/audit"
	"github.com/vanco-dosing-server/internal/cache"
	"github.com/vanco-dosing-server/internal/config"
	"github.com/vanco-dosing-server/internal/database"
	"github.com/vanco-dosing-server/internal/domain"
	"github.com/vanco-dosing-server/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(&cfg.Logging)

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting vancomycin dosing server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := api.Options{}

	if cfg.Audit.Enabled {
		store, health, cleanup, err := openAuditStore(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open audit store")
		}
		defer cleanup()
		opts.Store = store
		opts.DBHealth = health
	}

	results, err := cache.NewResultCache(&cfg.Cache, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize result cache")
	}
	defer results.Close()
	opts.Results = results

	dosing := service.NewDosingService(logger, &cfg.Engine, opts.Store)
	server := api.NewServer(configManager, logger, dosing, opts)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// openAuditStore opens the configured audit backend. For postgres the schema
// migrations run first and the pgx pool backs the health probe.
func openAuditStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (domain.CalculationStore, api.HealthChecker, func(), error) {
	switch cfg.Audit.Backend {
	case "postgres":
		runner, err := database.NewMigrationRunner(database.URL(&cfg.Database), cfg.Database.MigrationsPath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		defer runner.Close()
		if err := runner.Up(); err != nil {
			return nil, nil, nil, err
		}

		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, nil, nil, err
		}

		store, err := audit.NewPostgresStoreFromConfig(&cfg.Database)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		cleanup := func() {
			store.Close()
			db.Close()
		}
		return store, db, cleanup, nil

	default:
		store, err := audit.NewSQLiteStore(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, func() { store.Close() }, nil
	}
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	switch cfg.Output {
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger
}
