package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/craniometry-server/internal/api"
	"github.com/craniometry-server/internal/cache"
	"github.com/craniometry-server/internal/config"
	"github.com/craniometry-server/internal/database"
	"github.com/craniometry-server/internal/domain"
	"github.com/craniometry-server/internal/repository"
	"github.com/craniometry-server/internal/service"
	"github.com/craniometry-server/internal/storage"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configManager.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		patients     domain.PatientRepository
		measurements domain.MeasurementRepository
	)

	switch cfg.Database.Driver {
	case "sqlite":
		store, err := storage.NewSQLiteStore(cfg.Database.Path, logger, service.ComputeIndices)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open embedded database")
		}
		defer store.Close()
		logger.WithField("path", cfg.Database.Path).Info("Using embedded SQLite store")

		patients = store.Patients()
		measurements = store.Measurements()

	default:
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		migrator, err := database.NewMigrator(&cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create migrator")
		}
		if err := migrator.Up(); err != nil {
			logger.WithError(err).Fatal("Failed to apply migrations")
		}
		migrator.Close()

		patients = repository.NewPatientRepository(db.Pool, logger)
		measurements = repository.NewMeasurementRepository(db.Pool, logger, service.ComputeIndices)
	}

	var seriesCache domain.SeriesCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisSeriesCache(cfg.Cache, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisCache.Close()
		seriesCache = redisCache
		logger.Info("Evolution series cache enabled")
	}

	evolution, err := service.NewEvolutionService(logger, patients, measurements, seriesCache, cfg.Cache.MemoSize)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create evolution service")
	}

	server := api.NewServer(configManager, logger, patients, measurements, evolution)

	logger.WithFields(logrus.Fields{
		"host":   cfg.Server.Host,
		"port":   cfg.Server.Port,
		"driver": cfg.Database.Driver,
	}).Info("Starting craniometry server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server terminated with error")
	}
	logger.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return logger
}
