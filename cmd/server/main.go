// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/freshshare/freshshare-api/internal/config"
	"github.com/freshshare/freshshare-api/internal/database"
	"github.com/freshshare/freshshare-api/internal/events"
	"github.com/freshshare/freshshare-api/internal/i18n"
	"github.com/freshshare/freshshare-api/internal/lock"
	"github.com/freshshare/freshshare-api/internal/metrics"
	"github.com/freshshare/freshshare-api/internal/middleware"
	"github.com/freshshare/freshshare-api/internal/repository"
	"github.com/freshshare/freshshare-api/internal/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	setupLogging(cfg)

	repo, err := openRepository(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize repository")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Close(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to close repository")
		}
	}()

	locker, err := openLocker(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize lock backend")
	}

	publisher := openPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close event publisher")
		}
	}()

	// Initialize i18n
	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	stop := make(chan struct{})
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Cleanup(stop)

	r := router.Initialize(cfg, router.Dependencies{
		Repository:  repo,
		Locker:      locker,
		Publisher:   publisher,
		Metrics:     metrics.New(),
		RateLimiter: limiter,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}

func setupLogging(cfg *config.Config) {
	if cfg.Log.Format == "json" || (cfg.Log.Format == "" && cfg.Environment == "production") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.WithField("level", cfg.Log.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// openRepository picks the storage backend named by DB_DRIVER.
func openRepository(cfg *config.Config) (repository.Repository, error) {
	if cfg.Database.Driver == "mongo" {
		client, err := database.ConnectMongo(cfg.Mongo)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := database.EnsureMongoIndexes(ctx, client.Database(cfg.Mongo.Database)); err != nil {
			logrus.WithError(err).Warn("Failed to create mongodb indexes")
		}
		return repository.NewMongoRepository(client, cfg.Mongo.Database), nil
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, err
	}

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		database.Close(db)
		return nil, err
	}

	if cfg.Database.Seed {
		if err := database.SeedInitialData(db, cfg.Ranking.DefaultMaxActiveProducts); err != nil {
			logrus.WithError(err).Warn("Failed to seed initial data")
		}
	}

	return repository.NewGormRepository(db), nil
}

func openLocker(cfg *config.Config) (lock.Locker, error) {
	if !cfg.Redis.Enabled {
		logrus.Info("Using in-process aggregate locks")
		return lock.NewLocalLocker(), nil
	}

	client, err := database.ConnectRedis(cfg.Redis)
	if err != nil {
		return nil, err
	}
	return lock.NewRedisLocker(client, cfg.Redis.LockTTL), nil
}

func openPublisher(cfg *config.Config) events.Publisher {
	if !cfg.Kafka.Enabled {
		return events.NoopPublisher{}
	}

	logrus.WithFields(logrus.Fields{
		"brokers": cfg.Kafka.Brokers,
		"topic":   cfg.Kafka.CaseClosedTopic,
	}).Info("Publishing case closed events to Kafka")
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.CaseClosedTopic)
}
