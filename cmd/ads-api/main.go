package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/motorplace/vehicle-ads/pkg/cache"
	"github.com/motorplace/vehicle-ads/pkg/config"
	"github.com/motorplace/vehicle-ads/pkg/database"
	"github.com/motorplace/vehicle-ads/pkg/handlers"
	"github.com/motorplace/vehicle-ads/pkg/logging"
	"github.com/motorplace/vehicle-ads/pkg/mailer"
	"github.com/motorplace/vehicle-ads/pkg/rabbitmq"
	"github.com/motorplace/vehicle-ads/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel)
	logger.Info("=== ads-api starting ===")

	db, err := database.NewPostgresDB(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		MaxPool:  cfg.Database.MaxPool,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize PostgreSQL: %s", err)
	}
	defer db.Close()
	logger.Info("PostgreSQL connected")

	stateCache, err := cache.NewStateCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
	if err != nil {
		logger.Fatalf("Failed to initialize Redis: %s", err)
	}
	defer stateCache.Close()
	logger.Info("Redis connected")

	images, err := storage.NewImageStore(
		cfg.MinIO.Endpoint,
		cfg.MinIO.AccessKey,
		cfg.MinIO.SecretKey,
		cfg.MinIO.UseSSL,
		cfg.MinIO.Bucket,
		cfg.MinIO.PublicBaseURL,
	)
	if err != nil {
		logger.Fatalf("Failed to initialize MinIO client: %s", err)
	}
	if err := images.EnsureBucket(context.Background()); err != nil {
		logger.Fatalf("Failed to ensure bucket exists: %s", err)
	}
	logger.Info("MinIO connected")

	queue, err := rabbitmq.NewQueue(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName, cfg.RabbitMQ.VisibilityTimeout, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize RabbitMQ: %s", err)
	}
	defer queue.Close()

	mail := mailer.New(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
		cfg.SMTP.From,
		cfg.Server.AdBaseURL,
	)

	adsHandler := handlers.New(handlers.Options{
		Store:        db,
		Images:       images,
		Queue:        queue,
		Notifier:     mail,
		Cache:        stateCache,
		Logger:       logger,
		MaxImageSize: cfg.Server.MaxImageSizeMB << 20,
		CacheTTL:     cfg.Redis.StateTTL,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	adsHandler.Register(router)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("=== ads-api ready on :%s ===", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %s", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, closing")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
}
