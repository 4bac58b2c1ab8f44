package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/motorplace/vehicle-ads/pkg/cache"
	"github.com/motorplace/vehicle-ads/pkg/classifier"
	"github.com/motorplace/vehicle-ads/pkg/config"
	"github.com/motorplace/vehicle-ads/pkg/database"
	"github.com/motorplace/vehicle-ads/pkg/logging"
	"github.com/motorplace/vehicle-ads/pkg/mailer"
	"github.com/motorplace/vehicle-ads/pkg/policy"
	"github.com/motorplace/vehicle-ads/pkg/rabbitmq"
	"github.com/motorplace/vehicle-ads/pkg/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel)
	logger.Info("=== ad-validator starting ===")

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

	queue, err := rabbitmq.NewQueue(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName, cfg.RabbitMQ.VisibilityTimeout, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize RabbitMQ: %s", err)
	}
	defer queue.Close()

	oracle := classifier.NewClient(
		cfg.Imagga.BaseURL,
		cfg.Imagga.APIKey,
		cfg.Imagga.APISecret,
		cfg.Imagga.Timeout,
	)

	mail := mailer.New(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
		cfg.SMTP.From,
		cfg.Server.AdBaseURL,
	)

	validator := worker.New(worker.Options{
		Store:         db,
		Queue:         worker.WrapQueue(queue),
		Oracle:        oracle,
		Notifier:      mail,
		Cache:         stateCache,
		Policy:        policy.New(cfg.ValidCategories),
		Logger:        logger,
		OracleTimeout: cfg.Imagga.Timeout,
		CacheTTL:      cfg.Redis.StateTTL,
	})

	reaper := worker.NewReaper(db, queue, cfg.Worker.ReapInterval, cfg.Worker.ReapAge, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reaper.Run(ctx)

	logger.Info("=== ad-validator ready ===")
	if err := validator.Run(ctx); err != nil {
		logger.Fatalf("Validation worker failed: %s", err)
	}
	logger.Info("ad-validator stopped")
}
