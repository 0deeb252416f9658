package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finix/internal/amqp"
	"finix/internal/cache"
	"finix/internal/cli"
	"finix/internal/kafka"
	applog "finix/internal/log"
	"finix/internal/notify"
	"finix/internal/worker"
)

const dedupeWindow = time.Hour

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig(os.Stderr)
	logger := cli.SetupLogger(cfg, os.Stdout)

	logger.Info("Starting finix-notifier")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the notifier")
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	sinks := []notify.Sink{notify.LogSink{Logger: logger.Slog(applog.ComponentNotify)}}
	var relay *kafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		relay = kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, relay)
		logger.Info("Relaying notifications to Kafka", "topic", cfg.KafkaTopic)
	}

	seen := cache.NewLRUCache[time.Time](4096, dedupeWindow)
	caches := cache.NewManager(logger.Slog(applog.ComponentCache))
	caches.Register(seen)
	caches.StartCleanup(dedupeWindow / 4)

	w := worker.NewNotificationWorker(seen, logger.Slog(applog.ComponentWorker), sinks...)

	ctx, done := cli.GracefulShutdown(logger.Slog(applog.ComponentApp), 30*time.Second, func() {
		caches.Stop()
		if relay != nil {
			if err := relay.Close(); err != nil {
				logger.Warn("Failed to close Kafka publisher", "error", err)
			}
		}
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
		stats := w.Stats()
		logger.Info("Notifier stopped", "delivered", stats.Delivered, "skipped", stats.Skipped)
	})

	if err := amqpClient.ConsumeNotifications(ctx, w.HandleNotification); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}
