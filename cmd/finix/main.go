package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"finix/internal/amqp"
	"finix/internal/backend"
	"finix/internal/cache"
	"finix/internal/cli"
	"finix/internal/config"
	"finix/internal/insights"
	"finix/internal/kafka"
	applog "finix/internal/log"
	"finix/internal/notify"
	"finix/internal/remote"
	"finix/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig(os.Stderr)
	logger := cli.SetupLogger(cfg, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	code := a.run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err := a.close(); err != nil {
		logger.Warn("Cleanup failed", "error", err)
	}
	os.Exit(code)
}

// app is one CLI invocation: a hydrated session plus the resources to release.
type app struct {
	cfg      *config.Config
	session  *services.Session
	currency string
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*app, error) {
	a := &app{cfg: cfg, currency: cfg.CurrencySymbol}

	hierarchy, err := cfg.CategoryHierarchy()
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Slog(applog.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	if res.Cleanup != nil {
		a.closers = append(a.closers, res.Cleanup)
	}

	dispatcher := notify.NewDispatcher(
		notify.Renderer{Currency: cfg.CurrencySymbol},
		res.Store,
		cfg.NotificationsEnabled,
		logger.Slog(applog.ComponentNotify),
		notify.LogSink{Logger: logger.Slog(applog.ComponentNotify)},
	)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without it", "error", err)
		} else {
			dispatcher.AddSink(amqp.Sink{Publisher: client, Account: cfg.Account})
			a.closers = append(a.closers, client.Close)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		dispatcher.AddSink(pub)
		a.closers = append(a.closers, pub.Close)
	}
	// Closed before the sinks so queued alerts still reach them.
	a.closers = append(a.closers, dispatcher.Close)

	var source remote.Source
	var offline *remote.Memory
	if cfg.TransactionsURL != "" {
		source = remote.NewClient(remote.Config{
			BaseURL:  cfg.TransactionsURL,
			Timeout:  cfg.RemoteTimeout,
			Attempts: uint(cfg.RemoteRetries),
		}, logger.Slog(applog.ComponentRemote))
	} else {
		offline = remote.NewMemory()
		source = offline
	}

	var insightsSource insights.Source
	if cfg.InsightsURL != "" {
		ttl := cfg.InsightsCacheTTL
		insightsCache := cache.NewLRUCache[insights.Insights](1, ttl)
		caches := cache.NewManager(logger.Slog(applog.ComponentCache))
		caches.Register(insightsCache)
		if ttl > 0 {
			caches.StartCleanup(ttl)
			a.closers = append(a.closers, func() error { caches.Stop(); return nil })
		}

		insightsSource = insights.NewClient(cfg.InsightsURL, cfg.RemoteTimeout,
			insightsCache, logger.Slog(applog.ComponentInsights))
	}

	a.session = services.NewSession(services.Config{
		Account:    cfg.Account,
		Hierarchy:  hierarchy,
		Store:      res.Store,
		Source:     source,
		Insights:   insightsSource,
		Dispatcher: dispatcher,
		Logger:     logger.Slog(applog.ComponentSession),
	})
	if err := a.session.Hydrate(ctx); err != nil {
		a.close()
		return nil, err
	}
	if offline != nil {
		// Without a remote, the local list is the collection.
		offline.Seed(cfg.Account, a.session.Transactions()...)
	}
	return a, nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
	if err := cmd.run(ctx, a, args[1:], stdout); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}
