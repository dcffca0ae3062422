package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rafflio/platform/internal/infra"
	"github.com/rafflio/platform/internal/notify"
	"github.com/rafflio/platform/internal/provider"
	"github.com/rafflio/platform/internal/repository"
	"github.com/rafflio/platform/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-consumer connected to postgres")

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	var mailer notify.Mailer = notify.LogMailer{Logger: logger}
	if brevo := provider.NewBrevo(cfg.BrevoAPIKey, cfg.BrevoBaseURL, cfg.MailFromAddress, cfg.MailFromName); brevo.Enabled() {
		mailer = brevo
	}

	metrics := infra.NewMetrics()
	dispatcher := service.NewOutboxDispatcher(
		pool, repository.NewOutboxRepository(), producer,
		notify.NewEmailNotifier(mailer, logger), metrics, logger,
	)
	poller := infra.NewOutboxPoller(dispatcher, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)

	// Metrics only; the consumer has no API surface.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort+1),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("outbox-consumer shutting down")
	return nil
}
