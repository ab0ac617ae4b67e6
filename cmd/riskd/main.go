package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/event-risk-service/internal/adapter/geojson"
	httpadapter "github.com/couchcryptid/event-risk-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/event-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/event-risk-service/internal/adapter/lageso"
	"github.com/couchcryptid/event-risk-service/internal/config"
	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
	"github.com/couchcryptid/event-risk-service/internal/pipeline"
	"github.com/couchcryptid/event-risk-service/internal/retry"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	client := lageso.NewClient(cfg.CasesURL, cfg.CasesTimeout, metrics, logger)
	policy := retry.Policy{Attempts: cfg.RetryAttempts, Wait: cfg.RetryWait}
	source := lageso.NewSource(client, policy, cfg.CasesTTL, clock, metrics, logger)
	geometry := geojson.NewProvider(cfg.GeometryPath, metrics, logger)

	p := pipeline.New(source, geometry, domain.BerlinPopulation(), logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go p.Warm(ctx)

	// Start the incidence publisher (enabled via KAFKA_BROKERS).
	var writer *kafkaadapter.Writer
	if cfg.PublishEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		pub := pipeline.NewPublisher(p, writer, p.Population(), cfg.PublishInterval, clock, logger, metrics)
		go func() {
			if err := pub.Run(ctx); err != nil {
				logger.Error("publisher error", "error", err)
			}
		}()
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
