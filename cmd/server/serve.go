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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fhiraudit/internal/anchor"
	"fhiraudit/internal/audit"
	"fhiraudit/internal/audit/fanout"
	auditmetrics "fhiraudit/internal/audit/metrics"
	jwttoken "fhiraudit/internal/jwt_token"
	"fhiraudit/internal/mining"
	"fhiraudit/internal/platform/config"
	"fhiraudit/internal/platform/httpserver"
	"fhiraudit/internal/platform/kafka"
	"fhiraudit/internal/platform/metrics"
	"fhiraudit/internal/platform/middleware"
	httptransport "fhiraudit/internal/transport/http"
	"fhiraudit/pkg/platform/circuit"
)

const (
	shutdownTimeout = 10 * time.Second
	auditPartitions = 3
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the FHIR host with audit synthesis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	s, closeStore, err := openStore(ctx, cfg.Store, true, log)
	if err != nil {
		return err
	}
	defer closeStore()

	anchors, err := anchor.Bootstrap(ctx, s, anchor.BootstrapConfig{
		DeviceName: cfg.DeviceName,
		WorkflowID: cfg.WorkflowID,
	})
	if err != nil {
		return fmt.Errorf("bootstrap anchors: %w", err)
	}
	log.InfoContext(ctx, "anchors ready",
		"device", anchors.Device.String(),
		"workflow", anchors.Workflow.String(),
	)

	resolver, redisClient, err := newAnchorResolver(ctx, cfg, s, log)
	if err != nil {
		return err
	}
	health := map[string]httptransport.HealthCheck{}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		health["redis"] = redisClient.Health
	}

	g, gctx := errgroup.WithContext(ctx)

	auditOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithMetrics(auditmetrics.New(nil)),
	}
	if cfg.Kafka.Enabled() {
		publisher, producer, err := newFanout(gctx, cfg.Kafka, log)
		if err != nil {
			return err
		}
		defer producer.Close()
		health["kafka"] = producer.Health
		auditOpts = append(auditOpts, audit.WithSink(publisher))
		g.Go(func() error { return publisher.Run(gctx) })
	}

	service := audit.NewService(s, resolver, auditOpts...)
	exporter := mining.NewExporter(s, resolver,
		mining.WithLogger(log),
		mining.WithMetrics(mining.NewMetrics(nil)),
	)

	var validator middleware.JWTValidator
	if cfg.JWTSigningKey != "" {
		validator = jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer))
	}

	handler := httptransport.New(s, service, exporter, log, httptransport.WithAnchorCache(resolver))
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		Logger:       log,
		Metrics:      metrics.New(nil),
		JWTValidator: validator,
		Health:       health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.InfoContext(gctx, "starting fhiraudit", "addr", cfg.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newFanout connects the Kafka producer and builds the publisher draining
// persisted records into it. Topic provisioning failures are logged; the
// broker may auto-create topics or an operator may own them.
func newFanout(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (*fanout.Publisher, *kafka.Producer, error) {
	producer, err := kafka.NewProducer(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := producer.EnsureTopic(ctx, auditPartitions, 1); err != nil {
		log.WarnContext(ctx, "could not ensure audit topic", "topic", producer.Topic(), "error", err)
	}

	publisher := fanout.New(producer,
		fanout.WithLogger(log),
		fanout.WithMetrics(fanout.NewMetrics(nil)),
		fanout.WithBufferSize(cfg.BufferSize),
		fanout.WithBatchSize(cfg.BatchSize),
		fanout.WithFlushInterval(cfg.FlushInterval),
		fanout.WithBreaker(circuit.New("kafka-audit")),
	)
	log.InfoContext(ctx, "audit fan-out enabled", "topic", producer.Topic(), "brokers", cfg.Brokers)
	return publisher, producer, nil
}
