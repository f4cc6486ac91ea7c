package main

import (
	"context"
	"fmt"
	"log/slog"

	"fhiraudit/internal/anchor"
	"fhiraudit/internal/fhir"
	"fhiraudit/internal/fhir/store"
	"fhiraudit/internal/platform/config"
	"fhiraudit/internal/platform/logger"
	"fhiraudit/internal/platform/redis"
)

// resourceStore is what every command needs from the configured backend.
type resourceStore interface {
	Create(ctx context.Context, res *fhir.Resource) (*fhir.Resource, error)
	Read(ctx context.Context, rt fhir.ResourceType, id string) (*fhir.Resource, error)
	SearchAll(ctx context.Context, rt fhir.ResourceType) ([]*fhir.Resource, error)
	Update(ctx context.Context, res *fhir.Resource) (*fhir.Resource, bool, error)
	Delete(ctx context.Context, rt fhir.ResourceType, id string) error
}

func loadConfig() (config.Server, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Server{}, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogFormat, cfg.SlogLevel())
	slog.SetDefault(log)
	return cfg, log, nil
}

// openStore opens the configured backend. SQL stores are migrated when
// migrate is set. The returned close func is never nil.
func openStore(ctx context.Context, cfg config.StoreConfig, migrate bool, log *slog.Logger) (resourceStore, func(), error) {
	if cfg.Driver == "memory" {
		log.WarnContext(ctx, "using in-memory resource store; data is lost on exit")
		return store.NewInMemory(), func() {}, nil
	}

	dialect, err := store.DialectFor(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(ctx, cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}
	if migrate {
		if err := store.Migrate(db, dialect); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	log.InfoContext(ctx, "resource store opened", "driver", cfg.Driver)
	return store.NewSQL(db, dialect), closeDB, nil
}

// newAnchorResolver picks the shared Redis cache when REDIS_URL is set and
// the process-local cache otherwise. The Redis client, when returned, is
// owned by the caller.
func newAnchorResolver(ctx context.Context, cfg config.Server, s resourceStore, log *slog.Logger) (*anchor.Resolver, *redis.Client, error) {
	opts := []anchor.Option{anchor.WithLogger(log), anchor.WithWorkflowID(cfg.WorkflowID)}

	client, err := redis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		opts = append(opts, anchor.WithCache(anchor.NewMemoryCache(cfg.AnchorCacheTTL)))
		return anchor.NewResolver(s, opts...), nil, nil
	}

	log.InfoContext(ctx, "anchor cache backed by redis", "ttl", cfg.AnchorCacheTTL)
	opts = append(opts, anchor.WithCache(anchor.NewRedisCache(client.Client, cfg.AnchorCacheTTL)))
	return anchor.NewResolver(s, opts...), client, nil
}
