package main

import (
	"context"
	"fmt"

	"hivemind/internal/config"
	"hivemind/internal/platform/cas"
	"hivemind/internal/platform/database"
	"hivemind/internal/repository/cache"
	"hivemind/internal/repository/datastore"
	"hivemind/internal/repository/postgres"
	"hivemind/internal/repository/redis"
)

// openBackend connects the configured content store and puts the read
// cache in front of it.
func openBackend(ctx context.Context, cfg config.Config) (cas.Backend, error) {
	var (
		inner cas.Backend
		err   error
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		inner = datastore.NewMemory()
	case config.BackendBadger:
		inner, err = datastore.NewBadger(cfg.BadgerPath)
	case config.BackendPostgres:
		inner, err = openPostgres(ctx, cfg.DB_DSN)
	case config.BackendRedis:
		inner, err = redis.New(ctx, cfg.RedisURL)
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	cached, err := cache.New(inner, cfg.CacheSize)
	if err != nil {
		_ = inner.Close()
		return nil, err
	}
	return cached, nil
}

func openPostgres(ctx context.Context, dsn string) (cas.Backend, error) {
	db, err := database.NewPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	repo := postgres.NewContentRepo(db)
	if err := repo.Migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}
