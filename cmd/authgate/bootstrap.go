package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gate/internal/config"
	"github.com/spec-kit/auth-gate/internal/events"
	"github.com/spec-kit/auth-gate/internal/observability"
	"github.com/spec-kit/auth-gate/internal/persistence"
	"github.com/spec-kit/auth-gate/internal/repository"
	"github.com/spec-kit/auth-gate/internal/service"
	"github.com/spec-kit/auth-gate/internal/worker"
)

// runtimeDeps holds the long-lived dependencies shared by every subcommand.
type runtimeDeps struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	dispatcher events.Dispatcher
	postgres   *persistence.Postgres
	redis      *persistence.Redis
	users      repository.UserRepository
	registry   repository.TokenRepository
}

func bootstrap(ctx context.Context) (*runtimeDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &runtimeDeps{
		cfg:        cfg,
		logger:     logger,
		metrics:    observability.NewMetrics(),
		dispatcher: events.NewInMemoryDispatcher(),
	}

	rt.postgres, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rt.redis, err = persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	if err := rt.wireRepositories(); err != nil {
		rt.close()
		return nil, err
	}

	worker.StartAuditWorker(service.NewAuditService(rt.dispatcher, logger))
	return rt, nil
}

func (rt *runtimeDeps) wireRepositories() error {
	if rt.postgres.Configured() {
		rt.users = repository.NewUserRepository(rt.postgres.PoolHandle())
	} else {
		rt.logger.Warn("no postgres configured; accounts are kept in memory")
		rt.users = repository.NewMemoryUserRepository()
	}

	switch rt.cfg.Registry.Backend {
	case config.RegistryBackendPostgres:
		rt.registry = repository.NewTokenRepository(rt.postgres.PoolHandle())
	case config.RegistryBackendRedis:
		rt.registry = repository.NewRedisTokenRepository(rt.redis.Client, rt.cfg.Redis.KeyPrefix)
	case config.RegistryBackendMemory:
		rt.logger.Warn("token registry is in memory; tokens do not survive a restart")
		rt.registry = repository.NewMemoryTokenRepository()
	default:
		return fmt.Errorf("unknown token registry backend %q", rt.cfg.Registry.Backend)
	}

	rt.logger.Info("token registry ready", zap.String("backend", rt.cfg.Registry.Backend))
	return nil
}

func (rt *runtimeDeps) close() {
	rt.redis.Close()
	rt.postgres.Close()
	_ = rt.logger.Sync()
}
