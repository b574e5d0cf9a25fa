package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
)

// stores holds the repositories selected by configuration plus the
// connections backing them.
type stores struct {
	users    repository.UserRepository
	tickets  repository.TicketRepository
	sessions repository.SessionRepository

	postgres *persistence.Postgres
	redis    *persistence.Redis
}

// openStores connects the backends named by cfg.Storage.Driver and
// cfg.Session.Driver. Postgres is opened once and shared when both need it.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	s := &stores{}

	needPostgres := cfg.Storage.Driver == config.DriverPostgres || cfg.Session.Driver == config.DriverPostgres
	if needPostgres {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		s.postgres = pg
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(pg.PoolHandle(), logger); err != nil {
				s.close()
				return nil, err
			}
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool := s.postgres.PoolHandle()
		s.users = repository.NewUserRepository(pool)
		s.tickets = repository.NewTicketRepository(pool)
	case config.DriverMemory:
		s.users = memory.NewUserRepository()
		s.tickets = memory.NewTicketRepository()
	default:
		s.close()
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	switch cfg.Session.Driver {
	case config.DriverPostgres:
		s.sessions = repository.NewSessionRepository(s.postgres.PoolHandle())
	case config.DriverRedis:
		rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.redis = rdb
		s.sessions = repository.NewRedisSessionRepository(rdb.Client)
	case config.DriverMemory:
		s.sessions = memory.NewSessionRepository()
	default:
		s.close()
		return nil, fmt.Errorf("unsupported session driver %q", cfg.Session.Driver)
	}

	logger.Info("stores ready",
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("session_driver", cfg.Session.Driver))
	return s, nil
}

// healthDeps lists the network backends readiness should probe.
func (s *stores) healthDeps() map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{}
	if s.postgres != nil {
		deps["postgres"] = s.postgres
	}
	if s.redis != nil {
		deps["redis"] = s.redis
	}
	return deps
}

func (s *stores) close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.postgres != nil {
		s.postgres.Close()
	}
}
