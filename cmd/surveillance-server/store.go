package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/surveillance/internal/config"
	"github.com/ehr/surveillance/internal/domain/observation"
	"github.com/ehr/surveillance/internal/platform/db"
)

// store is the opened Record Store backend.
type store struct {
	repo   observation.Repository
	pinger db.Pinger
	pool   *pgxpool.Pool // nil for sqlite
	close  func()
}

func (s *store) Close() {
	if s.close != nil {
		s.close()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &store{repo: observation.NewRepoPG(pool), pinger: pool, pool: pool, close: pool.Close}, nil

	case config.DriverSQLite:
		gdb, err := observation.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		repo := observation.NewRepoGorm(gdb)
		return &store{repo: repo, pinger: repo, close: func() { _ = sqlDB.Close() }}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
