package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	repomodels "github.com/smilemakc/workflowrt/internal/repository/models"
)

// DBConfig holds the durable-tier connection settings, sourced from
// config.DatabaseConfig.
type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Debug           bool
}

// NewDB opens a pooled Postgres connection via bun/pgdriver and verifies it
// with a ping before returning.
func NewDB(cfg DBConfig) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(30*time.Second),
		pgdriver.WithDialTimeout(10*time.Second),
		pgdriver.WithReadTimeout(10*time.Second),
		pgdriver.WithWriteTimeout(10*time.Second),
	)

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.FromEnv("BUNDEBUG")))
	}
	registerModels(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}

	return db, nil
}

func registerModels(db *bun.DB) {
	db.RegisterModel(
		(*repomodels.WorkflowModel)(nil),
		(*repomodels.RunModel)(nil),
		(*repomodels.NodeExecutionModel)(nil),
		(*repomodels.WorkflowStateModel)(nil),
		(*repomodels.NodeStateModel)(nil),
	)
}

// CloseDB closes db, tolerating a nil receiver so shutdown paths don't
// need a separate nil check.
func CloseDB(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// Stats returns the underlying connection pool's statistics.
func Stats(db *bun.DB) sql.DBStats {
	return db.DB.Stats()
}
