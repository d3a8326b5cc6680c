package database

import (
	"context"
	"fmt"

	"github.com/segyhp/payroll-loans/internal/config"
	"github.com/segyhp/payroll-loans/internal/repository"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database and applies the pool settings.
// With DATABASE_AUTO_MIGRATE set the schema is created as well.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, dataSource(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite3" {
		// A single connection keeps ":memory:" databases alive and
		// serialises writers the way SQLite expects.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func dataSource(cfg config.DatabaseConfig) string {
	if cfg.Driver == "sqlite3" {
		if cfg.URL == ":memory:" {
			return "file::memory:?_foreign_keys=on"
		}
		return cfg.URL + "?_foreign_keys=on&_journal_mode=WAL"
	}
	return cfg.DSN()
}
