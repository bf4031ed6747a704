package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Dialect selects the DDL flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type migrationStep struct {
	Name string
	SQL  string
}

var postgresSteps = []migrationStep{
	{
		Name: "create_table_users",
		SQL: `CREATE TABLE IF NOT EXISTS users (
  username     TEXT        PRIMARY KEY,
  email        TEXT        NOT NULL UNIQUE,
  display_name TEXT        NOT NULL DEFAULT '',
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_notes",
		SQL: `CREATE TABLE IF NOT EXISTS notes (
  id         BIGINT      GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
  owner      TEXT        NOT NULL REFERENCES users (username) ON DELETE CASCADE,
  title      TEXT        NOT NULL,
  body       TEXT        NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_notes_owner_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_notes_owner_created_at ON notes (owner, created_at);`,
	},
}

var sqliteSteps = []migrationStep{
	{
		Name: "create_table_users",
		SQL: `CREATE TABLE IF NOT EXISTS users (
  username     TEXT     PRIMARY KEY,
  email        TEXT     NOT NULL UNIQUE,
  display_name TEXT     NOT NULL DEFAULT '',
  created_at   DATETIME NOT NULL
);`,
	},
	{
		Name: "create_table_notes",
		SQL: `CREATE TABLE IF NOT EXISTS notes (
  id         INTEGER  PRIMARY KEY AUTOINCREMENT,
  owner      TEXT     NOT NULL REFERENCES users (username) ON DELETE CASCADE,
  title      TEXT     NOT NULL,
  body       TEXT     NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL
);`,
	},
	{
		Name: "create_index_notes_owner_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_notes_owner_created_at ON notes (owner, created_at);`,
	},
}

var sentinelQueries = map[Dialect]string{
	Postgres: `SELECT to_regclass('public.notes') IS NOT NULL`,
	SQLite:   `SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = 'notes'`,
}

func stepsFor(d Dialect) ([]migrationStep, error) {
	switch d {
	case Postgres:
		return postgresSteps, nil
	case SQLite:
		return sqliteSteps, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d)
	}
}

// EnsureMigrated checks if the 'notes' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, dialect Dialect, log *zap.Logger) error {
	steps, err := stepsFor(dialect)
	if err != nil {
		return err
	}
	log = log.With(zap.String("component", "database"), zap.String("dialect", string(dialect)))
	start := time.Now()

	log.Info("db_migration_check")

	var exists bool
	if err := db.QueryRowContext(ctx, sentinelQueries[dialect]).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			zap.Error(err),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			zap.String("msg", "schema already exists, skipping migration"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", zap.Int("steps", len(steps)))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Info("db_migration_step",
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}
