package db

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/david/bandi-sentinel/internal/logger"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// migrator applies the embedded migrations of one dialect, each file once,
// in filename order.
type migrator struct {
	dialect string
	ensure  func(ctx context.Context) error
	applied func(ctx context.Context, name string) (bool, error)
	apply   func(ctx context.Context, name, content string) error
}

func (m migrator) run(ctx context.Context) error {
	if err := m.ensure(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	files, err := migrationFiles(m.dialect)
	if err != nil {
		return err
	}

	for _, fileName := range files {
		done, err := m.applied(ctx, fileName)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", fileName, err)
		}
		if done {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + m.dialect + "/" + fileName)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", fileName, err)
		}

		logger.Log.Infof("[db] applying %s migration: %s", m.dialect, fileName)
		if err := m.apply(ctx, fileName, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", fileName, err)
		}
	}
	return nil
}

func migrationFiles(dialect string) ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations/" + dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// ApplyMigrations brings a Postgres database up to date.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	return migrator{
		dialect: dialectPostgres,
		ensure: func(ctx context.Context) error {
			_, err := pool.Exec(ctx, `
				CREATE TABLE IF NOT EXISTS schema_migrations (
					filename TEXT PRIMARY KEY,
					applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)
			`)
			return err
		},
		applied: func(ctx context.Context, name string) (bool, error) {
			var ok bool
			err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", name).Scan(&ok)
			return ok, err
		},
		apply: func(ctx context.Context, name, content string) error {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)
			if _, err := tx.Exec(ctx, content); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
				return err
			}
			return tx.Commit(ctx)
		},
	}.run(ctx)
}

// ApplySQLiteMigrations brings a SQLite database up to date.
func ApplySQLiteMigrations(ctx context.Context, db *sqlx.DB) error {
	return migrator{
		dialect: dialectSQLite,
		ensure: func(ctx context.Context) error {
			_, err := db.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS schema_migrations (
					filename TEXT PRIMARY KEY,
					applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)
			`)
			return err
		},
		applied: func(ctx context.Context, name string) (bool, error) {
			var n int
			err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name)
			return n > 0, err
		},
		apply: func(ctx context.Context, name, content string) error {
			tx, err := db.BeginTxx(ctx, nil)
			if err != nil {
				return err
			}
			defer tx.Rollback()
			if _, err := tx.ExecContext(ctx, content); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
				return err
			}
			return tx.Commit()
		},
	}.run(ctx)
}
