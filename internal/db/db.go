// Package db persists announcements, run outcomes, the update log and the
// attachment archive index. Postgres (pgx) and SQLite (sqlx) share one schema
// and one set of semantics: url is unique and inserts are atomic.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/bandi-sentinel/internal/logger"
	"github.com/david/bandi-sentinel/internal/models"
)

// DefaultDSN is used when no DATABASE_URL is configured.
const DefaultDSN = "sqlite://data/sentinel.db"

// ListParams filters ListAnnouncements.
type ListParams struct {
	MinScore int
	Source   string
	Limit    int
	Offset   int
}

func (p ListParams) limit() int {
	if p.Limit <= 0 || p.Limit > 500 {
		return 50
	}
	return p.Limit
}

func (p ListParams) offset() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}

// Backend is the full storage surface used by the CLI and the API.
type Backend interface {
	Exists(ctx context.Context, url string) (bool, error)
	Insert(ctx context.Context, rec models.StoredAnnouncement) (bool, error)
	RecordRunOutcome(ctx context.Context, o models.RunOutcome) error
	RecordArchivedFile(ctx context.Context, f models.ArchivedFile) (bool, error)
	Count(ctx context.Context) (int, error)
	ListAll(ctx context.Context) ([]models.StoredAnnouncement, error)
	ListAnnouncements(ctx context.Context, params ListParams) ([]models.StoredAnnouncement, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunOutcome, error)
	Stats(ctx context.Context) (models.Stats, error)
	Close() error
}

// Open connects to the database named by dsn and applies migrations.
// postgres:// and postgresql:// select Postgres; sqlite://<path>, file:<path>
// or a bare path select SQLite.
func Open(ctx context.Context, dsn string) (Backend, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = DefaultDSN
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		pool, err := Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := ApplyMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewStore(pool), nil
	}

	return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
}

// Connect opens a pgx pool and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing db config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	return pool, nil
}

// createdEntry is the update log row written with a new announcement.
func createdEntry(id int64, rec models.StoredAnnouncement, at time.Time) models.UpdateLogEntry {
	terms := "none"
	if len(rec.MatchedTerms) > 0 {
		terms = strings.Join(rec.MatchedTerms, ", ")
	}
	return models.UpdateLogEntry{
		AnnouncementID: id,
		Kind:           models.UpdateKindCreated,
		Description:    fmt.Sprintf("matched: %s; score %d", terms, rec.Score),
		CreatedAt:      at.UTC(),
	}
}

// statsWarning logs a failed secondary Stats query. Stats still returns the
// total and whatever else it could read.
func statsWarning(part string, err error) {
	logger.Log.WithError(err).Warnf("[db] stats %s query failed", part)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
