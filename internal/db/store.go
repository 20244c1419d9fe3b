package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/bandi-sentinel/internal/models"
)

// Store is the Postgres backend.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// selectCols is the column list shared by every announcement query.
const selectCols = `id, url, title, issuing_authority, category, raw_text, deadline,
	discovered_at, source, attachments, matched_terms, score, status`

func scanAnnouncement(scan func(dest ...any) error) (models.StoredAnnouncement, error) {
	var a models.StoredAnnouncement
	var status string
	err := scan(
		&a.ID, &a.URL, &a.Title, &a.IssuingAuthority, &a.Category, &a.RawText, &a.Deadline,
		&a.DiscoveredAt, &a.Source, &a.Attachments, &a.MatchedTerms, &a.Score, &status,
	)
	a.Status = models.Status(status)
	return a, err
}

func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM announcements WHERE url = $1)", url).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("exists query failed: %w", err)
	}
	return ok, nil
}

// Insert stores rec and its update-log row in one transaction. A url that is
// already present yields (false, nil) and leaves the database untouched.
func (s *Store) Insert(ctx context.Context, rec models.StoredAnnouncement) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if rec.Status == "" {
		rec.Status = models.StatusNew
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO announcements (url, title, issuing_authority, category, raw_text, deadline,
			discovered_at, source, attachments, matched_terms, score, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (url) DO NOTHING
		RETURNING id`,
		rec.URL, rec.Title, rec.IssuingAuthority, rec.Category, rec.RawText, rec.Deadline,
		rec.DiscoveredAt, rec.Source, orEmpty(rec.Attachments), orEmpty(rec.MatchedTerms), rec.Score, string(rec.Status),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert failed: %w", err)
	}

	entry := createdEntry(id, rec, time.Now())
	if _, err := tx.Exec(ctx,
		"INSERT INTO update_log (announcement_id, kind, description, created_at) VALUES ($1, $2, $3, $4)",
		entry.AnnouncementID, entry.Kind, entry.Description, entry.CreatedAt,
	); err != nil {
		return false, fmt.Errorf("update log failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit failed: %w", err)
	}
	return true, nil
}

func (s *Store) RecordRunOutcome(ctx context.Context, o models.RunOutcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_outcomes (run_id, source, started_at, duration_ms, outcome, found, new_count, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.RunID, o.Source, o.StartedAt, o.Duration.Milliseconds(), string(o.Outcome), o.Found, o.New, o.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("record run outcome failed: %w", err)
	}
	return nil
}

func (s *Store) RecordArchivedFile(ctx context.Context, f models.ArchivedFile) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO archived_files (announcement_url, file_url, file_name, downloaded_at, version, pages, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (announcement_url, file_url) DO NOTHING`,
		f.AnnouncementURL, f.FileURL, f.FileName, f.DownloadedAt, f.Version, f.Pages, f.SizeBytes,
	)
	if err != nil {
		return false, fmt.Errorf("record archived file failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM announcements").Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

// ListAll returns every announcement, newest discovery first.
func (s *Store) ListAll(ctx context.Context) ([]models.StoredAnnouncement, error) {
	return s.query(ctx, "SELECT "+selectCols+" FROM announcements ORDER BY discovered_at DESC, id DESC")
}

func (s *Store) ListAnnouncements(ctx context.Context, params ListParams) ([]models.StoredAnnouncement, error) {
	return s.query(ctx, `SELECT `+selectCols+` FROM announcements
		WHERE score >= $1 AND ($2 = '' OR source = $2)
		ORDER BY discovered_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		params.MinScore, params.Source, params.limit(), params.offset())
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]models.StoredAnnouncement, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := []models.StoredAnnouncement{}
	for rows.Next() {
		a, err := scanAnnouncement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}

// ListRuns returns the most recent run outcomes.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RunOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, source, started_at, duration_ms, outcome, found, new_count, error_detail
		FROM run_outcomes ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := []models.RunOutcome{}
	for rows.Next() {
		var o models.RunOutcome
		var ms int64
		var outcome string
		if err := rows.Scan(&o.RunID, &o.Source, &o.StartedAt, &ms, &outcome, &o.Found, &o.New, &o.ErrorDetail); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		o.Duration = time.Duration(ms) * time.Millisecond
		o.Outcome = models.Outcome(outcome)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	stats := models.Stats{BySource: map[string]int{}}

	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM announcements").Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("stats failed: %w", err)
	}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM announcements WHERE deadline IS NOT NULL").Scan(&stats.WithDeadline); err != nil {
		statsWarning("deadlines", err)
	}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM archived_files").Scan(&stats.Archived); err != nil {
		statsWarning("archive", err)
	}
	if err := s.pool.QueryRow(ctx, "SELECT MAX(started_at) FROM run_outcomes").Scan(&stats.LastRunAt); err != nil {
		statsWarning("last run", err)
	}

	rows, err := s.pool.Query(ctx, "SELECT source, COUNT(*) FROM announcements GROUP BY source")
	if err != nil {
		statsWarning("by source", err)
		return stats, nil
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			statsWarning("by source", err)
			continue
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		statsWarning("by source", err)
	}
	return stats, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
