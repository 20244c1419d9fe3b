package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/david/bandi-sentinel/internal/models"
)

// SQLiteStore is the default single-file backend.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore wraps an open handle. Migrations are not applied.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimPrefix(path, "file:")
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite: %w", err)
	}
	// One writer, and one shared connection for :memory:.
	db.SetMaxOpenConns(1)

	if err := ApplySQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

type announcementRow struct {
	ID               int64        `db:"id"`
	URL              string       `db:"url"`
	Title            string       `db:"title"`
	IssuingAuthority string       `db:"issuing_authority"`
	Category         string       `db:"category"`
	RawText          string       `db:"raw_text"`
	Deadline         sql.NullTime `db:"deadline"`
	DiscoveredAt     time.Time    `db:"discovered_at"`
	Source           string       `db:"source"`
	Attachments      string       `db:"attachments"`
	MatchedTerms     string       `db:"matched_terms"`
	Score            int          `db:"score"`
	Status           string       `db:"status"`
}

func toRow(rec models.StoredAnnouncement) (announcementRow, error) {
	attachments, err := json.Marshal(orEmpty(rec.Attachments))
	if err != nil {
		return announcementRow{}, err
	}
	terms, err := json.Marshal(orEmpty(rec.MatchedTerms))
	if err != nil {
		return announcementRow{}, err
	}
	row := announcementRow{
		URL:              rec.URL,
		Title:            rec.Title,
		IssuingAuthority: rec.IssuingAuthority,
		Category:         rec.Category,
		RawText:          rec.RawText,
		DiscoveredAt:     rec.DiscoveredAt.UTC(),
		Source:           rec.Source,
		Attachments:      string(attachments),
		MatchedTerms:     string(terms),
		Score:            rec.Score,
		Status:           string(rec.Status),
	}
	if row.Status == "" {
		row.Status = string(models.StatusNew)
	}
	if rec.Deadline != nil {
		row.Deadline = sql.NullTime{Time: rec.Deadline.UTC(), Valid: true}
	}
	return row, nil
}

func (r announcementRow) model() models.StoredAnnouncement {
	a := models.StoredAnnouncement{
		Announcement: models.Announcement{
			Title:            r.Title,
			URL:              r.URL,
			IssuingAuthority: r.IssuingAuthority,
			Category:         r.Category,
			RawText:          r.RawText,
			DiscoveredAt:     r.DiscoveredAt,
			Source:           r.Source,
		},
		ID:     r.ID,
		Score:  r.Score,
		Status: models.Status(r.Status),
	}
	if r.Deadline.Valid {
		d := r.Deadline.Time
		a.Deadline = &d
	}
	_ = json.Unmarshal([]byte(r.Attachments), &a.Attachments)
	if err := json.Unmarshal([]byte(r.MatchedTerms), &a.MatchedTerms); err != nil || a.MatchedTerms == nil {
		a.MatchedTerms = []string{}
	}
	return a
}

func (s *SQLiteStore) Exists(ctx context.Context, url string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM announcements WHERE url = ?", url); err != nil {
		return false, fmt.Errorf("exists query failed: %w", err)
	}
	return n > 0, nil
}

// Insert stores rec and its update-log row in one transaction. A url that is
// already present yields (false, nil) and leaves the database untouched.
func (s *SQLiteStore) Insert(ctx context.Context, rec models.StoredAnnouncement) (bool, error) {
	row, err := toRow(rec)
	if err != nil {
		return false, fmt.Errorf("encode announcement: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO announcements (url, title, issuing_authority, category, raw_text, deadline,
			discovered_at, source, attachments, matched_terms, score, status)
		VALUES (:url, :title, :issuing_authority, :category, :raw_text, :deadline,
			:discovered_at, :source, :attachments, :matched_terms, :score, :status)
		ON CONFLICT (url) DO NOTHING`, row)
	if err != nil {
		return false, fmt.Errorf("insert failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert failed: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("insert failed: %w", err)
	}

	entry := createdEntry(id, rec, time.Now())
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO update_log (announcement_id, kind, description, created_at) VALUES (?, ?, ?, ?)",
		entry.AnnouncementID, entry.Kind, entry.Description, entry.CreatedAt,
	); err != nil {
		return false, fmt.Errorf("update log failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) RecordRunOutcome(ctx context.Context, o models.RunOutcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_outcomes (run_id, source, started_at, duration_ms, outcome, found, new_count, error_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.Source, o.StartedAt.UTC(), o.Duration.Milliseconds(), string(o.Outcome), o.Found, o.New, o.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("record run outcome failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordArchivedFile(ctx context.Context, f models.ArchivedFile) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_files (announcement_url, file_url, file_name, downloaded_at, version, pages, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (announcement_url, file_url) DO NOTHING`,
		f.AnnouncementURL, f.FileURL, f.FileName, f.DownloadedAt.UTC(), f.Version, f.Pages, f.SizeBytes,
	)
	if err != nil {
		return false, fmt.Errorf("record archived file failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM announcements"); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

// ListAll returns every announcement, newest discovery first.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]models.StoredAnnouncement, error) {
	return s.query(ctx, "SELECT "+selectCols+" FROM announcements ORDER BY discovered_at DESC, id DESC")
}

func (s *SQLiteStore) ListAnnouncements(ctx context.Context, params ListParams) ([]models.StoredAnnouncement, error) {
	return s.query(ctx, `SELECT `+selectCols+` FROM announcements
		WHERE score >= ? AND (? = '' OR source = ?)
		ORDER BY discovered_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		params.MinScore, params.Source, params.Source, params.limit(), params.offset())
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]models.StoredAnnouncement, error) {
	var rows []announcementRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	out := make([]models.StoredAnnouncement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

type runRow struct {
	RunID       string    `db:"run_id"`
	Source      string    `db:"source"`
	StartedAt   time.Time `db:"started_at"`
	DurationMS  int64     `db:"duration_ms"`
	Outcome     string    `db:"outcome"`
	Found       int       `db:"found"`
	New         int       `db:"new_count"`
	ErrorDetail string    `db:"error_detail"`
}

// ListRuns returns the most recent run outcomes.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]models.RunOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id, source, started_at, duration_ms, outcome, found, new_count, error_detail
		FROM run_outcomes ORDER BY started_at DESC, id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	out := make([]models.RunOutcome, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RunOutcome{
			RunID:       r.RunID,
			Source:      r.Source,
			StartedAt:   r.StartedAt,
			Duration:    time.Duration(r.DurationMS) * time.Millisecond,
			Outcome:     models.Outcome(r.Outcome),
			Found:       r.Found,
			New:         r.New,
			ErrorDetail: r.ErrorDetail,
		})
	}
	return out, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (models.Stats, error) {
	stats := models.Stats{BySource: map[string]int{}}

	if err := s.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM announcements"); err != nil {
		return stats, fmt.Errorf("stats failed: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.WithDeadline, "SELECT COUNT(*) FROM announcements WHERE deadline IS NOT NULL"); err != nil {
		statsWarning("deadlines", err)
	}
	if err := s.db.GetContext(ctx, &stats.Archived, "SELECT COUNT(*) FROM archived_files"); err != nil {
		statsWarning("archive", err)
	}

	var last sql.NullTime
	err := s.db.GetContext(ctx, &last, "SELECT started_at FROM run_outcomes ORDER BY started_at DESC LIMIT 1")
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		statsWarning("last run", err)
	case last.Valid:
		stats.LastRunAt = &last.Time
	}

	var bySource []struct {
		Source string `db:"source"`
		Count  int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &bySource, "SELECT source, COUNT(*) AS n FROM announcements GROUP BY source"); err != nil {
		statsWarning("by source", err)
	}
	for _, r := range bySource {
		stats.BySource[r.Source] = r.Count
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
