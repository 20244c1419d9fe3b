package models

import (
	"time"
)

// Status is the lifecycle field of a stored announcement.
type Status string

const (
	StatusNew     Status = "new"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Announcement is a candidate "bando" extracted from a source page during a scan.
type Announcement struct {
	Title            string     `json:"title"`
	URL              string     `json:"url"` // Dedup key, may be a synthesized fragment URL
	IssuingAuthority string     `json:"issuing_authority"`
	Category         string     `json:"category"`
	RawText          string     `json:"raw_text"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	DiscoveredAt     time.Time  `json:"discovered_at"`
	Source           string     `json:"source"`
	Attachments      []string   `json:"attachments,omitempty"`
}

// StoredAnnouncement is an accepted announcement as persisted by the repository.
type StoredAnnouncement struct {
	Announcement
	ID           int64    `json:"id"`
	MatchedTerms []string `json:"matched_terms"`
	Score        int      `json:"score"`
	Status       Status   `json:"status"`
}

// RunOutcome is the write-once audit record of one source adapter execution.
type RunOutcome struct {
	RunID       string        `json:"run_id"`
	Source      string        `json:"source"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Outcome     Outcome       `json:"outcome"`
	Found       int           `json:"found"`
	New         int           `json:"new"`
	ErrorDetail string        `json:"error_detail,omitempty"`
}

type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// UpdateKindCreated is the update log kind written when an announcement is
// first stored.
const UpdateKindCreated = "created"

// UpdateLogEntry records a change to a stored announcement (currently only creation).
type UpdateLogEntry struct {
	AnnouncementID int64     `json:"announcement_id"`
	Kind           string    `json:"kind"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

// ArchivedFile is an entry of the attachment archive index.
type ArchivedFile struct {
	AnnouncementURL string    `json:"announcement_url"`
	FileURL         string    `json:"file_url"`
	FileName        string    `json:"file_name"`
	DownloadedAt    time.Time `json:"downloaded_at"`
	Version         int       `json:"version"`
	Pages           int       `json:"pages"`
	SizeBytes       int64     `json:"size_bytes"`
}

// Stats is a small summary of the repository contents.
type Stats struct {
	Total        int            `json:"total"`
	BySource     map[string]int `json:"by_source"`
	WithDeadline int            `json:"with_deadline"`
	Archived     int            `json:"archived_files"`
	LastRunAt    *time.Time     `json:"last_run_at,omitempty"`
}
