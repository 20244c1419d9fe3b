package ingest

import (
	"context"
	"io"
	"time"

	"github.com/david/bandi-sentinel/internal/models"
)

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// Renderer returns the fully rendered markup of a page. Implementations drive a
// headless browser; the pipeline only sees HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// SourceAdapter extracts candidate announcements from one site.
type SourceAdapter interface {
	// Name is the registry id of the source.
	Name() string
	// Scrape fetches and parses the source. On failure it returns no
	// announcements and a FetchError or ParseError.
	Scrape(ctx context.Context) ([]models.Announcement, error)
}

// Repository is the storage the pipeline needs.
type Repository interface {
	Exists(ctx context.Context, url string) (bool, error)
	Insert(ctx context.Context, rec models.StoredAnnouncement) (bool, error)
	RecordRunOutcome(ctx context.Context, outcome models.RunOutcome) error
	RecordArchivedFile(ctx context.Context, f models.ArchivedFile) (bool, error)
	Count(ctx context.Context) (int, error)
	ListAll(ctx context.Context) ([]models.StoredAnnouncement, error)
}

// Notifier delivers text messages. Delivery is best-effort.
type Notifier interface {
	Send(ctx context.Context, text string) error
}
