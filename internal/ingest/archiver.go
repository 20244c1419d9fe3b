package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	rpdf "rsc.io/pdf"

	"github.com/david/bandi-sentinel/internal/models"
)

const maxAttachmentBytes = 20 * 1024 * 1024

// Archiver downloads PDF attachments of new announcements and indexes them.
// Files are written under Dir when it is set; otherwise only the index row
// is produced.
type Archiver struct {
	Fetcher  Fetcher
	Dir      string
	MaxFiles int // per announcement, 0 = unlimited
	Now      func() time.Time
}

func NewArchiver(fetcher Fetcher, dir string) *Archiver {
	return &Archiver{Fetcher: fetcher, Dir: dir, MaxFiles: 5, Now: time.Now}
}

// Archive fetches one attachment and returns its index entry.
func (a *Archiver) Archive(ctx context.Context, announcementURL, fileURL string) (models.ArchivedFile, error) {
	entry := models.ArchivedFile{
		AnnouncementURL: announcementURL,
		FileURL:         fileURL,
		FileName:        fileNameFromURL(fileURL),
		Version:         1,
	}

	doc, err := a.Fetcher.Fetch(ctx, fileURL)
	if err != nil {
		return entry, err
	}
	defer doc.Body.Close()

	content, err := io.ReadAll(io.LimitReader(doc.Body, maxAttachmentBytes+1))
	if err != nil {
		return entry, &FetchError{URL: fileURL, Err: err}
	}
	if len(content) > maxAttachmentBytes {
		return entry, &FetchError{URL: fileURL, Err: fmt.Errorf("attachment larger than %d bytes", maxAttachmentBytes)}
	}

	entry.SizeBytes = int64(len(content))
	entry.DownloadedAt = a.now()

	pages, err := countPDFPages(content)
	if err != nil {
		return entry, &ParseError{Source: fileURL, Err: err}
	}
	entry.Pages = pages

	if a.Dir != "" {
		if err := os.MkdirAll(a.Dir, 0o755); err != nil {
			return entry, fmt.Errorf("create archive dir: %w", err)
		}
		target := filepath.Join(a.Dir, slugify(announcementURL)+"_"+entry.FileName)
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return entry, fmt.Errorf("write attachment: %w", err)
		}
	}

	return entry, nil
}

func (a *Archiver) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// countPDFPages opens the document with rsc.io/pdf. The parser panics on some
// malformed input, so panics are turned into errors.
func countPDFPages(content []byte) (pages int, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			pages = 0
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "attachment.pdf"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "attachment.pdf"
	}
	return name
}
