package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a valid document with the given number of empty pages. The
// second line is the usual binary marker comment.
func minimalPDF(pages int) string {
	var buf bytes.Buffer
	offsets := []int{}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.String()
}

func TestCountPDFPages(t *testing.T) {
	n, err := countPDFPages([]byte(minimalPDF(3)))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = countPDFPages([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestArchiver_Archive(t *testing.T) {
	dir := t.TempDir()
	fileURL := "https://www.regione.liguria.it/media/Allegato_A.pdf"
	f := &stubFetcher{pages: map[string]string{fileURL: minimalPDF(2)}}

	a := NewArchiver(f, dir)
	a.Now = fixedNow

	entry, err := a.Archive(context.Background(), "https://www.regione.liguria.it/bando/1", fileURL)
	require.NoError(t, err)
	assert.Equal(t, "Allegato_A.pdf", entry.FileName)
	assert.Equal(t, 2, entry.Pages)
	assert.Equal(t, 1, entry.Version)
	assert.Equal(t, fixedNow(), entry.DownloadedAt)
	assert.Positive(t, entry.SizeBytes)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ".pdf", filepath.Ext(files[0].Name()))
}

func TestArchiver_OverHTTPKeepsBinaryBytes(t *testing.T) {
	content := minimalPDF(3)

	tests := []struct {
		name        string
		contentType string
		raw         bool
	}{
		{name: "pdf content type", contentType: "application/pdf"},
		{name: "octet stream", contentType: "application/octet-stream"},
		{name: "mislabelled as html", contentType: "text/html", raw: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(content))
			}))
			defer srv.Close()

			f := NewHTTPFetcher(FetchConfig{TimeoutSeconds: 5})
			f.Raw = tt.raw
			entry, err := NewArchiver(f, "").Archive(context.Background(), srv.URL+"/bando", srv.URL+"/allegato.pdf")
			require.NoError(t, err)
			assert.Equal(t, int64(len(content)), entry.SizeBytes)
			assert.Equal(t, 3, entry.Pages)
		})
	}
}

func TestArchiver_RejectsNonPDF(t *testing.T) {
	fileURL := "https://example.org/fake.pdf"
	f := &stubFetcher{pages: map[string]string{fileURL: "<html>login required</html>"}}

	_, err := NewArchiver(f, "").Archive(context.Background(), "https://example.org/bando", fileURL)
	assert.Equal(t, "parse", ErrorKind(err))
}

func TestFileNameFromURL(t *testing.T) {
	assert.Equal(t, "bando.pdf", fileNameFromURL("https://x.it/a/b/bando.pdf?v=2"))
	assert.Equal(t, "attachment.pdf", fileNameFromURL("https://x.it/"))
}
