package ingest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_DecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<p>Societ\xe0 e attivit\xe0</p>"))
	}))
	defer srv.Close()

	doc, err := NewHTTPFetcher(FetchConfig{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer doc.Body.Close()

	body, err := io.ReadAll(doc.Body)
	require.NoError(t, err)
	assert.Equal(t, "<p>Società e attività</p>", string(body))
}

func TestHTTPFetcher_ForcedCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>Universit\xe0</p>"))
	}))
	defer srv.Close()

	doc, err := NewHTTPFetcher(FetchConfig{Charset: "ISO-8859-1"}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer doc.Body.Close()

	body, _ := io.ReadAll(doc.Body)
	assert.Equal(t, "<p>Università</p>", string(body))
}

func TestHTTPFetcher_RetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetchConfig{MaxRetries: 2})
	f.BaseBackoff = time.Millisecond

	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	doc.Body.Close()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPFetcher_NonRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetchConfig{MaxRetries: 3})
	f.BaseBackoff = time.Millisecond

	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPFetcher_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetchConfig{MaxRetries: 1})
	f.BaseBackoff = time.Millisecond

	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusTooManyRequests, fe.StatusCode)
}

func TestHTTPFetcher_BinaryBodyUntouched(t *testing.T) {
	payload := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	doc, err := NewHTTPFetcher(FetchConfig{Charset: "ISO-8859-1"}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer doc.Body.Close()

	body, err := io.ReadAll(doc.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestIsTextual(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"", true},
		{"text/html; charset=iso-8859-1", true},
		{"text/plain", true},
		{"application/xhtml+xml", true},
		{"application/xml", true},
		{"application/pdf", false},
		{"application/octet-stream", false},
		{"image/png", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTextual(tt.contentType), tt.contentType)
	}
}

func TestCollyFetcher_Fetch(t *testing.T) {
	latin1 := "<html><head><title>Bandi</title></head><body><p>Bandi attivi per le attivit\xe0 produttive.</p>" +
		"<p>Contributi per la qualit\xe0 dei servizi e la competitivit\xe0 delle imprese.</p></body></html>"

	tests := []struct {
		name        string
		contentType string
		body        string
		want        []string
	}{
		{
			name:        "utf-8",
			contentType: "text/html; charset=utf-8",
			body:        "<html><body>Bandi attivi</body></html>",
			want:        []string{"Bandi attivi"},
		},
		{
			name:        "declared latin-1",
			contentType: "text/html; charset=ISO-8859-1",
			body:        latin1,
			want:        []string{"attività", "qualità"},
		},
		{
			name:        "undeclared latin-1",
			contentType: "text/html",
			body:        latin1,
			want:        []string{"attività", "qualità"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			doc, err := NewCollyFetcher(FetchConfig{TimeoutSeconds: 5}).Fetch(context.Background(), srv.URL+"/")
			require.NoError(t, err)
			body, err := io.ReadAll(doc.Body)
			require.NoError(t, err)
			assert.True(t, utf8.Valid(body))
			for _, w := range tt.want {
				assert.Contains(t, string(body), w)
			}
		})
	}
}

func TestCollyFetcher_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewCollyFetcher(FetchConfig{TimeoutSeconds: 5}).Fetch(context.Background(), srv.URL+"/missing")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}
