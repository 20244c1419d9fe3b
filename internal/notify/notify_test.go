package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"

	"github.com/david/bandi-sentinel/internal/models"
)

func TestSplitMessage_ShortTextIsOneChunk(t *testing.T) {
	assert.Equal(t, []string{"ciao\nmondo"}, SplitMessage("ciao\nmondo", 4000))
}

func TestSplitMessage_ChunksRespectLimitAndRebuildLines(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for round := 0; round < 50; round++ {
		limit := 20 + rng.Intn(200)
		lines := make([]string, 1+rng.Intn(300))
		for i := range lines {
			lines[i] = strings.Repeat("è", rng.Intn(limit)) // multi-byte, never over limit
		}
		text := strings.Join(lines, "\n")

		chunks := SplitMessage(text, limit)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), limit)
		}
		assert.Equal(t, text, strings.Join(chunks, "\n"), "round %d", round)
	}
}

func TestSplitMessage_HardSplitsOverlongLine(t *testing.T) {
	text := "intro\n" + strings.Repeat("x", 25) + "\nfine"
	chunks := SplitMessage(text, 10)

	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
	assert.Equal(t, []string{"intro", "xxxxxxxxxx", "xxxxxxxxxx", "xxxxx\nfine"}, chunks)
}

func TestTelegramNotifier_Send(t *testing.T) {
	var got []sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.APIBase = srv.URL
	n.Limit = 12

	require.NoError(t, n.Send(context.Background(), "prima riga\nseconda riga"))
	require.Len(t, got, 2)
	assert.Equal(t, "42", got[0].ChatID)
	assert.True(t, got[0].DisableWebPagePreview)
	assert.Equal(t, "prima riga", got[0].Text)
	assert.Equal(t, "seconda riga", got[1].Text)
}

func TestTelegramNotifier_NonOKIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.APIBase = srv.URL

	err := n.Send(context.Background(), "ciao")
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusBadRequest, de.StatusCode)
	assert.Contains(t, de.Body, "chat not found")
}

func TestTelegramNotifier_ErrorHidesToken(t *testing.T) {
	n := NewTelegramNotifier("SECRET", "42")
	n.APIBase = "http://127.0.0.1:1"

	err := n.Send(context.Background(), "ciao")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailNotifier_Send(t *testing.T) {
	d := &fakeDialer{}
	n := NewEmailNotifier(EmailConfig{FromEmail: "bot@example.org", To: []string{"me@example.org"}})
	n.dialer = d

	require.NoError(t, n.Send(context.Background(), "✅ Scansione completata\nresto"))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"Bandi Sentinel: ✅ Scansione completata"}, d.sent[0].GetHeader("Subject"))

	d.err = errors.New("smtp down")
	var de *DeliveryError
	require.ErrorAs(t, n.Send(context.Background(), "x"), &de)
	assert.Equal(t, "email", de.Channel)
}

type recordingNotifier struct {
	msgs []string
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, text string) error {
	r.msgs = append(r.msgs, text)
	return r.err
}

func TestCompose(t *testing.T) {
	assert.IsType(t, Nop{}, Compose(nil, nil))

	a := &recordingNotifier{}
	assert.Same(t, a, Compose(nil, a))

	b := &recordingNotifier{err: fmt.Errorf("b failed")}
	m := Compose(a, b)
	err := m.Send(context.Background(), "hello")
	assert.EqualError(t, err, "b failed")
	assert.Equal(t, []string{"hello"}, a.msgs)
	assert.Equal(t, []string{"hello"}, b.msgs)
}

func TestFormatNewAnnouncement(t *testing.T) {
	d := time.Date(2026, 4, 30, 23, 59, 59, 0, time.UTC)
	msg := FormatNewAnnouncement(models.StoredAnnouncement{
		Announcement: models.Announcement{
			Title:            "Voucher formazione PMI turismo",
			URL:              "https://example.org/bando/1",
			IssuingAuthority: "FILSE Imprese",
			Deadline:         &d,
		},
		MatchedTerms: []string{"formazione", "turismo"},
		Score:        85,
	})

	assert.True(t, strings.HasPrefix(msg, "🆕 NUOVO BANDO\n\nVoucher formazione PMI turismo"))
	assert.Contains(t, msg, "📅 Scadenza: 30/04/2026")
	assert.Contains(t, msg, "🏷️ Keywords: formazione, turismo")
	assert.Contains(t, msg, "⭐ Score: 85/100")
	assert.True(t, strings.HasSuffix(msg, "🔗 https://example.org/bando/1"))
}

func TestFormatRunSummary(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 5, 0, 0, time.UTC)

	none := FormatRunSummary(RunSummary{At: at, Found: 12, Total: 40})
	assert.Contains(t, none, "📅 01/03/2026 08:05")
	assert.Contains(t, none, "🆕 Nessun bando nuovo")
	assert.NotContains(t, none, "Fonti in errore")

	some := FormatRunSummary(RunSummary{At: at, Found: 12, New: 3, Total: 43, Failed: []string{"alfa_liguria"}})
	assert.Contains(t, some, "🆕 Nuovi bandi trovati: 3")
	assert.Contains(t, some, "⚠️ Fonti in errore: alfa_liguria")
}

func TestFormatDigest(t *testing.T) {
	long := strings.Repeat("a", 100)
	msg := FormatDigest([]models.StoredAnnouncement{
		{Announcement: models.Announcement{Title: long, IssuingAuthority: "ALFA Liguria"}},
		{Announcement: models.Announcement{Title: "Secondo"}},
	}, time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC))

	assert.Contains(t, msg, "📋 RIEPILOGO QUINDICINALE - 16/03/2026")
	assert.Contains(t, msg, "Tutti i 2 bandi attivi nel database:")
	assert.Contains(t, msg, "1. "+strings.Repeat("a", 80)+"\n")
	assert.Contains(t, msg, "   🏢 ALFA Liguria | 📅 Scade: N/A")
	assert.Contains(t, msg, "2. Secondo")
}
