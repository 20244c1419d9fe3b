package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItalianDate(t *testing.T) {
	want := time.Date(2026, 3, 12, 23, 59, 59, 999999999, time.UTC)

	tests := []struct {
		in string
	}{
		{"12-03-2026"},
		{"12/03/2026"},
		{"12.03.2026"},
		{"12 marzo 2026"},
		{"12 Marzo 2026"},
		{"Scadenza: 12/03/2026"},
		{"2026-03-12"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseItalianDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseItalianDate_Invalid(t *testing.T) {
	for _, in := range []string{"", "domani", "31/02/2026", "12/13/2026"} {
		_, err := parseItalianDate(in)
		assert.Error(t, err, in)
	}
}

func TestFindDate_InText(t *testing.T) {
	d := findDate("Avviso pubblico - domande entro il 5 giugno 2026 ore 12")
	require.NotNil(t, d)
	assert.Equal(t, time.June, d.Month())
	assert.Equal(t, 5, d.Day())

	assert.Nil(t, findDate("nessuna data qui"))
}

func TestFindApplicationWindow(t *testing.T) {
	start, end, ok := findApplicationWindow("Domande dal 01-02-2026 al 28-02-2026")
	require.True(t, ok)
	assert.Equal(t, "01-02-2026", start)
	assert.Equal(t, "28-02-2026", end)

	_, _, ok = findApplicationWindow("dal 1-2-2026 al 28-2-2026")
	assert.False(t, ok)
}
