package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/bandi-sentinel/internal/models"
)

func buildOne(t *testing.T, cfg SourceConfig, deps AdapterDeps) SourceAdapter {
	t.Helper()
	require.NoError(t, cfg.Validate())
	a, err := BuildAdapters(&Registry{Sources: []SourceConfig{cfg}}, deps)
	require.NoError(t, err)
	require.Len(t, a, 1)
	return a[0]
}

func TestStaticListAdapter(t *testing.T) {
	cfg := SourceConfig{ID: "filse_privati", Kind: KindStaticList, URL: "https://bandifilse.regione.liguria.it/",
		Authority: "FILSE Privati", Category: "bando"}
	f := &stubFetcher{pages: map[string]string{cfg.URL: page(`<ul>
		<li>Voucher formazione per le imprese turistiche 2026 Clicca qui per accedere</li>
		<li>Breve</li>
		<li>Voucher formazione per le imprese turistiche 2026 Clicca qui per altro</li>
		<li>Contributi per la digitalizzazione delle PMI liguri <a href="/doc/bando.pdf">Bando</a></li>
		<li>` + strings.Repeat("testo lungo ", 60) + `</li>
	</ul>`)}}

	got, err := buildOne(t, cfg, depsFor(f)).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "Voucher formazione per le imprese turistiche 2026", first.Title)
	assert.Equal(t, "https://bandifilse.regione.liguria.it/#voucher-formazione-per-le-imprese-turistiche-2026", first.URL)
	assert.Equal(t, "FILSE Privati", first.IssuingAuthority)
	assert.Equal(t, "bando", first.Category)
	assert.Equal(t, "filse_privati", first.Source)
	assert.Equal(t, fixedNow(), first.DiscoveredAt)
	assert.Contains(t, first.RawText, "Clicca qui per accedere")

	assert.Equal(t, []string{"https://bandifilse.regione.liguria.it/doc/bando.pdf"}, got[1].Attachments)
}

func TestDatedLinesAdapter(t *testing.T) {
	cfg := SourceConfig{ID: "filse_imprese", Kind: KindDatedLines, URL: "https://filseonline.regione.liguria.it/FilseWeb/Home.do",
		Authority: "FILSE Imprese"}
	f := &stubFetcher{pages: map[string]string{cfg.URL: page(`<table>
		<tr><td>Bando per il sostegno agli investimenti delle imprese artigiane</td></tr>
		<tr><td>Domande</td></tr>
		<tr><td>dal 01-02-2026 al 30-04-2026</td></tr>
		<tr><td>Riga corta</td></tr>
		<tr><td>Un altro titolo molto lungo senza alcuna finestra temporale associata</td></tr>
		<tr><td>testo</td></tr>
		<tr><td>altro testo</td></tr>
	</table>`)}}

	got, err := buildOne(t, cfg, depsFor(f)).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	a := got[0]
	assert.Equal(t, "Bando per il sostegno agli investimenti delle imprese artigiane", a.Title)
	assert.Equal(t, "Domande dal 01-02-2026 al 30-04-2026. Bando per il sostegno agli investimenti delle imprese artigiane", a.RawText)
	require.NotNil(t, a.Deadline)
	assert.Equal(t, time.Date(2026, 4, 30, 23, 59, 59, 999999999, time.UTC), *a.Deadline)
	assert.True(t, strings.HasPrefix(a.URL, cfg.URL+"#bando-per-il-sostegno"))
}

func TestLinkPatternAdapter(t *testing.T) {
	cfg := SourceConfig{ID: "regione_liguria", Kind: KindLinkPattern,
		URL:         "https://www.regione.liguria.it/homepage-bandi-e-avvisi/publiccompetitions/",
		Authority:   "Regione Liguria",
		LinkPattern: `/publiccompetition/\d+:`}
	f := &stubFetcher{pages: map[string]string{cfg.URL: page(`
		<div class="item"><a href="/homepage-bandi-e-avvisi/publiccompetition/1234:bando-turismo.html">Bando turismo sostenibile 2026</a> <span>Scadenza 15 aprile 2026</span> <a href="/media/allegato.pdf">Allegato</a></div>
		<div><a href="/publiccompetition/99:x.html">Corto</a></div>
		<div><a href="/altro/link">Link non pertinente molto lungo</a></div>
		<div><a href="https://WWW.regione.liguria.it/homepage-bandi-e-avvisi/publiccompetition/1234:bando-turismo.html?utm_source=x">Bando turismo sostenibile 2026</a></div>
	`)}}

	got, err := buildOne(t, cfg, depsFor(f)).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	a := got[0]
	assert.Equal(t, "https://www.regione.liguria.it/homepage-bandi-e-avvisi/publiccompetition/1234:bando-turismo.html", a.URL)
	assert.Equal(t, "Bando turismo sostenibile 2026 Scadenza 15 aprile 2026 Allegato", a.RawText)
	require.NotNil(t, a.Deadline)
	assert.Equal(t, time.April, a.Deadline.Month())
	assert.Equal(t, 15, a.Deadline.Day())
	assert.Equal(t, []string{"https://www.regione.liguria.it/media/allegato.pdf"}, a.Attachments)
}

func TestLinkPatternAdapter_SkipTitles(t *testing.T) {
	cfg := SourceConfig{ID: "alfa_liguria", Kind: KindLinkPattern,
		URL:         "https://www.alfaliguria.it/index.php/avvisi-attivi-fse-e-altri-fondi",
		LinkPattern: `/index\.php/avvisi-attivi-fse-e-altri-fondi/\d+`,
		SkipTitles:  []string{"vai alla pagina dedicata"}}
	f := &stubFetcher{pages: map[string]string{cfg.URL: page(`
		<p><a href="/index.php/avvisi-attivi-fse-e-altri-fondi/10-corso">Vai alla pagina dedicata</a></p>
		<p><a href="/index.php/avvisi-attivi-fse-e-altri-fondi/11-corso">Corso OSS finanziato FSE 2026</a> entro il 30/06/2026</p>
	`)}}

	got, err := buildOne(t, cfg, depsFor(f)).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Corso OSS finanziato FSE 2026", got[0].Title)
	require.NotNil(t, got[0].Deadline)
	assert.Equal(t, time.June, got[0].Deadline.Month())
}

func TestRenderedContainersAdapter(t *testing.T) {
	cfg := SourceConfig{ID: "portale", Kind: KindRenderedContainers, URL: "https://portale.example.it/bandi", Authority: "FILSE"}
	r := stubRenderer{html: page(`
		<section><p><strong>Bando Resto al Sud turismo 2026</strong> domande entro il 10/05/2026</p></section>
		<div class="card"><a href="/bandi/42">Voucher internazionalizzazione imprese</a><p>Contributo a fondo perduto per PMI liguri operanti nel turismo</p></div>
	`)}

	got, err := buildOne(t, cfg, AdapterDeps{Renderer: r, Now: fixedNow}).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Bando Resto al Sud turismo 2026", got[0].Title)
	assert.Equal(t, "https://portale.example.it/bandi#bando-resto-al-sud-turismo-2026", got[0].URL)
	require.NotNil(t, got[0].Deadline)

	assert.Equal(t, "Voucher internazionalizzazione imprese", got[1].Title)
	assert.Equal(t, "https://portale.example.it/bandi/42", got[1].URL)
}

func TestRenderedContainersAdapter_BoldRunsSharingParent(t *testing.T) {
	cfg := SourceConfig{ID: "portale", Kind: KindRenderedContainers, URL: "https://portale.example.it/bandi"}

	var body strings.Builder
	body.WriteString(`<div class="elenco">`)
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&body, `<strong>Avviso contributi numero %d per imprese</strong> scadenza 1%d/05/2026 <a href="/bandi/%d">Dettagli</a><br>`, i, i, i)
	}
	body.WriteString(`<strong>Avviso senza pagina di dettaglio</strong> <a href="/docs/avviso.pdf">Testo</a>`)
	body.WriteString(`</div>`)
	r := stubRenderer{html: page(body.String())}

	got, err := buildOne(t, cfg, AdapterDeps{Renderer: r, Now: fixedNow}).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 7)

	for i := 0; i < 6; i++ {
		assert.Equal(t, fmt.Sprintf("Avviso contributi numero %d per imprese", i+1), got[i].Title)
		assert.Equal(t, fmt.Sprintf("https://portale.example.it/bandi/%d", i+1), got[i].URL)
		require.NotNil(t, got[i].Deadline)
		assert.Equal(t, 11+i, got[i].Deadline.Day())
	}

	last := got[6]
	assert.Equal(t, "https://portale.example.it/bandi#avviso-senza-pagina-di-dettaglio", last.URL)
	assert.Equal(t, []string{"https://portale.example.it/docs/avviso.pdf"}, last.Attachments)
}

func TestRenderedContainersAdapter_LinkWrappingBold(t *testing.T) {
	cfg := SourceConfig{ID: "portale", Kind: KindRenderedContainers, URL: "https://portale.example.it/bandi"}
	r := stubRenderer{html: page(`<p><a href="/bandi/77"><strong>Bando digitalizzazione PMI liguri</strong></a></p>`)}

	got, err := buildOne(t, cfg, AdapterDeps{Renderer: r, Now: fixedNow}).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://portale.example.it/bandi/77", got[0].URL)
}

func TestRenderedAdapterNeedsRenderer(t *testing.T) {
	cfg := SourceConfig{ID: "portale", Kind: KindRenderedContainers, URL: "https://portale.example.it/bandi"}
	_, err := BuildAdapters(&Registry{Sources: []SourceConfig{cfg}}, AdapterDeps{})
	assert.Error(t, err)
}

func TestScrape_FetchFailureYieldsNothing(t *testing.T) {
	cfg := SourceConfig{ID: "filse_privati", Kind: KindStaticList, URL: "https://bandifilse.regione.liguria.it/"}

	f := &stubFetcher{errs: map[string]error{cfg.URL: &FetchError{URL: cfg.URL, StatusCode: 503}}}
	got, err := buildOne(t, cfg, depsFor(f)).Scrape(context.Background())
	assert.Empty(t, got)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 503, fe.StatusCode)
	assert.Equal(t, "fetch", ErrorKind(err))
}

func TestScrape_EmptyPageIsParseError(t *testing.T) {
	cfg := SourceConfig{ID: "filse_privati", Kind: KindStaticList, URL: "https://bandifilse.regione.liguria.it/"}
	f := &stubFetcher{pages: map[string]string{cfg.URL: page("   ")}}

	got, err := buildOne(t, cfg, depsFor(f)).Scrape(context.Background())
	assert.Empty(t, got)
	assert.Equal(t, "parse", ErrorKind(err))
}

func TestScrape_RendererFailure(t *testing.T) {
	cfg := SourceConfig{ID: "portale", Kind: KindRenderedContainers, URL: "https://portale.example.it/bandi"}
	r := stubRenderer{err: &FetchError{URL: cfg.URL, Err: errors.New("chrome not found")}}

	got, err := buildOne(t, cfg, AdapterDeps{Renderer: r}).Scrape(context.Background())
	assert.Nil(t, got)
	assert.Equal(t, "fetch", ErrorKind(err))
}

func TestScrape_ExtractionPanicIsParseError(t *testing.T) {
	RegisterAdapterKind("exploding", newFetchedAdapter(func(*goquery.Document, *url.URL, SourceConfig) ([]models.Announcement, error) {
		panic("boom")
	}))
	defer delete(adapterFactories, "exploding")

	cfg := SourceConfig{ID: "x", Kind: "exploding", URL: "https://example.org/"}
	f := &stubFetcher{pages: map[string]string{cfg.URL: page("contenuto")}}
	adapters, err := BuildAdapters(&Registry{Sources: []SourceConfig{cfg}}, depsFor(f))
	require.NoError(t, err)

	got, err := adapters[0].Scrape(context.Background())
	assert.Nil(t, got)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "boom")
}
