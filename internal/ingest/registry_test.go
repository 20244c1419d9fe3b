package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry_Embedded(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)

	var ids []string
	for _, s := range reg.Sources {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"filse_privati", "filse_imprese", "regione_liguria", "alfa_liguria", "filse_portale"}, ids)

	var enabled []string
	for _, s := range reg.Enabled() {
		enabled = append(enabled, s.ID)
	}
	assert.Equal(t, []string{"filse_privati", "filse_imprese", "regione_liguria", "alfa_liguria"}, enabled)
}

func TestBuildAdapters_KeepsRegistryOrder(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)

	adapters, err := BuildAdapters(reg, AdapterDeps{})
	require.NoError(t, err)
	require.Len(t, adapters, 4)
	assert.Equal(t, "filse_privati", adapters[0].Name())
	assert.Equal(t, "alfa_liguria", adapters[3].Name())
}

func TestParseRegistry_ExpandsEnv(t *testing.T) {
	t.Setenv("PORTAL_URL", "https://portale.example.it/bandi")
	reg, err := ParseRegistry([]byte(`
sources:
  - id: portale
    kind: rendered_containers
    url: ${PORTAL_URL}
`))
	require.NoError(t, err)
	assert.Equal(t, "https://portale.example.it/bandi", reg.Sources[0].URL)
	assert.True(t, reg.Sources[0].IsEnabled())
}

func TestParseRegistry_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown kind": "sources:\n  - {id: a, kind: rss, url: 'https://x'}\n",
		"missing url":  "sources:\n  - {id: a, kind: static_list}\n",
		"bad pattern":  "sources:\n  - {id: a, kind: link_pattern, url: 'https://x', link_pattern: '('}\n",
		"no pattern":   "sources:\n  - {id: a, kind: link_pattern, url: 'https://x'}\n",
		"duplicate id": "sources:\n  - {id: a, kind: static_list, url: 'https://x'}\n  - {id: a, kind: static_list, url: 'https://y'}\n",
		"bad engine":   "sources:\n  - {id: a, kind: static_list, url: 'https://x', fetch: {engine: curl}}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(doc))
			assert.Error(t, err)
		})
	}
}
