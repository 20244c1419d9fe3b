package ingest

import (
	"embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Adapter kinds understood by BuildAdapters.
const (
	KindStaticList         = "static_list"
	KindDatedLines         = "dated_lines"
	KindLinkPattern        = "link_pattern"
	KindRenderedContainers = "rendered_containers"
)

// Registry holds the configuration for all data sources. The order of Sources
// is the scan order.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	Engine         string `yaml:"engine,omitempty"`          // "http" (default) or "colly"
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"` // Default: 15
	MaxRetries     int    `yaml:"max_retries,omitempty"`
	AcceptLanguage string `yaml:"accept_language,omitempty"`
	Charset        string `yaml:"charset,omitempty"` // forced body encoding, e.g. ISO-8859-1
}

// SourceConfig defines a single data source for ingestion.
type SourceConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	URL       string `yaml:"url"`
	Authority string `yaml:"authority"` // issuing authority recorded on every item
	Category  string `yaml:"category"`
	Enabled   *bool  `yaml:"enabled,omitempty"` // default true

	Fetch FetchConfig `yaml:"fetch,omitempty"`

	// link_pattern
	LinkPattern string   `yaml:"link_pattern,omitempty"`
	SkipTitles  []string `yaml:"skip_titles,omitempty"`

	// static_list / rendered_containers text bounds
	MinTextLen int `yaml:"min_text_len,omitempty"`
	MaxTextLen int `yaml:"max_text_len,omitempty"`
	MinTitle   int `yaml:"min_title_len,omitempty"`

	// dated_lines
	MinLineLen int `yaml:"min_line_len,omitempty"`
}

// IsEnabled reports whether the source takes part in scans.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Validate checks a single source entry.
func (s SourceConfig) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("source without id")
	}
	if s.URL == "" && s.IsEnabled() {
		return fmt.Errorf("source %s: url is required", s.ID)
	}
	switch s.Kind {
	case KindStaticList, KindDatedLines, KindRenderedContainers:
	case KindLinkPattern:
		if s.LinkPattern == "" {
			return fmt.Errorf("source %s: link_pattern is required", s.ID)
		}
		if _, err := regexp.Compile(s.LinkPattern); err != nil {
			return fmt.Errorf("source %s: bad link_pattern: %w", s.ID, err)
		}
	default:
		return fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind)
	}
	switch s.Fetch.Engine {
	case "", "http", "colly":
	default:
		return fmt.Errorf("source %s: unknown fetch engine %q", s.ID, s.Fetch.Engine)
	}
	return nil
}

// LoadRegistry returns the registry from path, or the embedded sources.yaml
// when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	}
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	// Expand environment variables within the YAML content (e.g. ${FILSE_URL})
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(reg.Sources))
	for _, s := range reg.Sources {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %s", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	return &reg, nil
}

// Enabled returns the enabled sources in registry order.
func (r *Registry) Enabled() []SourceConfig {
	out := make([]SourceConfig, 0, len(r.Sources))
	for _, s := range r.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}
