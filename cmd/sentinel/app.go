package main

import (
	"context"
	"fmt"

	"github.com/david/bandi-sentinel/internal/config"
	"github.com/david/bandi-sentinel/internal/db"
	"github.com/david/bandi-sentinel/internal/ingest"
	"github.com/david/bandi-sentinel/internal/logger"
	"github.com/david/bandi-sentinel/internal/metrics"
	"github.com/david/bandi-sentinel/internal/notify"
	"github.com/david/bandi-sentinel/internal/relevance"
)

// app holds what every command needs: configuration, storage and metrics.
type app struct {
	cfg     *config.Config
	store   db.Backend
	metrics *metrics.Metrics
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	logger.Init(level, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &app{cfg: cfg, store: store, metrics: metrics.New()}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Log.WithError(err).Warn("[db] close failed")
	}
}

// notifier composes the configured channels. With none configured scans
// still run and results stay in the database.
func (a *app) notifier() ingest.Notifier {
	var channels []notify.Notifier
	if a.cfg.TelegramEnabled() {
		t := notify.NewTelegramNotifier(a.cfg.TelegramToken, a.cfg.TelegramChatID)
		if a.cfg.TelegramAPI != "" {
			t.APIBase = a.cfg.TelegramAPI
		}
		channels = append(channels, t)
	} else {
		logger.Log.Warn("[notify] TELEGRAM_TOKEN or TELEGRAM_CHAT_ID missing, Telegram disabled")
	}
	if a.cfg.EmailEnabled() {
		channels = append(channels, notify.NewEmailNotifier(notify.EmailConfig{
			SMTPServer: a.cfg.SMTP.Host,
			SMTPPort:   a.cfg.SMTP.Port,
			SMTPUser:   a.cfg.SMTP.Username,
			SMTPPass:   a.cfg.SMTP.Password,
			FromEmail:  a.cfg.SMTP.From,
			To:         a.cfg.SMTP.To,
		}))
	}
	return notify.Compose(channels...)
}

// pipeline builds the orchestrator from the source registry and profile.
func (a *app) pipeline(opts ingest.PipelineOptions) (*ingest.Pipeline, error) {
	reg, err := ingest.LoadRegistry(a.cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	profile, err := relevance.LoadProfile(a.cfg.ProfileFile)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	timeout := int(a.cfg.HTTPTimeout.Seconds())
	deps := ingest.AdapterDeps{
		NewFetcher: func(fc ingest.FetchConfig) ingest.Fetcher {
			if fc.TimeoutSeconds == 0 {
				fc.TimeoutSeconds = timeout
			}
			return ingest.DefaultFetcher(fc)
		},
	}
	if needsRenderer(reg) {
		deps.Renderer = ingest.NewChromeRenderer(a.cfg.ChromePath, a.cfg.RenderSettle, 0)
	}

	adapters, err := ingest.BuildAdapters(reg, deps)
	if err != nil {
		return nil, err
	}

	if opts.MinScore == nil {
		opts.MinScore = ingest.Threshold(a.cfg.MinScore)
	}
	if opts.DigestSchedule == "" {
		opts.DigestSchedule = a.cfg.DigestSchedule
	}

	p := ingest.NewPipeline(adapters, profile, a.store, a.notifier(), opts)
	attachments := ingest.NewHTTPFetcher(ingest.FetchConfig{TimeoutSeconds: timeout})
	attachments.Raw = true
	p.Archiver = ingest.NewArchiver(attachments, a.cfg.ArchiveDir)
	p.Metrics = a.metrics
	return p, nil
}

func needsRenderer(reg *ingest.Registry) bool {
	for _, s := range reg.Enabled() {
		if s.Kind == ingest.KindRenderedContainers {
			return true
		}
	}
	return false
}
