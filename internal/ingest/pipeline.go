package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/david/bandi-sentinel/internal/logger"
	"github.com/david/bandi-sentinel/internal/metrics"
	"github.com/david/bandi-sentinel/internal/models"
	"github.com/david/bandi-sentinel/internal/notify"
	"github.com/david/bandi-sentinel/internal/relevance"
)

// State is the phase a run is in.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateEvaluating State = "evaluating"
	StateReporting  State = "reporting"
	StateDone       State = "done"
)

const DefaultMinScore = 40

// PipelineOptions tunes a run.
type PipelineOptions struct {
	// MinScore is the alert threshold: a new announcement is notified when
	// its score is at least *MinScore. Nil selects DefaultMinScore; zero
	// alerts on every new announcement.
	MinScore       *int
	DigestSchedule string
	ForceDigest    bool
	SkipDigest     bool
	// SkipSummary suppresses the end-of-run message (alerts still go out).
	SkipSummary bool
}

// Pipeline runs every adapter in order and pushes candidates through
// filter, scorer and repository.
type Pipeline struct {
	Adapters []SourceAdapter
	Filter   *relevance.Filter
	Scorer   *relevance.Scorer
	Repo     Repository
	Notifier Notifier
	Archiver *Archiver        // optional
	Metrics  *metrics.Metrics // optional
	Options  PipelineOptions
	Now      func() time.Time

	mu    sync.RWMutex
	state State
}

func NewPipeline(adapters []SourceAdapter, profile relevance.Profile, repo Repository, notifier Notifier, opts PipelineOptions) *Pipeline {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if opts.MinScore == nil {
		opts.MinScore = Threshold(DefaultMinScore)
	}
	if opts.DigestSchedule == "" {
		opts.DigestSchedule = DefaultDigestSchedule
	}
	return &Pipeline{
		Adapters: adapters,
		Filter:   relevance.NewFilter(profile),
		Scorer:   relevance.NewScorer(profile),
		Repo:     repo,
		Notifier: notifier,
		Options:  opts,
		Now:      time.Now,
		state:    StateIdle,
	}
}

// SourceReport is the result of one adapter in a run.
type SourceReport struct {
	Outcome  models.RunOutcome `json:"outcome"`
	Filtered int               `json:"filtered"`
	Known    int               `json:"known"`
	// Failed counts candidates that could not be checked or stored.
	Failed int `json:"failed"`
	Alerts int `json:"alerts"`
}

// RunReport summarizes a complete run.
type RunReport struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
	Found      int            `json:"found"`
	New        int            `json:"new"`
	Alerts     int            `json:"alerts"`
	Total      int            `json:"total"`
	DigestSent bool           `json:"digest_sent"`
}

// State returns the phase of the run in progress, or the last one reached.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	logger.Log.Debugf("[pipeline] state %s", s)
}

// Run executes one full pass. It never fails: adapter, storage and delivery
// errors are logged and recorded, and the run carries on.
func (p *Pipeline) Run(ctx context.Context) RunReport {
	report := RunReport{RunID: uuid.NewString(), StartedAt: p.now()}
	log := logger.Log.WithField("run_id", report.RunID)
	log.Infof("[pipeline] run started with %d sources", len(p.Adapters))

	var alerts []models.StoredAnnouncement
	for _, adapter := range p.Adapters {
		sr, queued := p.runSource(ctx, report.RunID, adapter)
		report.Sources = append(report.Sources, sr)
		report.Found += sr.Outcome.Found
		report.New += sr.Outcome.New
		alerts = append(alerts, queued...)
	}

	p.setState(StateReporting)
	report.Alerts = p.sendAlerts(ctx, alerts)

	total, err := p.Repo.Count(ctx)
	if err != nil {
		log.WithError(err).Warn("[pipeline] count failed")
	}
	report.Total = total

	if !p.Options.SkipSummary {
		summary := notify.RunSummary{At: p.now(), Found: report.Found, New: report.New, Total: total}
		for _, sr := range report.Sources {
			if sr.Outcome.Outcome == models.OutcomeError {
				summary.Failed = append(summary.Failed, sr.Outcome.Source)
			}
		}
		p.deliver(ctx, notify.FormatRunSummary(summary))
	}

	report.DigestSent = p.maybeSendDigest(ctx, report.StartedAt)

	report.FinishedAt = p.now()
	if p.Metrics != nil {
		p.Metrics.ObserveRun(report.FinishedAt.Sub(report.StartedAt), report.FinishedAt)
	}
	p.setState(StateDone)

	log.Infof("[pipeline] run complete: found=%d new=%d alerts=%d total=%d", report.Found, report.New, report.Alerts, report.Total)
	return report
}

// RunDigest sends the full listing without scanning.
func (p *Pipeline) RunDigest(ctx context.Context) error {
	all, err := p.Repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list announcements: %w", err)
	}
	if len(all) == 0 {
		return nil
	}
	return p.Notifier.Send(ctx, notify.FormatDigest(all, p.now()))
}

func (p *Pipeline) runSource(ctx context.Context, runID string, adapter SourceAdapter) (SourceReport, []models.StoredAnnouncement) {
	name := adapter.Name()
	log := logger.Source(name).WithField("run_id", runID)
	start := p.now()

	sr := SourceReport{Outcome: models.RunOutcome{
		RunID:     runID,
		Source:    name,
		StartedAt: start,
		Outcome:   models.OutcomeOK,
	}}

	p.setState(StateScanning)
	candidates, err := scrapeSafe(ctx, adapter)
	if err != nil {
		sr.Outcome.Outcome = models.OutcomeError
		sr.Outcome.ErrorDetail = fmt.Sprintf("%s: %v", ErrorKind(err), err)
		candidates = nil
	}
	sr.Outcome.Found = len(candidates)

	p.setState(StateEvaluating)
	var queued []models.StoredAnnouncement
	now := p.now()
	for _, a := range candidates {
		rec, status := p.evaluate(ctx, a, now)
		switch status {
		case evalKnown:
			sr.Known++
		case evalFiltered:
			sr.Filtered++
		case evalFailed:
			sr.Failed++
		case evalInserted:
			sr.Outcome.New++
			p.archiveAttachments(ctx, rec)
			if rec.Score >= p.minScore() {
				queued = append(queued, rec)
				sr.Alerts++
			}
		}
	}

	errKind := ErrorKind(err)
	if sr.Failed > 0 && err == nil {
		sr.Outcome.ErrorDetail = fmt.Sprintf("storage: %d of %d candidates not stored", sr.Failed, sr.Outcome.Found)
		if sr.Failed == sr.Outcome.Found {
			sr.Outcome.Outcome = models.OutcomeError
			errKind = "storage"
		}
	}

	sr.Outcome.Duration = p.now().Sub(start)
	if err := p.Repo.RecordRunOutcome(ctx, sr.Outcome); err != nil {
		log.WithError(err).Warnf("[%s] failed to record run outcome", name)
	}
	if p.Metrics != nil {
		kind := ""
		if sr.Outcome.Outcome == models.OutcomeError {
			kind = errKind
		}
		p.Metrics.ObserveSource(name, sr.Outcome.Found, sr.Outcome.New, sr.Filtered, kind, sr.Outcome.Duration)
	}

	log.Infof("[%s] found=%d new=%d known=%d filtered=%d failed=%d outcome=%s",
		name, sr.Outcome.Found, sr.Outcome.New, sr.Known, sr.Filtered, sr.Failed, sr.Outcome.Outcome)
	return sr, queued
}

type evalStatus int

const (
	evalInserted evalStatus = iota
	evalKnown
	evalFiltered
	evalFailed
)

func (p *Pipeline) evaluate(ctx context.Context, a models.Announcement, now time.Time) (models.StoredAnnouncement, evalStatus) {
	log := logger.Source(a.Source).WithField("url", a.URL)

	exists, err := p.Repo.Exists(ctx, a.URL)
	if err != nil {
		log.WithError(err).Warn("existence check failed")
		return models.StoredAnnouncement{}, evalFailed
	}
	if exists {
		log.Debugf("already stored: %s", TruncateText(a.Title, 50))
		return models.StoredAnnouncement{}, evalKnown
	}

	if term, rejected := p.Filter.Rejection(a.Title, a.RawText); rejected {
		log.Debugf("filtered (%s): %s", term, TruncateText(a.Title, 50))
		return models.StoredAnnouncement{}, evalFiltered
	}

	rec := models.StoredAnnouncement{
		Announcement: a,
		MatchedTerms: p.Scorer.ExtractMatchedTerms(a.Title + " " + a.RawText),
		Score:        p.Scorer.Score(a, relevance.ScoreContext{Now: now}),
		Status:       models.StatusNew,
	}

	inserted, err := p.Repo.Insert(ctx, rec)
	if err != nil {
		log.WithError(err).Warn("insert failed")
		return rec, evalFailed
	}
	if !inserted {
		return rec, evalKnown
	}

	log.Infof("saved (score %d): %s", rec.Score, TruncateText(a.Title, 50))
	return rec, evalInserted
}

func (p *Pipeline) archiveAttachments(ctx context.Context, rec models.StoredAnnouncement) {
	if p.Archiver == nil {
		return
	}
	for i, fileURL := range rec.Attachments {
		if p.Archiver.MaxFiles > 0 && i >= p.Archiver.MaxFiles {
			break
		}
		entry, err := p.Archiver.Archive(ctx, rec.URL, fileURL)
		if err != nil {
			logger.Source(rec.Source).WithError(err).Warnf("attachment not archived: %s", fileURL)
			continue
		}
		if _, err := p.Repo.RecordArchivedFile(ctx, entry); err != nil {
			logger.Source(rec.Source).WithError(err).Warn("failed to index attachment")
		}
	}
}

func (p *Pipeline) sendAlerts(ctx context.Context, alerts []models.StoredAnnouncement) int {
	sent := 0
	for _, rec := range alerts {
		if p.deliver(ctx, notify.FormatNewAnnouncement(rec)) {
			sent++
		}
	}
	return sent
}

func (p *Pipeline) maybeSendDigest(ctx context.Context, at time.Time) bool {
	if p.Options.SkipDigest {
		return false
	}
	due := p.Options.ForceDigest
	if !due {
		var err error
		due, err = DigestDue(p.Options.DigestSchedule, at)
		if err != nil {
			logger.Log.WithError(err).Warn("[pipeline] digest schedule invalid, skipping")
			return false
		}
	}
	if !due {
		return false
	}

	all, err := p.Repo.ListAll(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("[pipeline] digest listing failed")
		return false
	}
	if len(all) == 0 {
		return false
	}
	logger.Log.Infof("[pipeline] sending digest of %d announcements", len(all))
	return p.deliver(ctx, notify.FormatDigest(all, at))
}

// deliver sends one message and reports success. Failures are logged only.
func (p *Pipeline) deliver(ctx context.Context, text string) bool {
	err := p.Notifier.Send(ctx, text)
	if p.Metrics != nil {
		p.Metrics.ObserveNotification(err)
	}
	if err != nil {
		logger.Log.WithError(err).Warn("[notify] delivery failed")
		return false
	}
	return true
}

// scrapeSafe calls the adapter and turns a panic into a ParseError.
func scrapeSafe(ctx context.Context, adapter SourceAdapter) (items []models.Announcement, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = &ParseError{Source: adapter.Name(), Err: fmt.Errorf("adapter panic: %v", r)}
		}
	}()
	return adapter.Scrape(ctx)
}

// Threshold returns a MinScore option value.
func Threshold(score int) *int {
	return &score
}

func (p *Pipeline) minScore() int {
	if p.Options.MinScore == nil {
		return DefaultMinScore
	}
	return *p.Options.MinScore
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
