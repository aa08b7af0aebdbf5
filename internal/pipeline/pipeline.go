package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-tracker/internal/archive"
	"github.com/couchcryptid/covid-tracker/internal/domain"
	"github.com/couchcryptid/covid-tracker/internal/observability"
	"github.com/couchcryptid/covid-tracker/internal/render"
)

// Fetcher retrieves raw source content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor turns raw content into a snapshot.
type Extractor interface {
	Extract(raw []byte) (domain.Snapshot, error)
}

// Renderer turns the aggregated series into a document.
type Renderer interface {
	Render(points []archive.Point) (render.Document, error)
}

// Publisher stores a rendered document somewhere readers can reach it.
type Publisher interface {
	Publish(doc render.Document) error
}

// Notifier announces a newly written report.
type Notifier interface {
	Notify(ctx context.Context, note domain.Notification) error
}

// Stages are the collaborators of one run. Renderer, Publisher and Notifier
// are optional; a nil stage is skipped.
type Stages struct {
	Fetcher   Fetcher
	SourceURL string
	Extractor Extractor
	Archive   archive.Archive
	Rule      domain.DateRule
	Renderer  Renderer
	Publisher Publisher
	Notifier  Notifier
}

// Result describes a successful run.
type Result struct {
	RunID   string
	Date    domain.CalendarDate
	Report  domain.DailyReport
	Check   domain.Snapshot
	Points  []archive.Point
	Content render.Document
}

// Pipeline runs one fetch-extract-archive cycle.
type Pipeline struct {
	stages     Stages
	aggregator *archive.Aggregator
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	ready      atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(s Stages, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		stages:     s,
		aggregator: archive.NewAggregator(s.Archive, logger, metrics),
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
	}
}

// WithClock replaces the clock used for run timing.
func (p *Pipeline) WithClock(c clockwork.Clock) *Pipeline {
	p.clock = c
	return p
}

// CheckReadiness returns nil once a run has archived a report.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not archived a report yet")
	}
	return nil
}

// Run executes one cycle. Fetch, extraction, yesterday lookup and archive
// write failures abort the run; nothing is written when the first two fail.
// Render, publish and notify failures are logged and counted only.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.clock.Now()
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)

	res, err := p.archiveToday(ctx, runID, logger)
	if err != nil {
		p.metrics.Runs.WithLabelValues("failure").Inc()
		logger.Error("run failed", "kind", domain.ErrorKind(err), "error", err)
		return Result{}, err
	}
	p.ready.Store(true)

	p.downstream(ctx, &res, logger)

	p.metrics.Runs.WithLabelValues("success").Inc()
	p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	logger.Info("run complete",
		"date", res.Date.String(),
		"positive", res.Report.Info.Positive,
		"has_ratio", res.Report.Ratio != nil,
		"duration", p.clock.Since(start),
	)
	return res, nil
}

// archiveToday covers the fail-fast half of a run.
func (p *Pipeline) archiveToday(ctx context.Context, runID string, logger *slog.Logger) (Result, error) {
	raw, err := p.stages.Fetcher.Fetch(ctx, p.stages.SourceURL)
	if err != nil {
		p.metrics.ExtractErrors.WithLabelValues(domain.ErrorKind(err)).Inc()
		return Result{}, err
	}

	snap, err := p.stages.Extractor.Extract(raw)
	if err != nil {
		p.metrics.ExtractErrors.WithLabelValues(domain.ErrorKind(err)).Inc()
		return Result{}, fmt.Errorf("extract snapshot: %w", err)
	}

	rule := p.stages.Rule
	date := rule.DateOf(snap.AsOf)
	logger = logger.With("date", date.String())

	var yesterday *domain.DailyReport
	prev, ok, err := p.stages.Archive.Read(ctx, date.Prev())
	if err != nil {
		return Result{}, fmt.Errorf("read previous day %s: %w", date.Prev(), err)
	}
	if ok {
		yesterday = &prev
	} else {
		logger.Info("no report for previous day", "previous", date.Prev().String())
	}

	report, defaulted := domain.NewDailyReport(snap, yesterday)
	for _, field := range defaulted {
		logger.Warn("field unknown, recorded as 0", "field", field)
		p.metrics.DefaultedFields.WithLabelValues(field).Inc()
	}

	if err := p.stages.Archive.WriteCheck(ctx, date, rule.Local(snap.AsOf), snap); err != nil {
		return Result{}, fmt.Errorf("write raw check: %w", err)
	}
	p.metrics.ArchiveWrites.WithLabelValues("check").Inc()

	if err := p.stages.Archive.Write(ctx, date, report); err != nil {
		return Result{}, fmt.Errorf("write report: %w", err)
	}
	p.metrics.ArchiveWrites.WithLabelValues("report").Inc()

	p.metrics.Positive.Set(float64(report.Info.Positive))
	if report.Ratio != nil {
		p.metrics.YesterdayRatio.Set(float64(report.Ratio.YesterdayRatio))
	} else {
		p.metrics.YesterdayRatio.Set(0)
	}

	return Result{RunID: runID, Date: date, Report: report, Check: snap}, nil
}

// downstream renders, publishes and notifies. None of it can fail the run.
func (p *Pipeline) downstream(ctx context.Context, res *Result, logger *slog.Logger) {
	if p.stages.Renderer != nil {
		p.renderAndPublish(ctx, res, logger)
	}

	if p.stages.Notifier != nil {
		note := domain.Notification{RunID: res.RunID, Date: res.Date, Report: res.Report, Check: res.Check}
		if err := p.stages.Notifier.Notify(ctx, note); err != nil {
			p.metrics.NotifyFailures.Inc()
			logger.Warn("notify failed", "error", err)
		}
	}
}

func (p *Pipeline) renderAndPublish(ctx context.Context, res *Result, logger *slog.Logger) {
	points, err := p.aggregator.Collect(ctx)
	if err != nil {
		p.metrics.RenderFailures.Inc()
		logger.Warn("aggregate failed", "error", err)
		return
	}
	res.Points = points

	doc, err := p.stages.Renderer.Render(points)
	if err != nil {
		p.metrics.RenderFailures.Inc()
		logger.Warn("render failed", "error", err)
		return
	}
	res.Content = doc

	if p.stages.Publisher == nil {
		return
	}
	if err := p.stages.Publisher.Publish(doc); err != nil {
		p.metrics.RenderFailures.Inc()
		logger.Warn("publish failed", "error", err)
	}
}
