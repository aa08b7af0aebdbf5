package archive

import (
	"cmp"
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/covid-tracker/internal/domain"
	"github.com/couchcryptid/covid-tracker/internal/observability"
)

// Point is one entry of the aggregated series.
// Ratio is 0 when the report carries no ratio; HasRatio tells the two apart.
type Point struct {
	Date     domain.CalendarDate `json:"date"`
	AsOf     time.Time           `json:"as_of"`
	Tested   uint32              `json:"tested"`
	Positive uint32              `json:"positive"`
	Ratio    float32             `json:"yesterday_ratio"`
	HasRatio bool                `json:"has_ratio"`
}

// Aggregator reads every archived report and yields them in ascending as_of order.
type Aggregator struct {
	archive Archive
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAggregator creates an Aggregator over a.
func NewAggregator(a Archive, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{archive: a, logger: logger, metrics: metrics}
}

// Reports returns a lazy sequence of points. Nothing is read until the
// sequence is ranged over, and every range re-reads the archive.
//
// Only a failure to enumerate dates is yielded as an error, after which the
// sequence ends. Entries that cannot be read or decoded are logged and skipped.
func (g *Aggregator) Reports(ctx context.Context) iter.Seq2[Point, error] {
	return func(yield func(Point, error) bool) {
		points, err := g.collect(ctx)
		if err != nil {
			yield(Point{}, err)
			return
		}
		for _, p := range points {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// Collect drains Reports into a slice.
func (g *Aggregator) Collect(ctx context.Context) ([]Point, error) {
	var out []Point
	for p, err := range g.Reports(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (g *Aggregator) collect(ctx context.Context) ([]Point, error) {
	dates, err := g.archive.Dates(ctx)
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(dates))
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report, ok, err := g.archive.Read(ctx, date)
		if err != nil {
			g.logger.Warn("skipping unreadable archive entry",
				"date", date.String(),
				"kind", domain.ErrorKind(err),
				"error", err,
			)
			g.metrics.AggregateSkipped.Inc()
			continue
		}
		if !ok {
			g.logger.Debug("date has no report", "date", date.String())
			continue
		}
		points = append(points, pointFrom(date, report))
	}

	slices.SortStableFunc(points, func(a, b Point) int {
		return cmp.Compare(a.AsOf.UnixNano(), b.AsOf.UnixNano())
	})
	return points, nil
}

func pointFrom(date domain.CalendarDate, r domain.DailyReport) Point {
	p := Point{
		Date:     date,
		AsOf:     r.Info.AsOf,
		Tested:   r.Info.Tested,
		Positive: r.Info.Positive,
	}
	if r.Ratio != nil {
		p.Ratio = r.Ratio.YesterdayRatio
		p.HasRatio = true
	}
	return p
}

// pinger is implemented by backends with a connection to verify.
type pinger interface {
	Ping(ctx context.Context) error
}

// CheckReadiness reports an error until the archive can be listed and holds
// at least one date.
func (g *Aggregator) CheckReadiness(ctx context.Context) error {
	if p, ok := g.archive.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	dates, err := g.archive.Dates(ctx)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return errors.New("archive is empty")
	}
	return nil
}
