package archive_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-tracker/internal/archive"
	"github.com/couchcryptid/covid-tracker/internal/archive/fsarchive"
	"github.com/couchcryptid/covid-tracker/internal/archive/sqlite"
	"github.com/couchcryptid/covid-tracker/internal/domain"
	"github.com/couchcryptid/covid-tracker/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(d int) domain.CalendarDate {
	return domain.CalendarDate{Year: 2020, Month: time.January, Day: d}
}

func asOf(d int) time.Time {
	return time.Date(2020, 1, d, 18, 0, 0, 0, time.UTC)
}

func newFSArchive(t *testing.T) *fsarchive.Store {
	t.Helper()
	s, err := fsarchive.New(t.TempDir(), discardLogger())
	require.NoError(t, err)
	return s
}

func TestAggregator_GapDatesAscending(t *testing.T) {
	ctx := context.Background()
	store := newFSArchive(t)

	// Written out of order, with gaps.
	require.NoError(t, store.Write(ctx, day(5), domain.DailyReport{Info: domain.Info{AsOf: asOf(5), Positive: 30}}))
	require.NoError(t, store.Write(ctx, day(1), domain.DailyReport{Info: domain.Info{AsOf: asOf(1), Positive: 10}}))
	require.NoError(t, store.Write(ctx, day(3), domain.DailyReport{
		Info:  domain.Info{AsOf: asOf(3), Positive: 20},
		Ratio: &domain.Ratio{YesterdayRatio: 2, PrevPositive: 10},
	}))

	agg := archive.NewAggregator(store, discardLogger(), observability.NewMetricsForTesting())
	points, err := agg.Collect(ctx)
	require.NoError(t, err)

	require.Len(t, points, 3)
	assert.Equal(t, day(1), points[0].Date)
	assert.Equal(t, day(3), points[1].Date)
	assert.Equal(t, day(5), points[2].Date)
	assert.Equal(t, []uint32{10, 20, 30}, []uint32{points[0].Positive, points[1].Positive, points[2].Positive})

	assert.False(t, points[0].HasRatio)
	assert.Equal(t, float32(0), points[0].Ratio)
	assert.True(t, points[1].HasRatio)
	assert.Equal(t, float32(2), points[1].Ratio)
}

func TestAggregator_SortsByAsOfNotKey(t *testing.T) {
	ctx := context.Background()
	store := newFSArchive(t)

	// A later key with an earlier as_of sorts first.
	require.NoError(t, store.Write(ctx, day(1), domain.DailyReport{Info: domain.Info{AsOf: asOf(9)}}))
	require.NoError(t, store.Write(ctx, day(2), domain.DailyReport{Info: domain.Info{AsOf: asOf(2)}}))

	points, err := archive.NewAggregator(store, discardLogger(), observability.NewMetricsForTesting()).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, day(2), points[0].Date)
	assert.Equal(t, day(1), points[1].Date)
}

func TestAggregator_SkipsCorruptAndEmptyEntries(t *testing.T) {
	ctx := context.Background()
	store := newFSArchive(t)
	metrics := observability.NewMetricsForTesting()

	require.NoError(t, store.Write(ctx, day(1), domain.DailyReport{Info: domain.Info{AsOf: asOf(1), Positive: 1}}))
	require.NoError(t, store.Write(ctx, day(3), domain.DailyReport{Info: domain.Info{AsOf: asOf(3), Positive: 3}}))

	corrupt := store.DatePath(day(2))
	require.NoError(t, os.MkdirAll(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, fsarchive.ReportFile), []byte("[info\nas_of = "), 0o644))

	// A date directory holding only a raw check has no report.
	require.NoError(t, store.WriteCheck(ctx, day(4), asOf(4), domain.Snapshot{Region: "MN", AsOf: asOf(4)}))

	points, err := archive.NewAggregator(store, discardLogger(), metrics).Collect(ctx)
	require.NoError(t, err)

	require.Len(t, points, 2)
	assert.Equal(t, day(1), points[0].Date)
	assert.Equal(t, day(3), points[1].Date)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.AggregateSkipped), 0)
}

func TestAggregator_EmptyArchive(t *testing.T) {
	points, err := archive.NewAggregator(newFSArchive(t), discardLogger(), observability.NewMetricsForTesting()).
		Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, points)
}

// countingArchive records Dates calls and can fail enumeration.
type countingArchive struct {
	archive.Archive
	datesCalls int
	datesErr   error
	reports    map[domain.CalendarDate]domain.DailyReport
}

func (c *countingArchive) Dates(context.Context) ([]domain.CalendarDate, error) {
	c.datesCalls++
	if c.datesErr != nil {
		return nil, c.datesErr
	}
	var out []domain.CalendarDate
	for d := range c.reports {
		out = append(out, d)
	}
	return out, nil
}

func (c *countingArchive) Read(_ context.Context, d domain.CalendarDate) (domain.DailyReport, bool, error) {
	r, ok := c.reports[d]
	return r, ok, nil
}

func TestAggregator_LazyAndRepeatable(t *testing.T) {
	ctx := context.Background()
	a := &countingArchive{reports: map[domain.CalendarDate]domain.DailyReport{
		day(1): {Info: domain.Info{AsOf: asOf(1)}},
	}}
	agg := archive.NewAggregator(a, discardLogger(), observability.NewMetricsForTesting())

	seq := agg.Reports(ctx)
	assert.Equal(t, 0, a.datesCalls, "nothing is read before iteration")

	for range seq {
	}
	assert.Equal(t, 1, a.datesCalls)

	a.reports[day(2)] = domain.DailyReport{Info: domain.Info{AsOf: asOf(2)}}
	n := 0
	for range seq {
		n++
	}
	assert.Equal(t, 2, a.datesCalls, "each iteration re-reads the archive")
	assert.Equal(t, 2, n)
}

func TestAggregator_EarlyBreak(t *testing.T) {
	a := &countingArchive{reports: map[domain.CalendarDate]domain.DailyReport{
		day(1): {Info: domain.Info{AsOf: asOf(1)}},
		day(2): {Info: domain.Info{AsOf: asOf(2)}},
		day(3): {Info: domain.Info{AsOf: asOf(3)}},
	}}
	agg := archive.NewAggregator(a, discardLogger(), observability.NewMetricsForTesting())

	var first archive.Point
	for p, err := range agg.Reports(context.Background()) {
		require.NoError(t, err)
		first = p
		break
	}
	assert.Equal(t, day(1), first.Date)
}

func TestAggregator_EnumerationError(t *testing.T) {
	boom := errors.New("disk gone")
	a := &countingArchive{datesErr: boom}
	agg := archive.NewAggregator(a, discardLogger(), observability.NewMetricsForTesting())

	var errs []error
	for _, err := range agg.Reports(context.Background()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)

	_, err := agg.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestAggregator_CheckReadiness(t *testing.T) {
	ctx := context.Background()
	store := newFSArchive(t)
	agg := archive.NewAggregator(store, discardLogger(), observability.NewMetricsForTesting())

	require.Error(t, agg.CheckReadiness(ctx), "empty archive is not ready")

	require.NoError(t, store.Write(ctx, day(1), domain.DailyReport{Info: domain.Info{AsOf: asOf(1)}}))
	require.NoError(t, agg.CheckReadiness(ctx))

	failing := archive.NewAggregator(&countingArchive{datesErr: errors.New("gone")}, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, failing.CheckReadiness(ctx))
}

func TestAggregator_CheckReadinessPingsSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, day(1), domain.DailyReport{Info: domain.Info{AsOf: asOf(1)}}))

	agg := archive.NewAggregator(store, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, agg.CheckReadiness(ctx))

	require.NoError(t, store.Close())
	err = agg.CheckReadiness(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}
