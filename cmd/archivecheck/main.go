// Command archivecheck verifies the integrity of a report archive: every entry
// decodes, every report sits under the date its as_of maps to, and every ratio
// agrees with the previous day's report.
//
// Usage:
//
//	go run ./cmd/archivecheck [-dir ./output] [-backend fs|sqlite]
//
// Other settings (COVID_TIMEZONE, SQLITE_PATH) come from the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/couchcryptid/covid-tracker/internal/archive"
	"github.com/couchcryptid/covid-tracker/internal/config"
	"github.com/couchcryptid/covid-tracker/internal/domain"
)

// ratioTolerance absorbs float32 rounding in archived ratios.
const ratioTolerance = 1e-4

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// entry is one archived date with its report, if it could be read.
type entry struct {
	date   domain.CalendarDate
	report domain.DailyReport
	ok     bool
}

func main() {
	dir := flag.String("dir", "", "archive root (overrides COVID_OUTPUT_DIR)")
	backend := flag.String("backend", "", "archive backend: fs or sqlite (overrides ARCHIVE_BACKEND)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	if *dir != "" {
		cfg.OutputDir = *dir
	}
	if *backend != "" {
		cfg.ArchiveBackend = *backend
	}

	if code := run(context.Background(), cfg, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) int {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := archive.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(out, "FATAL: open archive: %v\n", err)
		return 1
	}
	defer store.Close()

	fmt.Fprintln(out, "=== Archive Integrity Check ===")
	fmt.Fprintln(out)

	dates, err := store.Dates(ctx)
	if err != nil {
		fmt.Fprintf(out, "FATAL: list archive: %v\n", err)
		return 1
	}

	entries, readPhase := checkReadable(ctx, store, dates)
	phases := []*phase{
		readPhase,
		checkDateKeys(entries, domain.NewDateRule(cfg.Location)),
		checkRatios(entries),
	}

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-36s %s\n", p.name, status)
	}
	fmt.Fprintf(out, "\nDates: %d\n", len(dates))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nArchive OK.")
		return 0
	}
	fmt.Fprintln(out, "\nArchive check FAILED.")
	return 1
}

// ── Phase 1: every date holds a decodable report ──

func checkReadable(ctx context.Context, a archive.Archive, dates []domain.CalendarDate) ([]entry, *phase) {
	p := &phase{name: "Phase 1: Readable reports"}
	entries := make([]entry, 0, len(dates))
	for _, date := range dates {
		report, ok, err := a.Read(ctx, date)
		switch {
		case err != nil:
			p.errorf("%s: %s: %v", date, domain.ErrorKind(err), err)
		case !ok:
			p.errorf("%s: no report", date)
		}
		entries = append(entries, entry{date: date, report: report, ok: ok && err == nil})
	}
	return entries, p
}

// ── Phase 2: folder key matches as_of ──

func checkDateKeys(entries []entry, rule domain.DateRule) *phase {
	p := &phase{name: "Phase 2: Date keys match as_of"}
	for _, e := range entries {
		if !e.ok {
			continue
		}
		if got := rule.DateOf(e.report.Info.AsOf); got != e.date {
			p.errorf("%s: as_of %s maps to %s", e.date, e.report.Info.AsOf.Format("2006-01-02T15:04:05Z07:00"), got)
		}
	}
	return p
}

// ── Phase 3: ratios agree with the previous day ──

func checkRatios(entries []entry) *phase {
	p := &phase{name: "Phase 3: Ratios match previous day"}

	byDate := make(map[domain.CalendarDate]domain.DailyReport, len(entries))
	for _, e := range entries {
		if e.ok {
			byDate[e.date] = e.report
		}
	}

	for _, e := range entries {
		if !e.ok {
			continue
		}
		prev, hasPrev := byDate[e.date.Prev()]
		ratio := e.report.Ratio

		switch {
		case ratio == nil && hasPrev && prev.Info.Positive != 0:
			p.errorf("%s: ratio missing although %s has %d positive", e.date, e.date.Prev(), prev.Info.Positive)
		case ratio == nil:
		case !hasPrev:
			p.errorf("%s: ratio present but %s has no report", e.date, e.date.Prev())
		case ratio.PrevPositive != prev.Info.Positive:
			p.errorf("%s: prev_positive %d, but %s has %d", e.date, ratio.PrevPositive, e.date.Prev(), prev.Info.Positive)
		case prev.Info.Positive == 0:
			p.errorf("%s: ratio present against a zero previous positive", e.date)
		default:
			want := float64(e.report.Info.Positive) / float64(prev.Info.Positive)
			if math.Abs(float64(ratio.YesterdayRatio)-want) > ratioTolerance*math.Max(1, want) {
				p.errorf("%s: ratio %.6f, want %.6f", e.date, ratio.YesterdayRatio, want)
			}
		}
	}
	return p
}
