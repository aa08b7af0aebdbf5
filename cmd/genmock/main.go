// Command genmock generates a synthetic series of states-API payloads and seeds
// a filesystem archive with them. Each payload goes through the real domain
// package, so the seeded reports match what a daily run would have written.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -dir output -region MN -days 14 \
//	  -payload-out data/mock/states_series.json \
//	  -page output/index.html
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-tracker/internal/archive"
	"github.com/couchcryptid/covid-tracker/internal/archive/fsarchive"
	"github.com/couchcryptid/covid-tracker/internal/domain"
	"github.com/couchcryptid/covid-tracker/internal/observability"
	"github.com/couchcryptid/covid-tracker/internal/render"
)

var baseDate = time.Date(2020, time.March, 20, 21, 0, 0, 0, time.UTC)

// series controls the shape of the generated counts.
type series struct {
	days     int
	start    float64
	growth   float64
	testsPer float64
	rng      *rand.Rand
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dir := flag.String("dir", "", "archive root to seed")
	region := flag.String("region", "MN", "region code to generate")
	days := flag.Int("days", 14, "number of consecutive days")
	start := flag.Float64("start", 100, "positive count on the first day")
	growth := flag.Float64("growth", 1.12, "mean day-over-day growth factor")
	seedFlag := flag.Uint64("seed", 42, "random seed for day-to-day jitter")
	payloadOut := flag.String("payload-out", "", "optional path for the raw payload fixture")
	page := flag.String("page", "", "optional path for a rendered page of the seeded archive")
	flag.Parse()

	if *dir == "" || *days < 1 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -dir and a positive -days")
	}

	s := series{
		days:     *days,
		start:    *start,
		growth:   *growth,
		testsPer: 20,
		rng:      rand.New(rand.NewPCG(*seedFlag, *seedFlag)),
	}
	payloads := s.payloads(*region)

	if *payloadOut != "" {
		if err := writeJSON(*payloadOut, payloads); err != nil {
			return fmt.Errorf("writing payload fixture: %w", err)
		}
		log.Printf("wrote payload fixture: %s", *payloadOut)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := fsarchive.New(*dir, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	rule := domain.NewDateRule(time.UTC)
	extractor := domain.Extractor{Format: domain.FormatList, Region: *region, Rule: rule}
	for _, p := range payloads {
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		date, report, err := seed(ctx, store, extractor, rule, raw)
		if err != nil {
			return err
		}
		log.Printf("%s: positive=%d ratio=%s", date, report.Info.Positive, ratioString(report.Ratio))
	}
	log.Printf("seeded %d reports under %s", len(payloads), *dir)

	if *page != "" {
		if err := renderPage(ctx, store, logger, *region, *page); err != nil {
			return fmt.Errorf("rendering page: %w", err)
		}
		log.Printf("wrote page: %s", *page)
	}
	return nil
}

// payloads returns one states-API response per day. Each response also carries
// a second region so extraction has something to skip.
func (s series) payloads(region string) [][]map[string]any {
	out := make([][]map[string]any, 0, s.days)
	positive := s.start
	for i := range s.days {
		checked := baseDate.AddDate(0, 0, i).Format(time.RFC3339)
		jitter := 1 + (s.rng.Float64()-0.5)*0.1
		pos := int64(math.Round(positive))
		out = append(out, []map[string]any{
			{"state": "WI", "positive": 1, "total": 2, "dateChecked": checked},
			{
				"state":       region,
				"positive":    pos,
				"total":       int64(math.Round(positive * s.testsPer)),
				"death":       pos / 50,
				"dateChecked": checked,
			},
		})
		positive *= s.growth * jitter
	}
	return out
}

// seed archives one payload the way a daily run does.
func seed(ctx context.Context, a archive.Archive, ex domain.Extractor, rule domain.DateRule, raw []byte) (domain.CalendarDate, domain.DailyReport, error) {
	snap, err := ex.Extract(raw)
	if err != nil {
		return domain.CalendarDate{}, domain.DailyReport{}, fmt.Errorf("extract: %w", err)
	}
	date := rule.DateOf(snap.AsOf)

	var yesterday *domain.DailyReport
	prev, ok, err := a.Read(ctx, date.Prev())
	if err != nil {
		return date, domain.DailyReport{}, err
	}
	if ok {
		yesterday = &prev
	}

	report, _ := domain.NewDailyReport(snap, yesterday)
	if err := a.WriteCheck(ctx, date, rule.Local(snap.AsOf), snap); err != nil {
		return date, report, err
	}
	if err := a.Write(ctx, date, report); err != nil {
		return date, report, err
	}
	return date, report, nil
}

func renderPage(ctx context.Context, a archive.Archive, logger *slog.Logger, region, path string) error {
	// Fixed clock keeps the generated page reproducible.
	render.SetClock(clockwork.NewFakeClockAt(baseDate))
	defer render.SetClock(nil)

	points, err := archive.NewAggregator(a, logger, observability.NewMetricsForTesting()).Collect(ctx)
	if err != nil {
		return err
	}
	doc, err := render.New(render.Options{Region: region, Location: time.UTC}).Render(points)
	if err != nil {
		return err
	}
	return render.Publish(path, doc)
}

func ratioString(r *domain.Ratio) string {
	if r == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", r.YesterdayRatio)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
