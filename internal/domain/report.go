package domain

import "time"

// Info is the core of a snapshot as persisted in a daily report.
type Info struct {
	AsOf     time.Time `toml:"as_of" json:"as_of"`
	Tested   uint32    `toml:"tested" json:"tested"`
	Positive uint32    `toml:"positive" json:"positive"`
}

// Ratio is the day-over-day change in positives against the previous archived day.
// The TOML key "yesterday" is kept for compatibility with existing archives.
type Ratio struct {
	YesterdayRatio float32 `toml:"yesterday" json:"yesterday_ratio"`
	PrevPositive   uint32  `toml:"prev_positive" json:"prev_positive"`
}

// DailyReport is the one-per-calendar-day archive record.
type DailyReport struct {
	Info  Info   `toml:"info" json:"info"`
	Ratio *Ratio `toml:"ratio,omitempty" json:"ratio,omitempty"`
}

// ComputeRatio derives today's ratio against yesterday's report.
// It returns nil when there is no previous report or its positive count is zero,
// so the ratio is never infinite or NaN.
func ComputeRatio(todayPositive uint32, yesterday *DailyReport) *Ratio {
	if yesterday == nil {
		return nil
	}
	prev := yesterday.Info.Positive
	if prev == 0 {
		return nil
	}
	return &Ratio{
		YesterdayRatio: float32(todayPositive) / float32(prev),
		PrevPositive:   prev,
	}
}

// NewDailyReport builds the report for s. Unknown tested/positive counts are
// recorded as 0; the names of the defaulted fields are returned so callers can
// surface them.
func NewDailyReport(s Snapshot, yesterday *DailyReport) (DailyReport, []string) {
	var defaulted []string

	tested := uint32(0)
	if s.Tested != nil {
		tested = *s.Tested
	} else {
		defaulted = append(defaulted, FieldTested)
	}

	positive := uint32(0)
	if s.Positive != nil {
		positive = *s.Positive
	} else {
		defaulted = append(defaulted, FieldPositive)
	}

	return DailyReport{
		Info: Info{
			AsOf:     s.AsOf,
			Tested:   tested,
			Positive: positive,
		},
		Ratio: ComputeRatio(positive, yesterday),
	}, defaulted
}
