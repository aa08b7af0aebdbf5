package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Snapshot is one parsed observation of a region's metrics.
// Tested and Positive are nil when the source omitted them.
type Snapshot struct {
	Region   string         `toml:"region" json:"region"`
	AsOf     time.Time      `toml:"as_of" json:"as_of"`
	Tested   *uint32        `toml:"tested,omitempty" json:"tested,omitempty"`
	Positive *uint32        `toml:"positive,omitempty" json:"positive,omitempty"`
	Extra    map[string]any `toml:"extra,omitempty" json:"extra,omitempty"` // int64, float64, string or bool
}

// CalendarDate is the archive key: one local calendar day.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// String formats the key as YYYY.MM.DD with a zero-padded four-digit year.
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d.%02d.%02d", d.Year, int(d.Month), d.Day)
}

// Prev returns the calendar day before d.
func (d CalendarDate) Prev() CalendarDate {
	return d.AddDays(-1)
}

// AddDays shifts d by n days, normalizing across month and year boundaries.
func (d CalendarDate) AddDays(n int) CalendarDate {
	t := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC)
	return CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Before reports whether d is strictly earlier than other.
func (d CalendarDate) Before(other CalendarDate) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// IsZero reports whether d is the zero key.
func (d CalendarDate) IsZero() bool {
	return d == CalendarDate{}
}

// MarshalText encodes d as its YYYY.MM.DD key.
func (d CalendarDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a YYYY.MM.DD key.
func (d *CalendarDate) UnmarshalText(b []byte) error {
	parsed, err := ParseCalendarDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseCalendarDate parses a YYYY.MM.DD key. Anything else, including
// impossible dates like 2020.02.31, is rejected.
func ParseCalendarDate(s string) (CalendarDate, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return CalendarDate{}, fmt.Errorf("parse calendar date %q: want YYYY.MM.DD", s)
	}
	var nums [3]int
	for i, p := range parts {
		if !isDigits(p) {
			return CalendarDate{}, fmt.Errorf("parse calendar date %q: non-digit in %q", s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return CalendarDate{}, fmt.Errorf("parse calendar date %q: %w", s, err)
		}
		nums[i] = n
	}
	d := CalendarDate{Year: nums[0], Month: time.Month(nums[1]), Day: nums[2]}
	if !validDate(d.Year, d.Month, d.Day) {
		return CalendarDate{}, fmt.Errorf("parse calendar date %q: no such day", s)
	}
	return d, nil
}

// DateRule is the single local-time rule that maps timestamps to archive keys.
type DateRule struct {
	loc *time.Location
}

// NewDateRule returns a rule for loc. A nil loc means time.Local.
func NewDateRule(loc *time.Location) DateRule {
	if loc == nil {
		loc = time.Local
	}
	return DateRule{loc: loc}
}

// Location returns the rule's time zone.
func (r DateRule) Location() *time.Location {
	if r.loc == nil {
		return time.Local
	}
	return r.loc
}

// Local converts t to the rule's time zone.
func (r DateRule) Local(t time.Time) time.Time {
	return t.In(r.Location())
}

// DateOf returns the local calendar day that t falls on.
func (r DateRule) DateOf(t time.Time) CalendarDate {
	y, m, d := r.Local(t).Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

// CheckName returns the raw-check artifact stem (HH:MM:SS) for t.
func (r DateRule) CheckName(t time.Time) string {
	return r.Local(t).Format("15:04:05")
}

func validDate(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && t.Month() == month && t.Day() == day
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
