package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarDate_String(t *testing.T) {
	assert.Equal(t, "2020.01.03", CalendarDate{Year: 2020, Month: time.January, Day: 3}.String())
	assert.Equal(t, "0020.11.30", CalendarDate{Year: 20, Month: time.November, Day: 30}.String())
}

func TestCalendarDate_Prev(t *testing.T) {
	tests := []struct {
		name string
		in   CalendarDate
		want CalendarDate
	}{
		{"mid month", CalendarDate{2020, time.April, 14}, CalendarDate{2020, time.April, 13}},
		{"month boundary", CalendarDate{2020, time.May, 1}, CalendarDate{2020, time.April, 30}},
		{"leap day", CalendarDate{2020, time.March, 1}, CalendarDate{2020, time.February, 29}},
		{"year boundary", CalendarDate{2021, time.January, 1}, CalendarDate{2020, time.December, 31}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Prev())
		})
	}
}

func TestCalendarDate_Before(t *testing.T) {
	a := CalendarDate{2020, time.January, 5}
	assert.True(t, a.Before(CalendarDate{2020, time.January, 6}))
	assert.True(t, a.Before(CalendarDate{2020, time.February, 1}))
	assert.True(t, a.Before(CalendarDate{2021, time.January, 1}))
	assert.False(t, a.Before(a))
	assert.False(t, a.Before(CalendarDate{2019, time.December, 31}))
}

func TestParseCalendarDate(t *testing.T) {
	d, err := ParseCalendarDate("2020.01.03")
	require.NoError(t, err)
	assert.Equal(t, CalendarDate{2020, time.January, 3}, d)

	for _, bad := range []string{"", "20.01.03", "2020-01-03", "2020.1.3", "2020.13.01", "2020.02.30", "2020.0a.01", "report.toml"} {
		_, err := ParseCalendarDate(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestDateRule(t *testing.T) {
	central := time.FixedZone("CDT", -5*60*60)
	rule := NewDateRule(central)

	t.Run("same local day maps to same key", func(t *testing.T) {
		early := time.Date(2020, 4, 14, 5, 30, 0, 0, time.UTC) // 00:30 CDT
		late := time.Date(2020, 4, 15, 4, 59, 0, 0, time.UTC) // 23:59 CDT
		assert.Equal(t, rule.DateOf(early), rule.DateOf(late))
		assert.Equal(t, "2020.04.14", rule.DateOf(early).String())
	})

	t.Run("utc evening belongs to previous local day", func(t *testing.T) {
		ts := time.Date(2020, 4, 15, 2, 0, 0, 0, time.UTC)
		assert.Equal(t, CalendarDate{2020, time.April, 14}, rule.DateOf(ts))
	})

	t.Run("check name uses local time of day", func(t *testing.T) {
		ts := time.Date(2020, 4, 15, 2, 3, 4, 0, time.UTC)
		assert.Equal(t, "21:03:04", rule.CheckName(ts))
	})

	t.Run("nil location means local", func(t *testing.T) {
		assert.Equal(t, time.Local, NewDateRule(nil).Location())
		assert.Equal(t, time.Local, DateRule{}.Location())
	})
}
