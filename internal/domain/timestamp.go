package domain

import (
	"strconv"
	"strings"
	"time"
)

// monthAbbrevs is the fixed, case-sensitive month table used by ParseTimestamp.
var monthAbbrevs = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// Token positions reported in DateParseError.Pos.
const (
	posWeekday = iota
	posDayOrMonth
	posMonthOrDay
	posYear
	posHour
	posMinute
	posSecond
)

// ParseTimestamp parses a human-readable source timestamp such as
// "Tuesday, 14 Apr 2020 - 11:00:00" (or "Tuesday, April 14 2020 - 11:00:00")
// into a time in loc. Every malformed or missing token yields a typed error.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return time.Time{}, &DateParseError{Pos: posWeekday, Token: strings.TrimSpace(s), Reason: "missing comma after weekday"}
	}
	if strings.TrimSpace(s[:comma]) == "" {
		return time.Time{}, &DateParseError{Pos: posWeekday, Token: "", Reason: "missing weekday"}
	}

	tokens := strings.FieldsFunc(s[comma+1:], isTimestampSeparator)
	token := func(pos int) (string, error) {
		i := pos - 1
		if i >= len(tokens) {
			return "", &DateParseError{Pos: pos, Token: "", Reason: "missing token"}
		}
		return tokens[i], nil
	}

	first, err := token(posDayOrMonth)
	if err != nil {
		return time.Time{}, err
	}
	next, err := token(posMonthOrDay)
	if err != nil {
		return time.Time{}, err
	}

	dayTok, dayPos, monthTok := first, posDayOrMonth, next
	if !isDigits(first) {
		dayTok, dayPos, monthTok = next, posMonthOrDay, first
	}

	day, err := parseDecimal(dayTok, dayPos)
	if err != nil {
		return time.Time{}, err
	}
	month, err := lookupMonth(monthTok, posDayOrMonth+posMonthOrDay-dayPos)
	if err != nil {
		return time.Time{}, err
	}

	var vals [4]int // year, hour, minute, second
	for i, pos := range []int{posYear, posHour, posMinute, posSecond} {
		tok, err := token(pos)
		if err != nil {
			return time.Time{}, err
		}
		if vals[i], err = parseDecimal(tok, pos); err != nil {
			return time.Time{}, err
		}
	}
	year, hour, minute, second := vals[0], vals[1], vals[2], vals[3]

	if !validDate(year, month, day) {
		return time.Time{}, &DateParseError{Pos: dayPos, Token: dayTok, Reason: "day out of range for month"}
	}
	if hour > 23 {
		return time.Time{}, &DateParseError{Pos: posHour, Token: tokens[posHour-1], Reason: "hour out of range"}
	}
	if minute > 59 {
		return time.Time{}, &DateParseError{Pos: posMinute, Token: tokens[posMinute-1], Reason: "minute out of range"}
	}
	if second > 59 {
		return time.Time{}, &DateParseError{Pos: posSecond, Token: tokens[posSecond-1], Reason: "second out of range"}
	}

	return time.Date(year, month, day, hour, minute, second, 0, loc), nil
}

func isTimestampSeparator(r rune) bool {
	switch r {
	case ':', '-', ',', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func parseDecimal(tok string, pos int) (int, error) {
	if !isDigits(tok) {
		return 0, &DateParseError{Pos: pos, Token: tok, Reason: "not a decimal number"}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, &DateParseError{Pos: pos, Token: tok, Reason: err.Error()}
	}
	return n, nil
}

// lookupMonth matches the first three letters of tok against the month table,
// so both "Apr" and "April" resolve to April.
func lookupMonth(tok string, pos int) (time.Month, error) {
	runes := []rune(tok)
	if len(runes) < 3 {
		return 0, &DateParseError{Pos: pos, Token: tok, Reason: "month shorter than three letters"}
	}
	abbrev := string(runes[:3])
	for i, m := range monthAbbrevs {
		if m == abbrev {
			return time.Month(i + 1), nil
		}
	}
	return 0, &UnknownMonthError{Abbrev: abbrev}
}
