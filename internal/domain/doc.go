// Package domain models one region's daily public-health metrics: the parsed
// Snapshot, the archived DailyReport and the calendar key that buckets them.
//
// # Data Sources
//
// Two source shapes are understood, selected by [Format]:
//
//	list  A JSON array of per-region records, as served by the COVID Tracking
//	      Project states endpoint (https://covidtracking.com/api/states). The
//	      record whose "state" equals the configured region is selected.
//	      "positive" is the positive count, "total" the tested count and
//	      "dateChecked" (RFC 3339) the as-of timestamp. Every other key is kept
//	      in Snapshot.Extra.
//	text  A health-department status page. Counts are found by label, e.g.
//	      "Total positive: 1,069", and the timestamp by an as-of label, e.g.
//	      "Updated Tuesday, 14 Apr 2020 - 11:00:00".
//
// # Text Scanning
//
// Markup is flattened to its text nodes before scanning. After a label the
// scanner skips non-digits and consumes the first digit run. A comma followed
// by exactly three digits continues the run ("1,069" -> 1069). Every failure
// is a typed error ([FieldNotFoundError], [NoDigitsAfterLabelError],
// [DateParseError], [UnknownMonthError]); the scanner never indexes past the
// input.
//
// Timestamp format:
//
//	"<weekday>, <day> <Mon> <year> - <HH>:<MM>:<SS>"
//	Day and month may appear in either order. The month matches the first three
//	letters against Jan..Dec, case-sensitively. Separators between the remaining
//	tokens may be any mix of ':', '-', ',' and whitespace.
//
// # Calendar Keys
//
// A [DateRule] holds the single time zone used to turn timestamps into
// [CalendarDate] keys. Keys print as YYYY.MM.DD with a four-digit year; this is
// the on-disk folder name and must not change.
//
// # Ratio
//
// A report's ratio is today's positive count over the previous calendar day's
// archived positive count. It is absent when there is no report for the
// previous day or that report's positive count is zero. It is computed once,
// when the report is written.
package domain
