package domain

import (
	"errors"
	"fmt"
)

// FetchError reports a failure to retrieve raw content from the remote source.
type FetchError struct {
	URL    string
	Status int // HTTP status, 0 when the request never completed
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RegionNotFoundError is returned when a list payload has no record for the target region.
type RegionNotFoundError struct {
	Region string
}

func (e *RegionNotFoundError) Error() string {
	return fmt.Sprintf("region %q not found in source list", e.Region)
}

// FieldNotFoundError is returned when a required label or key is absent.
type FieldNotFoundError struct {
	Field string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found", e.Field)
}

// NoDigitsAfterLabelError is returned when a label is present but no digit
// run follows it before the end of the input.
type NoDigitsAfterLabelError struct {
	Field string
}

func (e *NoDigitsAfterLabelError) Error() string {
	return fmt.Sprintf("no digits after label for field %q", e.Field)
}

// InvalidValueError is returned when a numeric field holds a value that is not
// a non-negative 32-bit integer.
type InvalidValueError struct {
	Field string
	Value string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("field %q: invalid value %q", e.Field, e.Value)
}

// DateParseError identifies the timestamp token that could not be parsed.
// Pos is the zero-based token position (0 = weekday, 1 and 2 = day/month,
// 3 = year, 4..6 = hour, minute, second).
type DateParseError struct {
	Pos    int
	Token  string
	Reason string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("parse timestamp: token %d (%q): %s", e.Pos, e.Token, e.Reason)
}

// UnknownMonthError is returned for a month abbreviation outside the fixed table.
type UnknownMonthError struct {
	Abbrev string
}

func (e *UnknownMonthError) Error() string {
	return fmt.Sprintf("parse timestamp: unknown month %q", e.Abbrev)
}

// SerializationError wraps encode/decode failures of archived values.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// IOError wraps storage failures of the archive.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ErrorKind maps an error to a short, stable label for logs and metrics.
func ErrorKind(err error) string {
	var (
		fetchErr  *FetchError
		regionErr *RegionNotFoundError
		fieldErr  *FieldNotFoundError
		digitsErr *NoDigitsAfterLabelError
		valueErr  *InvalidValueError
		dateErr   *DateParseError
		monthErr  *UnknownMonthError
		serialErr *SerializationError
		ioErr     *IOError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &regionErr):
		return "region_not_found"
	case errors.As(err, &fieldErr):
		return "field_not_found"
	case errors.As(err, &digitsErr):
		return "no_digits_after_label"
	case errors.As(err, &valueErr):
		return "invalid_value"
	case errors.As(err, &dateErr):
		return "date_parse"
	case errors.As(err, &monthErr):
		return "unknown_month"
	case errors.As(err, &serialErr):
		return "serialization"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "other"
	}
}
