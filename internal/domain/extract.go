package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field names used in extraction errors and default-substitution reports.
const (
	FieldTested   = "tested"
	FieldPositive = "positive"
	FieldAsOf     = "as_of"
)

// Keys of a list-form record (covidtracking.com states API).
const (
	listRegionKey   = "state"
	listPositiveKey = "positive"
	listTestedKey   = "total"
	listAsOfKey     = "dateChecked"
)

// Format selects how raw source content is interpreted.
type Format string

const (
	FormatList Format = "list"
	FormatText Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatList, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown source format %q (want list or text)", s)
	}
}

// TextLabels are the label substrings searched for in text-form content.
// An empty label leaves the field unknown instead of searching for it.
type TextLabels struct {
	Tested   string
	Positive string
	AsOf     string
}

// Extractor turns raw fetched content into a Snapshot for one region.
// It has no side effects; the same input always yields the same result.
type Extractor struct {
	Format Format
	Region string
	Labels TextLabels
	Rule   DateRule
}

// Extract dispatches on the configured format.
func (e Extractor) Extract(raw []byte) (Snapshot, error) {
	switch e.Format {
	case FormatList:
		return ExtractList(raw, e.Region)
	case FormatText:
		return ExtractText(raw, e.Region, e.Labels, e.Rule.Location())
	default:
		return Snapshot{}, fmt.Errorf("extract: unknown source format %q", e.Format)
	}
}

// ExtractList selects region's record from a JSON array of per-region records.
// Keys other than the region, counts and timestamp are carried in Snapshot.Extra.
func ExtractList(raw []byte, region string) (Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return Snapshot{}, &SerializationError{Op: "decode source list", Err: err}
	}

	for _, rec := range records {
		if id, _ := rec[listRegionKey].(string); id == region {
			return snapshotFromRecord(rec, region)
		}
	}
	return Snapshot{}, &RegionNotFoundError{Region: region}
}

func snapshotFromRecord(rec map[string]any, region string) (Snapshot, error) {
	rawAsOf, ok := rec[listAsOfKey].(string)
	if !ok {
		return Snapshot{}, &DateParseError{Pos: 0, Token: "", Reason: listAsOfKey + " missing or not a string"}
	}
	asOf, err := time.Parse(time.RFC3339, rawAsOf)
	if err != nil {
		return Snapshot{}, &DateParseError{Pos: 0, Token: rawAsOf, Reason: err.Error()}
	}

	tested, err := optionalCount(rec, listTestedKey, FieldTested)
	if err != nil {
		return Snapshot{}, err
	}
	positive, err := optionalCount(rec, listPositiveKey, FieldPositive)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Region:   region,
		AsOf:     asOf,
		Tested:   tested,
		Positive: positive,
		Extra:    auxiliaryFields(rec),
	}, nil
}

// optionalCount reads a non-negative 32-bit count. Absent and null both mean unknown.
func optionalCount(rec map[string]any, key, field string) (*uint32, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return nil, &InvalidValueError{Field: field, Value: fmt.Sprint(v)}
	}
	parsed, err := strconv.ParseUint(n.String(), 10, 32)
	if err != nil {
		return nil, &InvalidValueError{Field: field, Value: n.String()}
	}
	count := uint32(parsed)
	return &count, nil
}

// auxiliaryFields keeps every non-core key, normalized to archive-friendly
// scalars. Nulls are dropped; nested values are kept as compact JSON text.
func auxiliaryFields(rec map[string]any) map[string]any {
	extra := make(map[string]any)
	for k, v := range rec {
		switch k {
		case listRegionKey, listPositiveKey, listTestedKey, listAsOfKey:
			continue
		}
		switch val := v.(type) {
		case nil:
		case json.Number:
			if i, err := val.Int64(); err == nil {
				extra[k] = i
			} else if f, err := val.Float64(); err == nil {
				extra[k] = f
			} else {
				extra[k] = val.String()
			}
		case string, bool:
			extra[k] = val
		default:
			if b, err := json.Marshal(val); err == nil {
				extra[k] = string(b)
			}
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
