package domain

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ExtractText scrapes counts and the as-of timestamp from loosely structured
// markup. Markup is flattened to its text nodes first, one per line.
func ExtractText(raw []byte, region string, labels TextLabels, loc *time.Location) (Snapshot, error) {
	text := flattenMarkup(raw)

	tested, err := labeledCount(text, labels.Tested, FieldTested)
	if err != nil {
		return Snapshot{}, err
	}
	positive, err := labeledCount(text, labels.Positive, FieldPositive)
	if err != nil {
		return Snapshot{}, err
	}

	if labels.AsOf == "" {
		return Snapshot{}, &FieldNotFoundError{Field: FieldAsOf}
	}
	stamp, ok := labeledLine(text, labels.AsOf)
	if !ok {
		return Snapshot{}, &FieldNotFoundError{Field: FieldAsOf}
	}
	asOf, err := ParseTimestamp(stamp, loc)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Region:   region,
		AsOf:     asOf,
		Tested:   tested,
		Positive: positive,
	}, nil
}

// labeledCount finds label and reads the first digit run after it.
func labeledCount(text, label, field string) (*uint32, error) {
	if label == "" {
		return nil, nil
	}
	idx := strings.Index(text, label)
	if idx < 0 {
		return nil, &FieldNotFoundError{Field: field}
	}
	digits, ok := scanDigits(text, idx+len(label))
	if !ok {
		return nil, &NoDigitsAfterLabelError{Field: field}
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return nil, &InvalidValueError{Field: field, Value: digits}
	}
	count := uint32(n)
	return &count, nil
}

// scanDigits skips non-digits from start and returns the first maximal digit
// run. A comma inside the run is accepted as a thousands separator only when it
// is followed by exactly three digits.
func scanDigits(text string, start int) (string, bool) {
	i := start
	for i < len(text) && !isDigit(text[i]) {
		i++
	}
	if i >= len(text) {
		return "", false
	}

	var b strings.Builder
	for i < len(text) {
		c := text[i]
		if isDigit(c) {
			b.WriteByte(c)
			i++
			continue
		}
		if c == ',' && isThousandsGroup(text, i) {
			b.WriteString(text[i+1 : i+4])
			i += 4
			continue
		}
		break
	}
	return b.String(), true
}

func isThousandsGroup(text string, comma int) bool {
	if comma+3 >= len(text) {
		return false
	}
	for j := comma + 1; j <= comma+3; j++ {
		if !isDigit(text[j]) {
			return false
		}
	}
	return comma+4 == len(text) || !isDigit(text[comma+4])
}

// labeledLine returns the rest of the line after label, or the next non-empty
// line when the label ends its line.
func labeledLine(text, label string) (string, bool) {
	idx := strings.Index(text, label)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(label):]
	for rest != "" {
		line, tail, _ := strings.Cut(rest, "\n")
		if line = strings.TrimSpace(line); line != "" {
			return line, true
		}
		rest = tail
	}
	return "", false
}

// flattenMarkup returns the visible text nodes of raw, one trimmed line each.
// Script and style contents are dropped. Plain text passes through unchanged.
func flattenMarkup(raw []byte) string {
	z := html.NewTokenizer(bytes.NewReader(raw))
	var lines []string
	hidden := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(lines, "\n")
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) {
				hidden++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) && hidden > 0 {
				hidden--
			}
		case html.TextToken:
			if hidden > 0 {
				continue
			}
			for _, line := range strings.Split(string(z.Text()), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					lines = append(lines, line)
				}
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	return bytes.Equal(name, []byte("script")) || bytes.Equal(name, []byte("style"))
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
