package cartera

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a value that could not be converted to its typed form.
// Callers that want fail-soft behaviour check for it and substitute a zero
// value plus a diagnostic instead of aborting the batch.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cartera: parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// dateLayouts covers the formats seen in ledger extracts: compact, slashed and
// dashed, day-first and year-first.
var dateLayouts = []string{
	"20060102",
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
	"2006/01/02",
}

// ParseDate converts a raw date string to a UTC date. An empty string is a
// legitimate missing value and parses to the zero time without error.
func ParseDate(field, value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return toDate(t), nil
		}
	}
	return time.Time{}, &ParseError{Field: field, Value: value, Err: fmt.Errorf("unrecognised date format")}
}

// ParseAmount converts a monetary string to a float64. It accepts plain
// values, currency symbols, and both decimal conventions: "1.234,56"
// (thousands dot, decimal comma) and "1234.56". Empty and "-" parse to zero.
func ParseAmount(field, value string) (float64, error) {
	s := strings.TrimSpace(value)
	if s == "" || s == "-" || s == "0" {
		return 0, nil
	}
	s = strings.NewReplacer("$", "", " ", "", "​", "").Replace(s)

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// Thousands dots with decimal comma.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParseError{Field: field, Value: value, Err: err}
	}
	return v, nil
}
