package core

// convert.go turns raw cell text into typed values.
//
// Mandatory identifiers are strict: anything but a plain integer is a row
// error. Optional numerics are permissive: a value that does not parse is
// treated as absent and never produces a warning.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CleanCell trims whitespace and strips an Excel formula wrapper (="...").
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// ParseID parses a mandatory positive integer identifier.
func ParseID(field, s string) (int64, error) {
	s = CleanCell(s)
	if s == "" {
		return 0, fmt.Errorf("required field %s is empty", field)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q for %s", s, field)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid number %q for %s: must be positive", s, field)
	}
	return id, nil
}

// ParseOptionalID parses an optional identifier. Empty or non-numeric input
// yields ok=false.
func ParseOptionalID(s string) (int64, bool) {
	s = CleanCell(s)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseOptionalFloat parses an optional decimal such as a quantity. A comma
// decimal separator is accepted. Non-numeric input yields nil.
func ParseOptionalFloat(s string) *float64 {
	s = CleanCell(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	if !numericRegex.MatchString(s) {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

// ParseQuantity parses an ingredient quantity. Zero means no quantity and
// yields nil like non-numeric input.
func ParseQuantity(s string) *float64 {
	q := ParseOptionalFloat(s)
	if q == nil || *q == 0 {
		return nil
	}
	return q
}

// ParseOptionalInt32 parses an optional non-negative count such as a
// duration in minutes. Decimals are truncated. Non-numeric input yields nil.
func ParseOptionalInt32(s string) *int32 {
	f := ParseOptionalFloat(s)
	if f == nil || *f < 0 || *f > math.MaxInt32 {
		return nil
	}
	v := int32(*f)
	return &v
}

// OptionalText returns nil for blank input.
func OptionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// RequireText trims s and returns an error when nothing is left.
func RequireText(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("required field %s is empty", field)
	}
	return s, nil
}
