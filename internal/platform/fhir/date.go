package fhir

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the FHIR date (no time) layout.
const DateLayout = "2006-01-02"

// ErrMalformedDateSpec is wrapped by every relative-date parse failure.
var ErrMalformedDateSpec = errors.New("malformed date spec")

// relativeDatePattern is the grammar for relative date specifications.
var relativeDatePattern = regexp.MustCompile(`(?i)^(\d+)\s+(day|days|week|weeks|month|months|year|years)\s+(before|after)\s+reference$`)

// DateSpec is either an absolute date string or a relative specification
// such as "13 months before reference".
type DateSpec struct {
	Absolute string
	Relative string
}

// IsZero reports whether the spec carries neither form.
func (d DateSpec) IsZero() bool {
	return d.Absolute == "" && d.Relative == ""
}

func (d DateSpec) String() string {
	if d.Relative != "" {
		return d.Relative
	}
	return d.Absolute
}

// MalformedDateSpecError reports a relative spec that does not match the grammar.
type MalformedDateSpecError struct {
	Field string
	Spec  string
}

func (e *MalformedDateSpecError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: invalid relative date format %q", e.Field, e.Spec)
	}
	return fmt.Sprintf("invalid relative date format %q", e.Spec)
}

func (e *MalformedDateSpecError) Unwrap() error { return ErrMalformedDateSpec }

// ResolveDate turns spec into an absolute YYYY-MM-DD date. Absolute specs
// are returned unchanged. Relative specs are applied to ref with calendar
// arithmetic in UTC; month and year offsets follow time.AddDate
// normalization, so Jan 31 plus one month lands in early March. Offsets
// that leave the four-digit year range are rejected.
func ResolveDate(spec DateSpec, ref time.Time) (string, error) {
	if spec.Relative == "" {
		if spec.Absolute == "" {
			return "", &MalformedDateSpecError{Spec: ""}
		}
		return spec.Absolute, nil
	}

	m := relativeDatePattern.FindStringSubmatch(strings.TrimSpace(spec.Relative))
	if m == nil {
		return "", &MalformedDateSpecError{Spec: spec.Relative}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", &MalformedDateSpecError{Spec: spec.Relative}
	}
	if strings.EqualFold(m[3], "before") {
		n = -n
	}

	base := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	var result time.Time
	switch strings.TrimSuffix(strings.ToLower(m[2]), "s") {
	case "day":
		result = base.AddDate(0, 0, n)
	case "week":
		result = base.AddDate(0, 0, 7*n)
	case "month":
		result = base.AddDate(0, n, 0)
	case "year":
		result = base.AddDate(n, 0, 0)
	default:
		return "", &MalformedDateSpecError{Spec: spec.Relative}
	}
	if result.Year() < 0 || result.Year() > 9999 {
		return "", &MalformedDateSpecError{Spec: spec.Relative}
	}
	return result.Format(DateLayout), nil
}

// ParseDate parses a YYYY-MM-DD date, or the date part of an ISO
// timestamp, as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DatePart returns the YYYY-MM-DD prefix of an ISO timestamp.
func DatePart(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}
