// Package window resolves activity window endpoints to absolute instants.
//
// An endpoint is either a fixed instant or a wall-clock time of day ("HH:mm").
// Wall-clock endpoints resolve to their next occurrence relative to the moment of
// resolution, so the same Range yields a fresh window every time it is resolved.
package window

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRange is returned when a range resolves to start >= end
var ErrInvalidRange = errors.New("time range start must be before end")

// ErrInvalidSpec is returned when an endpoint cannot be parsed
var ErrInvalidSpec = errors.New("invalid time spec")

type specKind int

const (
	kindInstant specKind = iota + 1
	kindWallClock
)

// Spec is one endpoint of an activity window
type Spec struct {
	kind   specKind
	at     time.Time
	hour   int
	minute int
}

// At returns a Spec for a fixed instant
func At(t time.Time) Spec {
	return Spec{kind: kindInstant, at: t}
}

// EpochMillis returns a Spec for a fixed instant given in milliseconds since the Unix epoch
func EpochMillis(ms int64) Spec {
	return Spec{kind: kindInstant, at: time.UnixMilli(ms)}
}

// WallClock returns a Spec for the next occurrence of hour:minute
func WallClock(hour, minute int) (Spec, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Spec{}, fmt.Errorf("%w: wall clock %02d:%02d out of range", ErrInvalidSpec, hour, minute)
	}
	return Spec{kind: kindWallClock, hour: hour, minute: minute}, nil
}

// MustWallClock is like WallClock but panics on invalid input
func MustWallClock(hour, minute int) Spec {
	s, err := WallClock(hour, minute)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse reads "HH:mm", an RFC3339 timestamp, or integer epoch milliseconds
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Spec{}, fmt.Errorf("%w: empty", ErrInvalidSpec)
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return EpochMillis(ms), nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return At(t), nil
	}

	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidSpec, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: hour in %q", ErrInvalidSpec, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: minute in %q", ErrInvalidSpec, s)
	}
	return WallClock(hour, minute)
}

// IsZero reports whether the Spec was never set
func (s Spec) IsZero() bool {
	return s.kind == 0
}

// IsWallClock reports whether the Spec is a time of day
func (s Spec) IsWallClock() bool {
	return s.kind == kindWallClock
}

// Resolve converts the Spec to an absolute instant.
// A wall-clock Spec resolves to today at hour:minute in now's location, or to
// tomorrow if that moment has already passed.
func (s Spec) Resolve(now time.Time) time.Time {
	switch s.kind {
	case kindInstant:
		return s.at
	case kindWallClock:
		y, mo, d := now.Date()
		t := time.Date(y, mo, d, s.hour, s.minute, 0, 0, now.Location())
		if t.Before(now) {
			t = time.Date(y, mo, d+1, s.hour, s.minute, 0, 0, now.Location())
		}
		return t
	default:
		return now
	}
}

func (s Spec) String() string {
	switch s.kind {
	case kindInstant:
		return s.at.Format(time.RFC3339)
	case kindWallClock:
		return fmt.Sprintf("%02d:%02d", s.hour, s.minute)
	default:
		return "<unset>"
	}
}

// Range bounds the period during which polling may run
type Range struct {
	Start Spec
	End   Spec
}

// Resolve returns the absolute window for a run beginning at now
func (r Range) Resolve(now time.Time) (start, end time.Time, err error) {
	if r.Start.IsZero() || r.End.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: both endpoints are required", ErrInvalidSpec)
	}
	start = r.Start.Resolve(now)
	end = r.End.Resolve(now)
	if !start.Before(end) {
		return start, end, fmt.Errorf("%w: %s >= %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

// ParseRange parses both endpoints with Parse
func ParseRange(start, end string) (*Range, error) {
	s, err := Parse(start)
	if err != nil {
		return nil, fmt.Errorf("window start: %w", err)
	}
	e, err := Parse(end)
	if err != nil {
		return nil, fmt.Errorf("window end: %w", err)
	}
	return &Range{Start: s, End: e}, nil
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}
