// Package clock provides the time source shared by the scheduler and the
// audit records. Wall-clock readings are always taken as UTC instants and
// converted into a fixed civil offset, so the host's local zone never leaks
// into scheduling decisions.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is an interface over time.Now and time.After, allowing tests to
// substitute a controlled fake clock that advances on demand.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real delegates to the standard library.
type Real struct{}

func (Real) Now() time.Time                         { return time.Now().UTC() }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// DefaultOffset is the civil offset used when none is configured.
const DefaultOffset = "+05:30"

// Zoned wraps a Clock and reports Now in a fixed location.
type Zoned struct {
	Clock
	Loc *time.Location
}

// NewZoned returns a Zoned clock over c. A nil loc means UTC.
func NewZoned(c Clock, loc *time.Location) Zoned {
	if c == nil {
		c = Real{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return Zoned{Clock: c, Loc: loc}
}

// Now returns the underlying instant converted into z.Loc.
func (z Zoned) Now() time.Time {
	return z.Clock.Now().UTC().In(z.Loc)
}

// ParseOffset parses a "+HH:MM" / "-HH:MM" (or "UTC+HH:MM") offset into a
// fixed location. The location is named after the offset, except +05:30
// which is reported as IST.
func ParseOffset(s string) (*time.Location, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "UTC"), "utc")
	if raw == "" || raw == "Z" {
		return time.UTC, nil
	}

	sign := 1
	switch raw[0] {
	case '+':
		raw = raw[1:]
	case '-':
		sign = -1
		raw = raw[1:]
	default:
		return nil, fmt.Errorf("invalid utc offset %q: missing sign", s)
	}

	hh, mm, ok := strings.Cut(raw, ":")
	if !ok {
		mm = "0"
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 {
		return nil, fmt.Errorf("invalid utc offset %q: bad hours", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return nil, fmt.Errorf("invalid utc offset %q: bad minutes", s)
	}

	secs := sign * (h*3600 + m*60)
	if secs == 0 {
		return time.UTC, nil
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", "+-"[(1-sign)/2], h, m)
	if secs == 5*3600+30*60 {
		name = "IST"
	}
	return time.FixedZone(name, secs), nil
}
