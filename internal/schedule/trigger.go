// Package schedule sends messages at fixed or randomised times of day.
//
// Every trigger runs in its own goroutine: it computes how long to wait from
// the zoned clock, sleeps on clock.After, fires exactly one send and rearms.
// Cancelling the context passed to Scheduler.Run is the only way to stop it.
package schedule

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kalambet/replybot/internal/corpus"
)

// ComputeWait returns the time from now until the next hour:minute:00 in
// loc. A target equal to now counts as passed and rolls over to tomorrow,
// so the result is always in (0, 24h] for fixed-offset zones.
func ComputeWait(now time.Time, hour, minute int, loc *time.Location) time.Duration {
	if loc == nil {
		loc = now.Location()
	}
	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !target.After(local) {
		target = target.AddDate(0, 0, 1)
	}
	return target.Sub(local)
}

// Rand is the random source used for randomised firing times and pool draws.
type Rand interface {
	IntN(n int) int
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) IntN(n int) int       { return rand.IntN(n) }
func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// Timing decides how long a trigger sleeps before its next firing. now is
// already expressed in the scheduler's zone.
type Timing interface {
	Wait(now time.Time, rng Rand) time.Duration
	String() string
}

// Fixed fires every day at Hour:Minute.
type Fixed struct {
	Hour, Minute int
}

func (f Fixed) Wait(now time.Time, _ Rand) time.Duration {
	return ComputeWait(now, f.Hour, f.Minute, now.Location())
}

func (f Fixed) String() string { return fmt.Sprintf("daily at %02d:%02d", f.Hour, f.Minute) }

// RandomDaily fires once per rearm at a fresh uniformly drawn time between
// MinHour:00 and MaxHour:59, both hours inclusive.
type RandomDaily struct {
	MinHour, MaxHour int
}

const (
	DefaultMinHour = 10
	DefaultMaxHour = 18
)

func (r RandomDaily) Wait(now time.Time, rng Rand) time.Duration {
	hour := r.MinHour + rng.IntN(r.MaxHour-r.MinHour+1)
	minute := rng.IntN(60)
	return ComputeWait(now, hour, minute, now.Location())
}

func (r RandomDaily) String() string {
	return fmt.Sprintf("daily at a random time between %02d:00 and %02d:59", r.MinHour, r.MaxHour)
}

// RandomInterval waits a uniform duration in [Min, Max] between firings,
// with no daily anchor.
type RandomInterval struct {
	Min, Max time.Duration
}

const (
	DefaultMinInterval = 60 * time.Second
	DefaultMaxInterval = 12 * time.Hour
)

func (r RandomInterval) Wait(_ time.Time, rng Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int64N(int64(r.Max-r.Min)+1))
}

func (r RandomInterval) String() string {
	return fmt.Sprintf("every %s to %s", r.Min, r.Max)
}

// TextSource produces the payload of one firing.
type TextSource interface {
	Text(rng Rand) (string, error)
}

// Literal is a fixed payload.
type Literal string

func (l Literal) Text(Rand) (string, error) { return string(l), nil }

// Picker draws a message from a pool. corpus.Pool implements it.
type Picker interface {
	Len() int
	Random(rng corpus.Rand) (string, error)
}

// FromPool returns a TextSource drawing uniformly from p on each firing.
func FromPool(p Picker) TextSource { return poolText{p} }

type poolText struct{ p Picker }

func (s poolText) Text(rng Rand) (string, error) { return s.p.Random(rng) }

// Trigger is one scheduled message.
type Trigger struct {
	Name   string
	Timing Timing
	Text   TextSource
	// Recipient overrides the scheduler's default recipient when set.
	Recipient string
}

// ErrInvalidTrigger wraps every trigger validation failure.
var ErrInvalidTrigger = errors.New("invalid trigger")

// Validate checks that t can be scheduled.
func (t Trigger) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTrigger)
	}
	if t.Text == nil {
		return fmt.Errorf("%w %q: no text source", ErrInvalidTrigger, t.Name)
	}
	switch tm := t.Timing.(type) {
	case Fixed:
		if tm.Hour < 0 || tm.Hour > 23 || tm.Minute < 0 || tm.Minute > 59 {
			return fmt.Errorf("%w %q: time %02d:%02d out of range", ErrInvalidTrigger, t.Name, tm.Hour, tm.Minute)
		}
	case RandomDaily:
		if tm.MinHour < 0 || tm.MaxHour > 23 || tm.MinHour > tm.MaxHour {
			return fmt.Errorf("%w %q: hour range %d-%d", ErrInvalidTrigger, t.Name, tm.MinHour, tm.MaxHour)
		}
	case RandomInterval:
		if tm.Min <= 0 || tm.Max < tm.Min {
			return fmt.Errorf("%w %q: interval range %s-%s", ErrInvalidTrigger, t.Name, tm.Min, tm.Max)
		}
	case nil:
		return fmt.Errorf("%w %q: no timing", ErrInvalidTrigger, t.Name)
	}
	return nil
}

// DefaultTriggers is the schedule used when no trigger file is configured:
// a morning and a night greeting plus one random daily message from pool.
func DefaultTriggers(pool Picker) []Trigger {
	triggers := []Trigger{
		{Name: "morning", Timing: Fixed{Hour: 8, Minute: 30}, Text: Literal("Good morning ☀️💖")},
		{Name: "night", Timing: Fixed{Hour: 22, Minute: 30}, Text: Literal("Good night ♥️💖")},
	}
	if pool != nil && pool.Len() > 0 {
		triggers = append(triggers, Trigger{
			Name:   "surprise",
			Timing: RandomDaily{MinHour: DefaultMinHour, MaxHour: DefaultMaxHour},
			Text:   FromPool(pool),
		})
	}
	return triggers
}
