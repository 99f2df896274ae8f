package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/replybot/internal/clock"
	"github.com/kalambet/replybot/internal/dispatch"
)

// Dispatcher delivers one scheduled message. dispatch.Sender implementations
// satisfy it.
type Dispatcher interface {
	Send(ctx context.Context, recipient, text string) dispatch.Result
}

// Options configures a Scheduler. The zero value uses the real clock in
// UTC+05:30, the global random source and slog.Default.
type Options struct {
	Clock     clock.Clock
	Location  *time.Location
	Rand      Rand
	Recipient string
	Logger    *slog.Logger
}

// Scheduler runs a fixed set of triggers.
type Scheduler struct {
	triggers  []Trigger
	out       Dispatcher
	clk       clock.Zoned
	rng       Rand
	recipient string
	logger    *slog.Logger
}

// New validates triggers and returns a Scheduler that sends through out.
func New(triggers []Trigger, out Dispatcher, opts Options) (*Scheduler, error) {
	seen := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidTrigger, t.Name)
		}
		seen[t.Name] = true
	}

	loc := opts.Location
	if loc == nil {
		var err error
		if loc, err = clock.ParseOffset(clock.DefaultOffset); err != nil {
			return nil, err
		}
	}
	if opts.Rand == nil {
		opts.Rand = globalRand{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Scheduler{
		triggers:  append([]Trigger(nil), triggers...),
		out:       out,
		clk:       clock.NewZoned(opts.Clock, loc),
		rng:       opts.Rand,
		recipient: opts.Recipient,
		logger:    opts.Logger,
	}, nil
}

// Triggers returns the scheduled triggers in the order Next reports them.
func (s *Scheduler) Triggers() []Trigger {
	return append([]Trigger(nil), s.triggers...)
}

// Run starts one goroutine per trigger and blocks until ctx is cancelled
// and every trigger has stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, t := range s.triggers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runTrigger(ctx, t)
		}()
	}
	s.logger.Info("scheduler started", "triggers", len(s.triggers), "zone", s.clk.Loc.String())
	wg.Wait()
	return nil
}

func (s *Scheduler) runTrigger(ctx context.Context, t Trigger) {
	for {
		now := s.clk.Now()
		wait := t.Timing.Wait(now, s.rng)
		s.logger.Debug("trigger armed", "trigger", t.Name, "next", now.Add(wait).Format(time.RFC3339), "wait", wait)

		select {
		case <-ctx.Done():
			s.logger.Debug("trigger stopped", "trigger", t.Name)
			return
		case <-s.clk.After(wait):
			s.fire(ctx, t)
		}
	}
}

// fire sends one message for t. Failures are logged; they never stop the
// trigger.
func (s *Scheduler) fire(ctx context.Context, t Trigger) {
	text, err := t.Text.Text(s.rng)
	if err != nil {
		s.logger.Warn("scheduled message has no text", "trigger", t.Name, "error", err)
		return
	}
	recipient := t.Recipient
	if recipient == "" {
		recipient = s.recipient
	}

	res := s.out.Send(dispatch.WithOrigin(ctx, "trigger:"+t.Name), recipient, text)
	if !res.OK {
		s.logger.Warn("scheduled send failed", "trigger", t.Name, "recipient", recipient, "error", res.Err)
		return
	}
	s.logger.Info("scheduled message sent", "trigger", t.Name, "recipient", recipient)
}

// Upcoming is the next firing time of a trigger.
type Upcoming struct {
	Name string
	At   time.Time
	// Random is true when At is one possible draw rather than a fixed time.
	Random bool
}

// Next reports when each trigger would fire if armed now. Randomised
// triggers report a sample drawn from the scheduler's random source.
func (s *Scheduler) Next() []Upcoming {
	now := s.clk.Now()
	out := make([]Upcoming, 0, len(s.triggers))
	for _, t := range s.triggers {
		_, fixed := t.Timing.(Fixed)
		out = append(out, Upcoming{Name: t.Name, At: now.Add(t.Timing.Wait(now, s.rng)), Random: !fixed})
	}
	return out
}
