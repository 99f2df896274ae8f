package schedule

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind names a trigger timing in a schedule file.
type Kind string

const (
	KindFixed          Kind = "fixed"
	KindRandomDaily    Kind = "random-daily"
	KindRandomInterval Kind = "random-interval"
)

// File is the YAML schedule document.
type File struct {
	// UTCOffset overrides the configured schedule zone, e.g. "+05:30".
	UTCOffset string        `yaml:"utc_offset"`
	Recipient string        `yaml:"recipient"`
	Triggers  []TriggerSpec `yaml:"triggers"`
}

// TriggerSpec is one trigger as written in a schedule file.
type TriggerSpec struct {
	Name      string        `yaml:"name"`
	Kind      Kind          `yaml:"kind"`
	At        string        `yaml:"at"`
	Text      string        `yaml:"text"`
	Pool      bool          `yaml:"pool"`
	Recipient string        `yaml:"recipient"`
	MinHour   *int          `yaml:"min_hour"`
	MaxHour   *int          `yaml:"max_hour"`
	Min       time.Duration `yaml:"min"`
	Max       time.Duration `yaml:"max"`
}

// LoadFile reads and validates a schedule file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schedule file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schedule file %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a schedule document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every trigger and reports all problems at once.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(f.Triggers))
	for i, t := range f.Triggers {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("%w: trigger #%d has no name", ErrInvalidTrigger, i+1))
		} else if seen[t.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate name %q", ErrInvalidTrigger, t.Name))
		}
		seen[t.Name] = true

		if _, err := t.timing(); err != nil {
			errs = append(errs, err)
		}
		if (t.Text != "") == t.Pool {
			errs = append(errs, fmt.Errorf("%w %q: set exactly one of text or pool", ErrInvalidTrigger, t.Name))
		}
	}
	return errors.Join(errs...)
}

// Build turns the file's specs into triggers. pool backs every trigger with
// pool: true and must be non-empty if any trigger uses it.
func (f *File) Build(pool Picker) ([]Trigger, error) {
	triggers := make([]Trigger, 0, len(f.Triggers))
	for _, spec := range f.Triggers {
		timing, err := spec.timing()
		if err != nil {
			return nil, err
		}
		t := Trigger{Name: spec.Name, Timing: timing, Recipient: spec.Recipient}
		if spec.Pool {
			if pool == nil || pool.Len() == 0 {
				return nil, fmt.Errorf("%w %q: message pool is empty", ErrInvalidTrigger, spec.Name)
			}
			t.Text = FromPool(pool)
		} else {
			t.Text = Literal(spec.Text)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}

func (t TriggerSpec) timing() (Timing, error) {
	switch t.Kind {
	case KindFixed:
		h, m, err := parseClock(t.At)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidTrigger, t.Name, err)
		}
		return Fixed{Hour: h, Minute: m}, nil

	case KindRandomDaily:
		rd := RandomDaily{MinHour: DefaultMinHour, MaxHour: DefaultMaxHour}
		if t.MinHour != nil {
			rd.MinHour = *t.MinHour
		}
		if t.MaxHour != nil {
			rd.MaxHour = *t.MaxHour
		}
		if rd.MinHour < 0 || rd.MaxHour > 23 || rd.MinHour > rd.MaxHour {
			return nil, fmt.Errorf("%w %q: hour range %d-%d", ErrInvalidTrigger, t.Name, rd.MinHour, rd.MaxHour)
		}
		return rd, nil

	case KindRandomInterval:
		ri := RandomInterval{Min: DefaultMinInterval, Max: DefaultMaxInterval}
		if t.Min != 0 {
			ri.Min = t.Min
		}
		if t.Max != 0 {
			ri.Max = t.Max
		}
		if ri.Min <= 0 || ri.Max < ri.Min {
			return nil, fmt.Errorf("%w %q: interval range %s-%s", ErrInvalidTrigger, t.Name, ri.Min, ri.Max)
		}
		return ri, nil

	default:
		return nil, fmt.Errorf("%w %q: unknown kind %q", ErrInvalidTrigger, t.Name, t.Kind)
	}
}

// parseClock parses "HH:MM" in 24-hour form.
func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("at %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("at %q: hour out of range", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("at %q: minute out of range", s)
	}
	return h, m, nil
}
