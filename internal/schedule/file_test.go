package schedule

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/replybot/internal/corpus"
)

const sampleFile = `
utc_offset: "+05:30"
recipient: "!room:example.org"
triggers:
  - name: morning
    kind: fixed
    at: "08:30"
    text: "Good morning ☀️💖"
  - name: surprise
    kind: random-daily
    min_hour: 11
    max_hour: 15
    pool: true
  - name: nudge
    kind: random-interval
    min: 90s
    max: 3h
    pool: true
    recipient: "!other:example.org"
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	if err := os.WriteFile(path, []byte(sampleFile), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.UTCOffset != "+05:30" || f.Recipient != "!room:example.org" {
		t.Errorf("header = %q / %q", f.UTCOffset, f.Recipient)
	}

	triggers, err := f.Build(corpus.NewPool([]string{"hey"}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(triggers) != 3 {
		t.Fatalf("triggers = %d, want 3", len(triggers))
	}

	if got, ok := triggers[0].Timing.(Fixed); !ok || got != (Fixed{Hour: 8, Minute: 30}) {
		t.Errorf("morning timing = %#v", triggers[0].Timing)
	}
	if text, _ := triggers[0].Text.Text(nil); text != "Good morning ☀️💖" {
		t.Errorf("morning text = %q", text)
	}
	if got, ok := triggers[1].Timing.(RandomDaily); !ok || got != (RandomDaily{MinHour: 11, MaxHour: 15}) {
		t.Errorf("surprise timing = %#v", triggers[1].Timing)
	}
	if got, ok := triggers[2].Timing.(RandomInterval); !ok || got != (RandomInterval{Min: 90 * time.Second, Max: 3 * time.Hour}) {
		t.Errorf("nudge timing = %#v", triggers[2].Timing)
	}
	if triggers[2].Recipient != "!other:example.org" {
		t.Errorf("nudge recipient = %q", triggers[2].Recipient)
	}
	if text, err := triggers[2].Text.Text(fixedRand{0}); err != nil || text != "hey" {
		t.Errorf("pool text = %q, %v", text, err)
	}
}

func TestParse_Defaults(t *testing.T) {
	f, err := Parse([]byte(`
triggers:
  - name: a
    kind: random-daily
    text: hi
  - name: b
    kind: random-interval
    text: hi
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	triggers, err := f.Build(nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := triggers[0].Timing; got != (RandomDaily{MinHour: DefaultMinHour, MaxHour: DefaultMaxHour}) {
		t.Errorf("random-daily defaults = %#v", got)
	}
	if got := triggers[1].Timing; got != (RandomInterval{Min: DefaultMinInterval, Max: DefaultMaxInterval}) {
		t.Errorf("random-interval defaults = %#v", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown kind", "triggers: [{name: a, kind: hourly, text: x}]", "unknown kind"},
		{"bad time", "triggers: [{name: a, kind: fixed, at: '25:00', text: x}]", "hour out of range"},
		{"bad minute", "triggers: [{name: a, kind: fixed, at: '08:3', text: x}]", "minute out of range"},
		{"missing at", "triggers: [{name: a, kind: fixed, text: x}]", "want HH:MM"},
		{"text and pool", "triggers: [{name: a, kind: fixed, at: '08:00', text: x, pool: true}]", "exactly one"},
		{"neither text nor pool", "triggers: [{name: a, kind: fixed, at: '08:00'}]", "exactly one"},
		{"duplicate", "triggers: [{name: a, kind: fixed, at: '08:00', text: x}, {name: a, kind: fixed, at: '09:00', text: y}]", "duplicate"},
		{"no name", "triggers: [{kind: fixed, at: '08:00', text: x}]", "has no name"},
		{"reversed hours", "triggers: [{name: a, kind: random-daily, min_hour: 18, max_hour: 10, text: x}]", "hour range"},
		{"reversed interval", "triggers: [{name: a, kind: random-interval, min: 2h, max: 1h, text: x}]", "interval range"},
		{"bad yaml", "triggers: [", "parsing yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_ReportsAllErrors(t *testing.T) {
	_, err := Parse([]byte("triggers: [{name: a, kind: nope, text: x}, {name: b, kind: fixed, at: 'x', text: y}]"))
	if !errors.Is(err, ErrInvalidTrigger) {
		t.Fatalf("err = %v, want ErrInvalidTrigger", err)
	}
	if !strings.Contains(err.Error(), `"a"`) || !strings.Contains(err.Error(), `"b"`) {
		t.Errorf("error %q should name both triggers", err)
	}
}

func TestBuild_EmptyPool(t *testing.T) {
	f, err := Parse([]byte("triggers: [{name: a, kind: fixed, at: '08:00', pool: true}]"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Build(corpus.NewPool(nil)); !errors.Is(err, ErrInvalidTrigger) {
		t.Errorf("err = %v, want ErrInvalidTrigger", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}
