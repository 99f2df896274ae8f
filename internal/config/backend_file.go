package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// xdgDir returns $<env>/replybot, falling back to ~/<home>/replybot.
func xdgDir(env string, home ...string) string {
	base := os.Getenv(env)
	if base == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return "replybot"
		}
		base = filepath.Join(append([]string{h}, home...)...)
	}
	return filepath.Join(base, "replybot")
}

func defaultDataDir() string { return xdgDir("XDG_DATA_HOME", ".local", "share") }

// ConfigFilePath returns the location of the JSON config file.
func ConfigFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "config.json")
}

func newPlatformBackend() ConfigBackend { return newFileBackend(ConfigFilePath()) }

// fileBackend keeps settings as one flat JSON object keyed by dotted
// config key, e.g. {"corpus.window": 4}.
type fileBackend struct {
	path   string
	values map[string]any
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: map[string]any{}}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	default:
		if err := json.Unmarshal(data, &b.values); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
			b.values = map[string]any{}
		}
	}
	return b
}

// GetString returns the value of key as text. A JSON array of strings is
// joined with commas so list keys such as corpus.paths may be written
// either way.
func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			s, ok := p.(string)
			if !ok {
				return "", true, fmt.Errorf("%s: list items must be strings, got %T", key, p)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true, nil
	default:
		return fmt.Sprint(val), true, nil
	}
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	f, ok, err := b.GetFloat(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, true, fmt.Errorf("%s: %v is not a whole number", key, f)
	}
	return int(f), true, nil
}

// GetFloat accepts JSON numbers and numeric strings.
func (b *fileBackend) GetFloat(key string) (float64, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case float64:
		return val, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("%s: want a number, got %T", key, v)
	}
}

func (b *fileBackend) Set(key string, val any) error {
	b.values[key] = val
	return b.flush()
}

func (b *fileBackend) Delete(key string) error {
	delete(b.values, key)
	return b.flush()
}

func (b *fileBackend) flush() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(b.path, append(data, '\n'), 0o600)
}
