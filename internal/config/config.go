package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/replybot/internal/clock"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Corpus    CorpusConfig
	Retrieval RetrievalConfig
	Schedule  ScheduleConfig
	Matrix    MatrixConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type CorpusConfig struct {
	// Paths is a comma-separated list of transcript files or glob patterns.
	Paths          string
	Window         int
	ExcludedSender string
}

// Patterns splits Paths into individual patterns.
func (c CorpusConfig) Patterns() []string {
	var out []string
	for _, p := range strings.Split(c.Paths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type RetrievalConfig struct {
	TopK      int
	Threshold float64
	Fallback  string
}

type ScheduleConfig struct {
	File      string
	UTCOffset string
	Recipient string
}

type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// SendRate is the sustained outbound message rate, in messages per second.
	SendRate float64
}

// Enabled reports whether enough is configured to connect to Matrix.
func (m MatrixConfig) Enabled() bool {
	return m.Homeserver != "" && m.UserID != "" && m.AccessToken != ""
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Corpus: CorpusConfig{
			Window: 3,
		},
		Retrieval: RetrievalConfig{
			TopK:      5,
			Threshold: 0.3,
			Fallback:  "Sorry, I don't understand.",
		},
		Schedule: ScheduleConfig{
			UTCOffset: clock.DefaultOffset,
		},
		Matrix: MatrixConfig{
			SendRate: 1,
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/replybot/config.json, then applies REPLYBOT_*
// environment overrides. Secrets are only read from the environment.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Corpus.Window < 1 {
		errs = append(errs, fmt.Errorf("corpus.window must be at least 1, got %d", c.Corpus.Window))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.threshold must be within [0, 1], got %v", c.Retrieval.Threshold))
	}
	if _, err := clock.ParseOffset(c.Schedule.UTCOffset); err != nil {
		errs = append(errs, fmt.Errorf("schedule.utc_offset: %w", err))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	if c.Matrix.SendRate <= 0 {
		errs = append(errs, fmt.Errorf("matrix.send_rate must be positive, got %v", c.Matrix.SendRate))
	}
	if c.Matrix.Homeserver != "" && c.Matrix.AccessToken == "" {
		errs = append(errs, errors.New("matrix.homeserver is set but REPLYBOT_MATRIX_ACCESS_TOKEN is empty"))
	}
	return errors.Join(errs...)
}
