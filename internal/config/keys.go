package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kFloat:
		return "number"
	default:
		return "string"
	}
}

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "REPLYBOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "REPLYBOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "REPLYBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "corpus.paths", typ: kString, env: "REPLYBOT_CORPUS_PATHS",
		apply:   func(cfg *Config, v any) { cfg.Corpus.Paths = v.(string) },
		extract: func(cfg Config) any { return cfg.Corpus.Paths },
	},
	{
		key: "corpus.window", typ: kInt, env: "REPLYBOT_CORPUS_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Corpus.Window = v.(int) },
		extract: func(cfg Config) any { return cfg.Corpus.Window },
	},
	{
		key: "corpus.excluded_sender", typ: kString, env: "REPLYBOT_CORPUS_EXCLUDED_SENDER",
		apply:   func(cfg *Config, v any) { cfg.Corpus.ExcludedSender = v.(string) },
		extract: func(cfg Config) any { return cfg.Corpus.ExcludedSender },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "REPLYBOT_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.threshold", typ: kFloat, env: "REPLYBOT_RETRIEVAL_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.Threshold },
	},
	{
		key: "retrieval.fallback", typ: kString, env: "REPLYBOT_RETRIEVAL_FALLBACK",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.Fallback = v.(string) },
		extract: func(cfg Config) any { return cfg.Retrieval.Fallback },
	},
	{
		key: "schedule.file", typ: kString, env: "REPLYBOT_SCHEDULE_FILE",
		apply:   func(cfg *Config, v any) { cfg.Schedule.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.File },
	},
	{
		key: "schedule.utc_offset", typ: kString, env: "REPLYBOT_SCHEDULE_UTC_OFFSET",
		apply:   func(cfg *Config, v any) { cfg.Schedule.UTCOffset = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.UTCOffset },
	},
	{
		key: "schedule.recipient", typ: kString, env: "REPLYBOT_SCHEDULE_RECIPIENT",
		apply:   func(cfg *Config, v any) { cfg.Schedule.Recipient = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.Recipient },
	},
	{
		key: "matrix.homeserver", typ: kString, env: "REPLYBOT_MATRIX_HOMESERVER",
		apply:   func(cfg *Config, v any) { cfg.Matrix.Homeserver = v.(string) },
		extract: func(cfg Config) any { return cfg.Matrix.Homeserver },
	},
	{
		key: "matrix.user_id", typ: kString, env: "REPLYBOT_MATRIX_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.Matrix.UserID = v.(string) },
		extract: func(cfg Config) any { return cfg.Matrix.UserID },
	},
	{
		key: "matrix.access_token", typ: kString, env: "REPLYBOT_MATRIX_ACCESS_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Matrix.AccessToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Matrix.AccessToken },
	},
	{
		key: "matrix.send_rate", typ: kFloat, env: "REPLYBOT_MATRIX_SEND_RATE",
		apply:   func(cfg *Config, v any) { cfg.Matrix.SendRate = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matrix.SendRate },
	},
	{
		key: "api.token", typ: kString, env: "REPLYBOT_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

// parse converts raw text to the key's Go type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case kFloat:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	default:
		return raw, nil
	}
}

// read fetches the key from b with the getter matching its type.
func (s keySpec) read(b ConfigBackend) (any, bool, error) {
	switch s.typ {
	case kInt:
		v, ok, err := b.GetInt(s.key)
		return v, ok, err
	case kFloat:
		v, ok, err := b.GetFloat(s.key)
		return v, ok, err
	default:
		v, ok, err := b.GetString(s.key)
		return v, ok, err
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		v, ok, err := s.read(b)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if s.env == "" || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring %s=%q: not a valid %s\n", s.env, raw, s.typ)
			continue
		}
		s.apply(cfg, v)
	}
}
