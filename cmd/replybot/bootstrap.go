package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kalambet/replybot/internal/clock"
	"github.com/kalambet/replybot/internal/config"
	"github.com/kalambet/replybot/internal/corpus"
	"github.com/kalambet/replybot/internal/retrieval"
	"github.com/kalambet/replybot/internal/schedule"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))
}

// loadCorpus builds the corpus from the configured transcript patterns.
// An empty result is an error: there would be nothing to answer from.
func loadCorpus(ctx context.Context, cfg config.Config) (*corpus.Corpus, error) {
	patterns := cfg.Corpus.Patterns()
	if len(patterns) == 0 {
		return nil, errors.New("corpus.paths is not set; point it at one or more transcript files")
	}
	sources, err := corpus.Glob(patterns...)
	if err != nil {
		return nil, fmt.Errorf("finding transcripts: %w", err)
	}

	start := time.Now()
	c, err := corpus.Build(ctx, sources, corpus.Options{
		Window:         cfg.Corpus.Window,
		ExcludedSender: cfg.Corpus.ExcludedSender,
	})
	if err != nil {
		return nil, fmt.Errorf("building corpus: %w", err)
	}
	if len(c.Pairs) == 0 {
		return nil, fmt.Errorf("building corpus: no context/response pairs in %d transcript(s)", len(sources))
	}
	st := c.Stats()
	slog.Info("corpus built", "sources", len(st.Sources), "records", st.Records, "pairs", st.Pairs, "duration", time.Since(start))
	return c, nil
}

func fitIndex(c *corpus.Corpus, cfg config.Config) (*retrieval.Index, error) {
	ix, err := retrieval.Fit(c.Pairs, retrieval.Options{
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.Threshold,
		Fallback:  cfg.Retrieval.Fallback,
	})
	if err != nil {
		return nil, fmt.Errorf("fitting index: %w", err)
	}
	st := ix.Stats()
	slog.Info("index fitted", "rows", st.Rows, "vocabulary", st.Vocabulary)
	return ix, nil
}

// schedulePlan is the resolved schedule: which triggers run, in which zone,
// and where they send by default.
type schedulePlan struct {
	Triggers  []schedule.Trigger
	Location  *time.Location
	Recipient string
	Source    string
}

// buildSchedule resolves triggers from the schedule file when one is
// configured, otherwise the default triggers when a recipient is set.
// The file's utc_offset and recipient take precedence over config.
func buildSchedule(cfg config.Config, pool schedule.Picker) (schedulePlan, error) {
	plan := schedulePlan{Recipient: cfg.Schedule.Recipient}
	offset := cfg.Schedule.UTCOffset

	switch {
	case cfg.Schedule.File != "":
		f, err := schedule.LoadFile(cfg.Schedule.File)
		if err != nil {
			return plan, err
		}
		if f.UTCOffset != "" {
			offset = f.UTCOffset
		}
		if f.Recipient != "" {
			plan.Recipient = f.Recipient
		}
		if plan.Triggers, err = f.Build(pool); err != nil {
			return plan, fmt.Errorf("schedule file %s: %w", cfg.Schedule.File, err)
		}
		plan.Source = cfg.Schedule.File

	case plan.Recipient != "":
		plan.Triggers = schedule.DefaultTriggers(pool)
		plan.Source = "defaults"
	}

	loc, err := clock.ParseOffset(offset)
	if err != nil {
		return plan, fmt.Errorf("schedule zone: %w", err)
	}
	plan.Location = loc
	return plan, nil
}
