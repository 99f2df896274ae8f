// Package corpus turns parsed transcripts into context/response training
// pairs and a flat pool of message texts.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/replybot/internal/transcript"
)

var (
	// ErrInvalidWindow is returned when the context window is smaller than one message.
	ErrInvalidWindow = errors.New("corpus: context window must be at least 1")
	// ErrEmptyPool is returned when sampling from a pool with no messages.
	ErrEmptyPool = errors.New("corpus: message pool is empty")
)

// DefaultWindow is the number of messages joined into one context.
const DefaultWindow = 3

// maxParallelSources bounds how many transcripts are read at once.
const maxParallelSources = 4

// Options controls pair extraction.
type Options struct {
	// Window is the number of consecutive messages forming a context.
	Window int
	// ExcludedSender is the bot operator. Their messages never become a
	// response, but still appear in contexts and in the pool.
	ExcludedSender string
}

// Pair is a context window and the message that followed it.
type Pair struct {
	Context  string
	Response string
	Source   string
}

// SourceStats summarises what one transcript contributed.
type SourceStats struct {
	Name    string `json:"name"`
	Records int    `json:"records"`
	Pairs   int    `json:"pairs"`
}

// Corpus is the read-only result of Build.
type Corpus struct {
	Pairs   []Pair
	Pool    Pool
	Sources []SourceStats
}

// Stats is a summary of a built corpus.
type Stats struct {
	Sources  []SourceStats `json:"sources"`
	Records  int           `json:"records"`
	Pairs    int           `json:"pairs"`
	PoolSize int           `json:"pool_size"`
}

// Stats returns per-source and total counts.
func (c *Corpus) Stats() Stats {
	s := Stats{
		Sources:  append([]SourceStats(nil), c.Sources...),
		Pairs:    len(c.Pairs),
		PoolSize: c.Pool.Len(),
	}
	for _, src := range c.Sources {
		s.Records += src.Records
	}
	return s
}

// Build parses every source and extracts pairs and the message pool.
// Sources are read concurrently but contribute to the output in the order
// given. Failing to open or read any source fails the whole build.
func Build(ctx context.Context, sources []Source, opts Options) (*Corpus, error) {
	if opts.Window < 1 {
		return nil, ErrInvalidWindow
	}

	parsed := make([][]transcript.Record, len(sources))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSources)

	for i, src := range sources {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			records, err := parseSource(src)
			if err != nil {
				return err
			}
			parsed[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := &Corpus{Sources: make([]SourceStats, len(sources))}
	excluded := strings.ToLower(strings.TrimSpace(opts.ExcludedSender))
	for i, records := range parsed {
		name := sources[i].Name()
		for _, r := range records {
			c.Pool.messages = append(c.Pool.messages, r.Message)
		}
		pairs := extractPairs(records, opts.Window, excluded, name)
		c.Pairs = append(c.Pairs, pairs...)
		c.Sources[i] = SourceStats{Name: name, Records: len(records), Pairs: len(pairs)}
	}
	return c, nil
}

func parseSource(src Source) ([]transcript.Record, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("opening transcript %s: %w", src.Name(), err)
	}
	defer rc.Close()

	records, err := transcript.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing transcript %s: %w", src.Name(), err)
	}
	return records, nil
}

// extractPairs slides a window of size window over records. excluded must
// already be lower-cased.
func extractPairs(records []transcript.Record, window int, excluded, source string) []Pair {
	var pairs []Pair
	texts := make([]string, 0, window)
	for i := 0; i+window < len(records); i++ {
		next := records[i+window]
		if excluded != "" && strings.ToLower(next.Sender) == excluded {
			continue
		}
		texts = texts[:0]
		for _, r := range records[i : i+window] {
			texts = append(texts, r.Message)
		}
		pairs = append(pairs, Pair{
			Context:  strings.Join(texts, " "),
			Response: next.Message,
			Source:   source,
		})
	}
	return pairs
}
