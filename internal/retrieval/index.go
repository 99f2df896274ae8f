// Package retrieval picks a reply for an incoming message by comparing it
// with the contexts of a conversation corpus.
//
// The index is fitted once from corpus pairs and is read-only afterwards,
// so a single *Index is safe for concurrent use without locking.
package retrieval

import (
	"errors"
	"math/rand/v2"

	"github.com/kalambet/replybot/internal/corpus"
	"github.com/kalambet/replybot/internal/emoji"
)

// ErrEmptyCorpus is returned by Fit when there is nothing to fit on.
var ErrEmptyCorpus = errors.New("retrieval: no training pairs to fit")

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.3
	DefaultFallback  = "Sorry, I don't understand."
)

// Rand is the random source used to pick among qualifying replies.
type Rand interface {
	IntN(n int) int
}

// globalRand uses the auto-seeded, concurrency-safe math/rand/v2 source.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Options tunes ranking. Zero TopK, empty Fallback and nil Rand take the
// package defaults; Threshold is used as given.
type Options struct {
	TopK      int
	Threshold float64
	Fallback  string
	Rand      Rand
}

// DefaultOptions returns the production ranking settings.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, Threshold: DefaultThreshold, Fallback: DefaultFallback}
}

// Path names the branch that produced a reply.
type Path string

const (
	PathEmoji      Path = "emoji"
	PathSimilarity Path = "similarity"
	PathFallback   Path = "fallback"
)

// Candidate is a reply considered for a query.
type Candidate struct {
	Context  string  `json:"context"`
	Response string  `json:"response"`
	Score    float64 `json:"score"`
}

// Result is a reply with the reasoning behind it.
type Result struct {
	Reply string `json:"reply"`
	Path  Path   `json:"path"`
	// Emoji holds the emoji runs found in the query.
	Emoji []string `json:"emoji,omitempty"`
	// Candidates are the replies the result was drawn from. For the
	// similarity path they are the top-K rows above the threshold, best first.
	Candidates []Candidate `json:"candidates,omitempty"`
	// BestScore is the highest cosine similarity seen, above threshold or not.
	BestScore float64 `json:"best_score"`
}

// Index is a fitted TF-IDF matrix over corpus contexts.
type Index struct {
	vec   *Vectorizer
	rows  []sparseVec
	pairs []corpus.Pair
	opts  Options
}

// Fit vectorizes the context of every pair. It fails with ErrEmptyCorpus if
// pairs is empty or no context contains a single token.
func Fit(pairs []corpus.Pair, opts Options) (*Index, error) {
	if len(pairs) == 0 {
		return nil, ErrEmptyCorpus
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Fallback == "" {
		opts.Fallback = DefaultFallback
	}
	if opts.Rand == nil {
		opts.Rand = globalRand{}
	}

	docs := make([]string, len(pairs))
	for i, p := range pairs {
		docs[i] = p.Context
	}
	vec := fitVectorizer(docs)
	if vec.Len() == 0 {
		return nil, ErrEmptyCorpus
	}

	rows := make([]sparseVec, len(docs))
	for i, d := range docs {
		rows[i] = vec.Transform(d)
	}

	return &Index{
		vec:   vec,
		rows:  rows,
		pairs: append([]corpus.Pair(nil), pairs...),
		opts:  opts,
	}, nil
}

// Query returns a reply for input. It never fails: when nothing qualifies
// the configured fallback text is returned.
func (ix *Index) Query(input string) string {
	return ix.Explain(input).Reply
}

// Explain is Query with diagnostics.
//
// If input carries emoji and some corpus response contains one of them, the
// reply is drawn from those responses and similarity is not consulted at
// all, even when a lexically closer response exists.
func (ix *Index) Explain(input string) Result {
	if runs := emoji.Extract(input); len(runs) > 0 {
		var matches []Candidate
		for _, p := range ix.pairs {
			if emoji.ContainsAny(p.Response, runs) {
				matches = append(matches, Candidate{Context: p.Context, Response: p.Response})
			}
		}
		if len(matches) > 0 {
			pick := matches[ix.opts.Rand.IntN(len(matches))]
			return Result{Reply: pick.Response, Path: PathEmoji, Emoji: runs, Candidates: matches}
		}
	}

	scored := topK(ix.vec.Transform(input), ix.rows, ix.opts.TopK)

	res := Result{Path: PathFallback, Reply: ix.opts.Fallback}
	if len(scored) > 0 {
		res.BestScore = scored[0].Score
	}
	for _, s := range scored {
		if s.Score > ix.opts.Threshold {
			p := ix.pairs[s.Row]
			res.Candidates = append(res.Candidates, Candidate{Context: p.Context, Response: p.Response, Score: s.Score})
		}
	}
	if len(res.Candidates) > 0 {
		res.Path = PathSimilarity
		res.Reply = res.Candidates[ix.opts.Rand.IntN(len(res.Candidates))].Response
	}
	return res
}

// Stats describes the fitted index.
type Stats struct {
	Rows       int     `json:"rows"`
	Vocabulary int     `json:"vocabulary"`
	TopK       int     `json:"top_k"`
	Threshold  float64 `json:"threshold"`
}

// Stats returns the index dimensions and ranking settings.
func (ix *Index) Stats() Stats {
	return Stats{
		Rows:       len(ix.rows),
		Vocabulary: ix.vec.Len(),
		TopK:       ix.opts.TopK,
		Threshold:  ix.opts.Threshold,
	}
}
