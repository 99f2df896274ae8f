package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokenPattern matches runs of two or more word characters. Combining
// marks count as word characters so Indic and Arabic words stay whole.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`)

// Vectorizer maps text to TF-IDF weighted unigram+bigram vectors.
// It is immutable after fitVectorizer returns.
type Vectorizer struct {
	vocab map[string]int
	idf   []float64
}

// analyze lower-cases text and returns its unigrams followed by its bigrams.
func analyze(text string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return nil
	}
	grams := make([]string, 0, 2*len(tokens)-1)
	grams = append(grams, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		grams = append(grams, tokens[i]+" "+tokens[i+1])
	}
	return grams
}

// fitVectorizer learns the vocabulary and smoothed inverse document
// frequencies of docs: idf(t) = ln((1+n)/(1+df(t))) + 1.
// Vocabulary indices follow sorted term order so fitting is deterministic.
func fitVectorizer(docs []string) *Vectorizer {
	df := make(map[string]int)
	for _, d := range docs {
		seen := make(map[string]bool)
		for _, g := range analyze(d) {
			if !seen[g] {
				seen[g] = true
				df[g]++
			}
		}
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v := &Vectorizer{
		vocab: make(map[string]int, len(terms)),
		idf:   make([]float64, len(terms)),
	}
	for i, t := range terms {
		v.vocab[t] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
	return v
}

// Len returns the vocabulary size.
func (v *Vectorizer) Len() int { return len(v.vocab) }

// Transform returns the unit-length TF-IDF vector of text. Terms outside
// the fitted vocabulary are ignored; text with no known term yields an
// empty vector.
func (v *Vectorizer) Transform(text string) sparseVec {
	counts := make(map[int]float64)
	for _, g := range analyze(text) {
		if idx, ok := v.vocab[g]; ok {
			counts[idx]++
		}
	}
	vec := make(sparseVec, 0, len(counts))
	for idx, c := range counts {
		vec = append(vec, term{idx: idx, val: c * v.idf[idx]})
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].idx < vec[j].idx })
	vec.normalize()
	return vec
}
