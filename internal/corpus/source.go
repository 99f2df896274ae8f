package corpus

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source is one transcript the corpus is built from.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type fileSource string

// FileSource returns a Source reading the transcript at path.
func FileSource(path string) Source { return fileSource(path) }

func (f fileSource) Name() string { return string(f) }

func (f fileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

type readerSource struct {
	name string
	text string
}

// ReaderSource returns an in-memory Source, mostly useful for tests and for
// transcripts received over the API.
func ReaderSource(name, text string) Source {
	return readerSource{name: name, text: text}
}

func (r readerSource) Name() string { return r.name }

func (r readerSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(r.text)), nil
}

// Glob expands shell patterns into file sources. Results are sorted per
// pattern and de-duplicated across patterns. A pattern that matches nothing
// is taken as a literal file name, so "chat[1].txt" still names itself;
// when no such file exists either, it is an error.
func Glob(patterns ...string) ([]Source, error) {
	seen := make(map[string]bool)
	var sources []Source
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		matches, err := filepath.Glob(p)
		if len(matches) == 0 && isFile(p) {
			matches, err = []string{p}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no transcript matches %q", p)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			sources = append(sources, FileSource(m))
		}
	}
	return sources, nil
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
