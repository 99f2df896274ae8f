// Package emoji finds emoji runs in chat text.
//
// A fixed set of Unicode blocks is recognised: emoticons, symbols and
// pictographs, transport and map symbols, regional indicator flags,
// dingbats and supplemental symbols. A variation selector or a zero-width
// joiner stays inside a run, so "♥️" and family sequences are one run.
package emoji

import "strings"

type block struct {
	lo, hi rune
}

var blocks = []block{
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F300, 0x1F5FF}, // symbols & pictographs
	{0x1F680, 0x1F6FF}, // transport & map
	{0x1F1E0, 0x1F1FF}, // flags
	{0x2600, 0x26FF},   // miscellaneous symbols
	{0x2702, 0x27B0},   // dingbats
	{0x1F900, 0x1F9FF}, // supplemental symbols & pictographs
}

const (
	variationSelector = '\uFE0F'
	zeroWidthJoiner   = '\u200D'
)

// Is reports whether r falls inside one of the recognised emoji blocks.
func Is(r rune) bool {
	for _, b := range blocks {
		if r >= b.lo && r <= b.hi {
			return true
		}
	}
	return false
}

// Extract returns every maximal run of consecutive emoji in s, in order of
// appearance. U+FE0F after an emoji and U+200D between two emoji belong to
// the run; a trailing joiner does not. Duplicate runs are kept.
func Extract(s string) []string {
	var runs []string
	start, end := -1, -1
	for i, r := range s {
		switch {
		case Is(r):
			if start < 0 {
				start = i
			}
			end = i + len(string(r))
		case start >= 0 && r == variationSelector && end == i:
			end = i + len(string(r))
		case start >= 0 && r == zeroWidthJoiner && end == i:
			// Kept only if an emoji follows, which moves end past it.
		default:
			if start >= 0 {
				runs = append(runs, s[start:end])
				start = -1
			}
		}
	}
	if start >= 0 {
		runs = append(runs, s[start:end])
	}
	return runs
}

// ContainsAny reports whether s contains at least one of runs as a substring.
func ContainsAny(s string, runs []string) bool {
	for _, e := range runs {
		if e != "" && strings.Contains(s, e) {
			return true
		}
	}
	return false
}
