// Package transcript parses exported chat logs into sender/message records.
//
// Each exported line looks like
//
//	12/31/23, 9:41 pm - Alice: see you tomorrow
//
// Lines that do not follow that shape are dropped. This includes the
// continuation lines of multi-line messages: only the first line of such a
// message survives. System notices without a "sender:" part are dropped too.
package transcript

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// maxLineSize bounds a single transcript line. Long pasted messages exceed
// bufio.Scanner's 64 KiB default.
const maxLineSize = 1 << 20

// linePattern captures date, time, sender and message. The meridiem may be
// preceded by a regular space, a no-break space or the narrow no-break space
// newer exports use.
var linePattern = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}), (\d{1,2}:\d{2}[\s\x{00A0}\x{202F}]?[AaPp][Mm]) - (.*?): (.+)$`)

// Line is a transcript line that matched the grammar, before noise filtering.
type Line struct {
	Date    string
	Time    string
	Sender  string
	Message string
}

// Record is one chat message attributed to its sender.
type Record struct {
	Sender  string
	Message string
}

// MatchLine applies the line grammar and trims sender and message.
// It does not apply the noise filter.
func MatchLine(line string) (Line, bool) {
	m := linePattern.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return Line{}, false
	}
	return Line{
		Date:    m[1],
		Time:    m[2],
		Sender:  strings.TrimSpace(m[3]),
		Message: strings.TrimSpace(m[4]),
	}, true
}

// ParseLine returns the record for line, or false if the line does not match
// the grammar, carries an empty message, or is noise (see IsNoise).
func ParseLine(line string) (Record, bool) {
	l, ok := MatchLine(line)
	if !ok || l.Message == "" || IsNoise(l.Message) {
		return Record{}, false
	}
	return Record{Sender: l.Sender, Message: l.Message}, true
}

// Parse reads r line by line and returns the records in transcript order.
// Malformed lines are skipped; only read failures produce an error.
func Parse(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var records []Record
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if rec, ok := ParseLine(line); ok {
			records = append(records, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return records, nil
}
