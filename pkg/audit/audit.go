// Package audit defines the on-target audit log format. The log is a plain
// append-only text stream, one entry per executed command, readable at any
// time without the orchestrator.
package audit

import (
	"fmt"
	"strings"
	"time"
)

// entryMarker introduces each entry. The verbatim command text follows on
// subsequent lines until the next marker.
const entryMarker = "=== "

// Entry is one parsed audit log record.
type Entry struct {
	// Timestamp is when the command was issued, UTC.
	Timestamp time.Time

	// Command is the verbatim pre-encoding command text.
	Command string
}

// FormatEntry renders a single audit entry. The trailing newline terminates
// the entry body so a following marker always starts a line.
func FormatEntry(ts time.Time, command string) string {
	var b strings.Builder
	b.WriteString(entryMarker)
	b.WriteString(ts.UTC().Format(time.RFC3339Nano))
	b.WriteByte('\n')
	b.WriteString(command)
	if !strings.HasSuffix(command, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseLog parses a raw audit log into entries. Malformed leading content is
// skipped; a malformed timestamp fails the whole parse since it means the
// stream was corrupted, not merely truncated.
func ParseLog(raw string) ([]Entry, error) {
	var entries []Entry

	lines := strings.Split(raw, "\n")
	var current *Entry
	var body []string

	flush := func() {
		if current != nil {
			current.Command = strings.TrimSuffix(strings.Join(body, "\n"), "\n")
			entries = append(entries, *current)
			current = nil
			body = nil
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(line, entryMarker) {
			flush()
			ts, err := time.Parse(time.RFC3339Nano, strings.TrimPrefix(line, entryMarker))
			if err != nil {
				return nil, fmt.Errorf("malformed audit timestamp %q: %w", line, err)
			}
			current = &Entry{Timestamp: ts}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()

	return entries, nil
}

// Tail returns the last n entries of the parsed log.
func Tail(entries []Entry, n int) []Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}
