package storage

import "strings"

// The commit file is a line-oriented micro-format, not freeform markdown.
// Entries are separated by Separator and carry two single-line fields
// (Commit ID, Timestamp) plus multi-line fields introduced by a line
// ending in ':'. ParseEntries and encodeEntry form an explicit
// encode/decode pair: parsing a formatted entry recovers every field
// value verbatim modulo surrounding whitespace.
const Separator = "=== Commit ==="

// Multi-line field names used by this system. ParseEntries also keeps any
// other field a line ending in ':' introduces, so user contribution text
// containing such a line degrades to an extra field instead of corrupting
// its neighbors.
const (
	FieldPurpose         = "Branch Purpose"
	FieldPreviousSummary = "Previous Progress Summary"
	FieldContribution    = "This Commit's Contribution"
)

// NoPreviousSummary marks the first entry in a branch.
const NoPreviousSummary = "(none)"

// Entry is one parsed commit record.
type Entry struct {
	ID        string
	Timestamp string
	Fields    map[string]string
}

// Purpose returns the branch purpose recorded at write time.
func (e Entry) Purpose() string { return e.Fields[FieldPurpose] }

// PreviousSummary returns the chained summary of all prior entries.
func (e Entry) PreviousSummary() string { return e.Fields[FieldPreviousSummary] }

// Contribution returns the caller-supplied progress text.
func (e Entry) Contribution() string { return e.Fields[FieldContribution] }

// ParseEntries decodes every entry in a commit file. Text before the
// first separator (the branch header) is ignored.
func ParseEntries(text string) []Entry {
	if !strings.Contains(text, Separator) {
		return nil
	}
	parts := strings.Split(text, Separator)
	entries := make([]Entry, 0, len(parts)-1)
	for _, part := range parts[1:] {
		entries = append(entries, parseEntry(part))
	}
	return entries
}

func parseEntry(segment string) Entry {
	e := Entry{Fields: map[string]string{}}

	var (
		key    string
		buffer []string
	)
	flush := func() {
		if key != "" && len(buffer) > 0 {
			e.Fields[key] = strings.TrimSpace(strings.Join(buffer, "\n"))
		}
		buffer = nil
	}

	for _, raw := range strings.Split(strings.TrimSpace(segment), "\n") {
		line := strings.TrimRight(raw, " \t\r")
		switch {
		case strings.HasPrefix(line, "Commit ID:"):
			e.ID = strings.TrimSpace(line[len("Commit ID:"):])
		case strings.HasPrefix(line, "Timestamp:"):
			e.Timestamp = strings.TrimSpace(line[len("Timestamp:"):])
		case strings.HasSuffix(line, ":"):
			flush()
			key = strings.TrimSuffix(line, ":")
		default:
			buffer = append(buffer, line)
		}
	}
	flush()
	return e
}

// encodeEntry renders one entry block in the fixed field order, starting
// with the separator line and ending with a newline.
func encodeEntry(id, timestamp, purpose, previousSummary, contribution string) string {
	lines := []string{
		Separator,
		"Commit ID: " + id,
		"Timestamp: " + timestamp,
		FieldPurpose + ":",
		purpose,
		FieldPreviousSummary + ":",
		previousSummary,
		FieldContribution + ":",
		contribution,
		"",
	}
	return strings.Join(lines, "\n")
}

// chainSummary derives the "previous progress summary" for the next
// entry: the last entry's summary concatenated with its contribution,
// trimmed, or NoPreviousSummary for the first entry in a branch.
func chainSummary(entries []Entry) string {
	if len(entries) == 0 {
		return NoPreviousSummary
	}
	last := entries[len(entries)-1]
	var parts []string
	if s := last.PreviousSummary(); s != "" {
		parts = append(parts, s)
	}
	if c := last.Contribution(); c != "" {
		parts = append(parts, c)
	}
	combined := strings.TrimSpace(strings.Join(parts, "\n"))
	if combined == "" {
		return NoPreviousSummary
	}
	return combined
}

// RawEntry returns the verbatim entry block (including its leading
// separator line) for the given commit id, or "" when absent.
func RawEntry(text, commitID string) string {
	if !strings.Contains(text, Separator) {
		return ""
	}
	for _, part := range strings.Split(text, Separator)[1:] {
		if strings.Contains(part, "Commit ID: "+commitID) {
			return Separator + part
		}
	}
	return ""
}
