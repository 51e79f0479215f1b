// Package report renders diffs and changelogs. The output format is chosen
// once, when the Renderer is built.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/alc6/schematrack/diff"
)

// Format is an output format name
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// TimeLayout is used for every timestamp in rendered reports.
const TimeLayout = "2006-01-02 15:04:05"

// Formats lists the supported format names
func Formats() []string {
	return []string{string(FormatMarkdown), string(FormatJSON), string(FormatText)}
}

// ParseFormat validates a format name. "md" is accepted for markdown.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (expected one of %s)", name, strings.Join(Formats(), ", "))
	}
}

// Header identifies one side of a changelog entry
type Header struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Label renders the header's timestamp, or "Unknown" when it is not known.
func (h Header) Label() string {
	if h.Timestamp.IsZero() {
		return "Unknown"
	}
	return h.Timestamp.Format(TimeLayout)
}

// Entry is one changelog block: the diff between two adjacent snapshots
type Entry struct {
	From Header
	To   Header
	Diff *diff.Diff
}

// History is a sequence of changelog entries under one title
type History struct {
	Title       string
	GeneratedAt time.Time
	Entries     []Entry
}

// Renderer turns diffs into text in one output format
type Renderer interface {
	// Format returns the format this renderer produces
	Format() Format
	// Render formats a bare diff
	Render(d *diff.Diff) string
	// RenderChangelog formats a diff between two named snapshots
	RenderChangelog(e Entry) string
	// RenderHistory formats a sequence of changelog entries
	RenderHistory(h History) string
}

// New returns the renderer for format. The policy feeds the breaking-change
// flag of embedded summaries.
func New(format Format, policy diff.Policy) (Renderer, error) {
	switch format {
	case FormatText:
		return &TextRenderer{policy: policy}, nil
	case FormatMarkdown:
		return &MarkdownRenderer{policy: policy}, nil
	case FormatJSON:
		return &JSONRenderer{policy: policy}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ForName parses name and returns its renderer.
func ForName(name string, policy diff.Policy) (Renderer, error) {
	format, err := ParseFormat(name)
	if err != nil {
		return nil, err
	}
	return New(format, policy)
}

func orEmpty(d *diff.Diff) *diff.Diff {
	if d == nil {
		return diff.New()
	}
	return d
}
