package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alc6/schematrack/diff"
)

// JSONRenderer renders pretty-printed JSON
type JSONRenderer struct {
	policy diff.Policy
}

type jsonEntry struct {
	From    Header       `json:"from"`
	To      Header       `json:"to"`
	Diff    *diff.Diff   `json:"diff"`
	Summary diff.Summary `json:"summary"`
}

type jsonHistory struct {
	Title       string      `json:"title"`
	GeneratedAt *time.Time  `json:"generated_at,omitempty"`
	Changelog   []jsonEntry `json:"changelog"`
}

func (r *JSONRenderer) Format() Format {
	return FormatJSON
}

func (r *JSONRenderer) Render(d *diff.Diff) string {
	return encode(orEmpty(d))
}

func (r *JSONRenderer) RenderChangelog(e Entry) string {
	return encode(r.entry(e))
}

func (r *JSONRenderer) RenderHistory(h History) string {
	out := jsonHistory{Title: h.Title, Changelog: make([]jsonEntry, 0, len(h.Entries))}
	if !h.GeneratedAt.IsZero() {
		generated := h.GeneratedAt
		out.GeneratedAt = &generated
	}
	for _, e := range h.Entries {
		out.Changelog = append(out.Changelog, r.entry(e))
	}
	return encode(out)
}

func (r *JSONRenderer) entry(e Entry) jsonEntry {
	d := orEmpty(e.Diff)
	return jsonEntry{From: e.From, To: e.To, Diff: d, Summary: diff.Summarize(d, r.policy)}
}

// encode fails fast: every value reaching it is built from plain scalars,
// strings and maps, so an encoding error means a malformed diff.
func encode(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("report: failed to encode json: %v", err))
	}
	return string(data) + "\n"
}
