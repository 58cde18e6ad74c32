package importer

import (
	"fmt"
	"strings"
	"time"
)

// Entry is one line of a report.
type Entry struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// Report accumulates row outcomes of one source. TotalRows always equals
// SuccessCount + SkipCount + ErrorCount.
type Report struct {
	Kind         string    `json:"kind"`
	Source       string    `json:"source"`
	Encoding     string    `json:"encoding,omitempty"`
	TotalRows    int       `json:"total_rows"`
	SuccessCount int       `json:"success_count"`
	SkipCount    int       `json:"skip_count"`
	ErrorCount   int       `json:"error_count"`
	Successes    []Entry   `json:"successes"`
	Skips        []Entry   `json:"skips"`
	Errors       []Entry   `json:"errors"`
	Warnings     []string  `json:"warnings,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// NewReport returns an empty report for kind and source.
func NewReport(kind, source string) *Report {
	return &Report{
		Kind:      kind,
		Source:    source,
		Successes: []Entry{},
		Skips:     []Entry{},
		Errors:    []Entry{},
		StartedAt: time.Now(),
	}
}

// Record adds one outcome.
func (r *Report) Record(o Outcome) {
	r.TotalRows++
	switch o.Status {
	case Committed:
		r.SuccessCount++
		r.Successes = append(r.Successes, Entry{Row: o.Row, Message: o.Message})
	case Skipped:
		r.SkipCount++
		r.Skips = append(r.Skips, Entry{Row: o.Row, Message: o.Message})
	default:
		r.ErrorCount++
		r.Errors = append(r.Errors, Entry{Row: o.Row, Message: o.Message, Kind: o.Kind().String()})
	}
}

// HasErrors reports whether any row failed.
func (r *Report) HasErrors() bool {
	return r.ErrorCount > 0
}

// Duration is the wall time of the run, zero while it is in progress.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ErrorPreview returns at most limit error lines, followed by
// "... and K more errors" when the list was cut. A limit of zero or less
// returns every line.
func (r *Report) ErrorPreview(limit int) []string {
	return previewLines(r.Errors, limit)
}

func previewLines(entries []Entry, limit int) []string {
	shown := entries
	if limit > 0 && len(entries) > limit {
		shown = entries[:limit]
	}
	lines := make([]string, 0, len(shown)+1)
	for _, e := range shown {
		lines = append(lines, e.String())
	}
	if rest := len(entries) - len(shown); rest > 0 {
		lines = append(lines, fmt.Sprintf("... and %d more errors", rest))
	}
	return lines
}

func (e Entry) String() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Message)
}

// Summary renders the report for terminals and logs:
//
//	Import of projects from projetos.csv
//	Total rows: 12
//	  Imported: 9
//	  Skipped:  2
//	  Errors:   1
//
//	Errors:
//	  Row 7: required field 'Titulo' is empty
func (r *Report) Summary() string {
	return r.SummaryN(0)
}

// SummaryN is Summary with the error list cut as by ErrorPreview.
func (r *Report) SummaryN(limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Import of %s from %s\n", r.Kind, r.Source)
	writeCounts(&b, r.TotalRows, r.SuccessCount, r.SkipCount, r.ErrorCount)

	if len(r.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}
	writeErrors(&b, r.ErrorPreview(limit))
	return b.String()
}

func writeErrors(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString("\nErrors:\n")
	for _, l := range lines {
		fmt.Fprintf(b, "  %s\n", l)
	}
}

func writeCounts(b *strings.Builder, total, ok, skipped, failed int) {
	fmt.Fprintf(b, "Total rows: %d\n", total)
	fmt.Fprintf(b, "  Imported: %d\n", ok)
	fmt.Fprintf(b, "  Skipped:  %d\n", skipped)
	fmt.Fprintf(b, "  Errors:   %d\n", failed)
}
