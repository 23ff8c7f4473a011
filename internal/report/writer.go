package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/netclass"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Writer defines the interface for report output.
// Implementations write verification reports in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or both with
// the same API.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.VerificationReport) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.VerificationReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// Title converts an upper snake case report name such as
// "PRIVATE_CONFIRMED" into display form ("Private Confirmed").
func Title(name string) string {
	return cases.Title(language.English).String(strings.ToLower(strings.ReplaceAll(name, "_", " ")))
}

// VerdictExplanation returns a one-sentence reading of a verdict.
func VerdictExplanation(v model.Verdict) string {
	switch v {
	case model.VerdictPrivateConfirmed:
		return "A VPN tunnel is established and the API traffic is routed through a private path."
	case model.VerdictPublicSuspected:
		return "No VPN tunnel was found and every piece of path evidence points at the public internet."
	default:
		return "The evidence is partial or contradictory; review the checklist below."
	}
}

// timeFormat is the timestamp layout used by the text and Markdown reports.
const timeFormat = "2006-01-02 15:04:05 MST"

// orDash returns s, or "-" when s is empty.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// addressClasses is the display order of the address breakdown.
var addressClasses = []netclass.Classification{
	netclass.GooglePrivateAccess,
	netclass.PrivateRFC1918,
	netclass.Public,
}

// addressBreakdown renders the resolved address counts per class, e.g.
// "2 Google Private Access, 1 Public". Classes without addresses are left
// out; the result is empty when nothing resolved.
func addressBreakdown(report *model.VerificationReport) string {
	counts := report.AddressCounts()
	var parts []string
	for _, c := range addressClasses {
		if n := counts[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, Title(c.String())))
		}
	}
	return strings.Join(parts, ", ")
}
