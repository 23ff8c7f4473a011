package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/privpath/internal/model"
)

// ruleWidth is the width of the section rules in the text report.
const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to show are printed.
	showEmpty bool

	// verbose adds raw command output and probe details.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.VerificationReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeVerdict(&sb, report)
	w.writeDNS(&sb, report)
	w.writeRoute(&sb, report)
	w.writeHops(&sb, report)
	w.writeVPN(&sb, report)
	w.writeObservations(&sb, report)
	w.writeRemediation(&sb, report)
	w.writeStepErrors(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.VerificationReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                 PRIVATE PATH VERIFICATION REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Target Host:  %s\n", report.TargetHost)
	if !report.Meta.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Run Date:     %s\n", report.Meta.StartedAt.Format(timeFormat))
	}
	if report.Meta.ProjectID != "" {
		fmt.Fprintf(sb, "Project:      %s\n", report.Meta.ProjectID)
	}
	if report.Meta.Region != "" {
		fmt.Fprintf(sb, "Region:       %s\n", report.Meta.Region)
	}
	if report.Meta.Host != "" {
		fmt.Fprintf(sb, "Checked From: %s\n", report.Meta.Host)
	}
	if w.verbose && report.Meta.RunID != "" {
		fmt.Fprintf(sb, "Run ID:       %s\n", report.Meta.RunID)
	}
	if report.Cancelled {
		sb.WriteString("Status:       CANCELLED (partial evidence)\n")
	}
	sb.WriteString("\n")
}

// writeVerdict writes the verdict and the per-category statuses.
func (w *SimpleWriter) writeVerdict(sb *strings.Builder, report *model.VerificationReport) {
	section(sb, "VERDICT")

	fmt.Fprintf(sb, "  %s\n", report.Verdict)
	fmt.Fprintf(sb, "  %s\n\n", VerdictExplanation(report.Verdict))

	fmt.Fprintf(sb, "  DNS:    %s\n", report.DNSStatus())
	fmt.Fprintf(sb, "  Route:  %s\n", report.Route.Verdict)
	fmt.Fprintf(sb, "  Hops:   %s\n", report.Hops.Status())
	fmt.Fprintf(sb, "  VPN:    %s\n", report.VPN.Status())
	sb.WriteString("\n")
}

// writeDNS writes one block per configured hostname.
func (w *SimpleWriter) writeDNS(sb *strings.Builder, report *model.VerificationReport) {
	section(sb, "DNS RESOLUTION")

	if len(report.DNS) == 0 {
		sb.WriteString("  No hostnames resolved\n\n")
		return
	}

	for _, h := range report.DNS {
		fmt.Fprintf(sb, "  [%s] %s\n", h.Status(), h.Hostname)
		if h.QueriedName != "" && h.QueriedName != h.Hostname {
			fmt.Fprintf(sb, "    Queried: %s\n", h.QueriedName)
		}
		if h.Error != "" {
			fmt.Fprintf(sb, "    Error: %s\n", h.Error)
		}
		for i, addr := range h.Addresses {
			fmt.Fprintf(sb, "    %-40s %s\n", addr, h.Classifications[i])
		}
		for _, bad := range h.InvalidAddresses {
			fmt.Fprintf(sb, "    %-40s INVALID\n", bad)
		}
	}
	if breakdown := addressBreakdown(report); breakdown != "" {
		fmt.Fprintf(sb, "\n  Addresses: %s\n", breakdown)
	}
	sb.WriteString("\n")
}

// writeRoute writes the route evidence.
func (w *SimpleWriter) writeRoute(sb *strings.Builder, report *model.VerificationReport) {
	section(sb, "ROUTE")

	r := report.Route
	fmt.Fprintf(sb, "  Target IP:  %s\n", orDash(r.TargetIP))
	fmt.Fprintf(sb, "  Interface:  %s\n", orDash(r.Interface))
	fmt.Fprintf(sb, "  Gateway:    %s\n", orDash(r.Gateway))
	fmt.Fprintf(sb, "  Tunnel:     %t\n", r.UsesTunnelInterface)
	fmt.Fprintf(sb, "  Private GW: %t\n", r.UsesPrivateGateway)
	fmt.Fprintf(sb, "  Status:     %s\n", r.Verdict)
	if r.Error != "" {
		fmt.Fprintf(sb, "  Error:      %s\n", r.Error)
	}
	if w.verbose && r.RawRouteText != "" {
		fmt.Fprintf(sb, "  Raw:        %s\n", strings.TrimSpace(r.RawRouteText))
	}
	sb.WriteString("\n")
}

// writeHops writes the traceroute hops and the privacy ratio.
func (w *SimpleWriter) writeHops(sb *strings.Builder, report *model.VerificationReport) {
	section(sb, "TRACEROUTE")

	h := report.Hops
	if h.Error != "" {
		fmt.Fprintf(sb, "  Error: %s\n", h.Error)
	}
	if h.TimedOut {
		sb.WriteString("  Trace timed out (partial hops)\n")
	}
	if len(h.Hops) == 0 {
		sb.WriteString("  No responding hops\n\n")
		return
	}

	for _, hop := range h.Hops {
		marker := " "
		if hop.IsPrivate {
			marker = "*"
		}
		line := fmt.Sprintf("  %s %2d  %-40s %s", marker, hop.Number, hop.IP, hop.Classification)
		if hop.ASN != 0 {
			line += fmt.Sprintf("  AS%d %s", hop.ASN, hop.ASNOrg)
		}
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "\n  Private hops: %d of %d (ratio %.2f)\n\n",
		h.PrivateHopCount(), h.TotalHopCount(), h.PrivacyRatio())
}

// writeVPN writes the tunnel state and, in verbose mode, every probe.
func (w *SimpleWriter) writeVPN(sb *strings.Builder, report *model.VerificationReport) {
	section(sb, "VPN")

	v := report.VPN
	if v.Established {
		fmt.Fprintf(sb, "  Established: %s\n", v.Mechanism)
	} else {
		sb.WriteString("  No established tunnel\n")
	}

	if !w.verbose {
		sb.WriteString("\n")
		return
	}
	for _, p := range v.Probes {
		state := "not detected"
		switch {
		case p.Established:
			state = "established"
		case p.Detected:
			state = "detected, not established"
		}
		fmt.Fprintf(sb, "    %-10s %-28s %s\n", p.Mechanism, p.Command, state)
		if p.Error != "" {
			fmt.Fprintf(sb, "               %s\n", p.Error)
		}
	}
	sb.WriteString("\n")
}

// writeObservations writes the advisory supplemental evidence.
func (w *SimpleWriter) writeObservations(sb *strings.Builder, report *model.VerificationReport) {
	if len(report.Observations) == 0 && !w.showEmpty {
		return
	}

	section(sb, "OBSERVATIONS (advisory)")

	if len(report.Observations) == 0 {
		sb.WriteString("  No observations\n\n")
		return
	}
	for _, o := range report.Observations {
		fmt.Fprintf(sb, "  [%s] %s: %s\n", o.Status, o.Source, o.Summary)
		if w.verbose {
			for _, d := range o.Details {
				fmt.Fprintf(sb, "    %s\n", d)
			}
		}
	}
	sb.WriteString("\n")
}

// writeRemediation writes the checklist for non-confirmed verdicts.
func (w *SimpleWriter) writeRemediation(sb *strings.Builder, report *model.VerificationReport) {
	if !report.HasRemediation() && !w.showEmpty {
		return
	}

	section(sb, "REMEDIATION CHECKLIST")

	if !report.HasRemediation() {
		sb.WriteString("  Nothing to do\n\n")
		return
	}
	for _, r := range report.Remediation {
		fmt.Fprintf(sb, "  [ ] (%s) %s\n", r.Category, r.Title)
		if r.Detail != "" {
			fmt.Fprintf(sb, "      Evidence: %s\n", r.Detail)
		}
		fmt.Fprintf(sb, "      Action:   %s\n", r.Action)
		if w.verbose && r.Impact != "" {
			fmt.Fprintf(sb, "      Impact:   %s\n", r.Impact)
		}
	}
	sb.WriteString("\n")
}

// writeStepErrors lists pipeline steps that failed without aborting the run.
func (w *SimpleWriter) writeStepErrors(sb *strings.Builder, report *model.VerificationReport) {
	if len(report.StepErrors) == 0 {
		return
	}

	section(sb, "STEP ERRORS")
	for _, e := range report.StepErrors {
		fmt.Fprintf(sb, "  ! %s\n", e)
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by privpath\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}
