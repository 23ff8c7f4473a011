package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/privpath/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for pasting into tickets and change reviews.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.VerificationReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeVerdict(md, report)
	w.writeDNS(md, report)
	w.writeRoute(md, report)
	w.writeHops(md, report)
	w.writeVPN(md, report)
	w.writeObservations(md, report)
	w.writeRemediation(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.VerificationReport) {
	md.H1("Private Path Verification Report")
	md.PlainText("")

	rows := [][]string{
		{"Target Host", "`" + report.TargetHost + "`"},
	}
	if !report.Meta.StartedAt.IsZero() {
		rows = append(rows, []string{"Run Date", report.Meta.StartedAt.Format(timeFormat)})
	}
	if report.Meta.ProjectID != "" {
		rows = append(rows, []string{"Project", report.Meta.ProjectID})
	}
	if report.Meta.Region != "" {
		rows = append(rows, []string{"Region", report.Meta.Region})
	}
	if report.Meta.Host != "" {
		rows = append(rows, []string{"Checked From", report.Meta.Host})
	}
	if report.Meta.RunID != "" {
		rows = append(rows, []string{"Run ID", "`" + report.Meta.RunID + "`"})
	}
	rows = append(rows, []string{"Evidence Digest", "`" + report.EvidenceDigest()[:16] + "`"})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeVerdict writes the verdict alert and the category summary table.
func (w *MarkdownWriter) writeVerdict(md *markdown.Markdown, report *model.VerificationReport) {
	md.H2("Verdict: " + Title(report.Verdict.String()))
	md.PlainText("")

	explanation := VerdictExplanation(report.Verdict)
	switch report.Verdict {
	case model.VerdictPrivateConfirmed:
		md.Tip(explanation)
	case model.VerdictPublicSuspected:
		md.Cautionf("%s", explanation)
	default:
		md.Warningf("%s", explanation)
	}
	md.PlainText("")

	if report.Cancelled {
		md.Importantf("The run was cancelled; the evidence below is partial.")
		md.PlainText("")
	}

	md.Table(markdown.TableSet{
		Header: []string{"Category", "Status"},
		Rows: [][]string{
			{"DNS", statusBadge(report.DNSStatus())},
			{"Route", statusBadge(report.Route.Verdict)},
			{"Hops", statusBadge(report.Hops.Status())},
			{"VPN", statusBadge(report.VPN.Status())},
		},
	})
	md.PlainText("")
}

// statusBadge returns the status with a visual indicator.
func statusBadge(s model.PathStatus) string {
	switch s {
	case model.PathPrivate:
		return "🟢 " + Title(s.String())
	case model.PathPublic:
		return "🔴 " + Title(s.String())
	default:
		return "⚪ " + Title(s.String())
	}
}

// writeDNS writes one table row per resolved address.
func (w *MarkdownWriter) writeDNS(md *markdown.Markdown, report *model.VerificationReport) {
	md.H2("DNS Resolution")
	md.PlainText("")

	if len(report.DNS) == 0 {
		md.PlainText("No hostnames resolved.")
		md.PlainText("")
		return
	}

	var rows [][]string
	for _, h := range report.DNS {
		name := "`" + h.Hostname + "`"
		if h.Error != "" {
			rows = append(rows, []string{name, "-", "❌ " + truncateString(h.Error, 60)})
			continue
		}
		for i, addr := range h.Addresses {
			rows = append(rows, []string{name, addr, Title(h.Classifications[i].String())})
		}
		for _, bad := range h.InvalidAddresses {
			rows = append(rows, []string{name, truncateString(bad, 40), "Invalid"})
		}
		if len(h.Addresses) == 0 && len(h.InvalidAddresses) == 0 {
			rows = append(rows, []string{name, "-", "No answer"})
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Hostname", "Address", "Classification"},
		Rows:   rows,
	})
	md.PlainText("")
	if breakdown := addressBreakdown(report); breakdown != "" {
		md.PlainTextf("**Addresses:** %s", breakdown)
		md.PlainText("")
	}
}

// writeRoute writes the route evidence and the raw route text.
func (w *MarkdownWriter) writeRoute(md *markdown.Markdown, report *model.VerificationReport) {
	md.H2("Route")
	md.PlainText("")

	r := report.Route
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target IP", orDash(r.TargetIP)},
			{"Interface", orDash(r.Interface)},
			{"Gateway", orDash(r.Gateway)},
			{"Tunnel Interface", yesNo(r.UsesTunnelInterface)},
			{"Private Gateway", yesNo(r.UsesPrivateGateway)},
			{"Status", statusBadge(r.Verdict)},
		},
	})
	md.PlainText("")

	if r.Error != "" {
		md.Warningf("Route check failed: %s", r.Error)
		md.PlainText("")
	}
	if r.RawRouteText != "" {
		md.CodeBlocks(markdown.SyntaxHighlightText, strings.TrimSpace(r.RawRouteText))
		md.PlainText("")
	}
}

// writeHops writes the hop table and the private/public pie chart.
func (w *MarkdownWriter) writeHops(md *markdown.Markdown, report *model.VerificationReport) {
	md.H2("Traceroute")
	md.PlainText("")

	h := report.Hops
	if h.Error != "" {
		md.Warningf("Traceroute failed: %s", h.Error)
		md.PlainText("")
	}
	if h.TimedOut {
		md.Note("The trace timed out; the hops below are partial.")
		md.PlainText("")
	}
	if len(h.Hops) == 0 {
		md.PlainText("No responding hops.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(h.Hops))
	for i, hop := range h.Hops {
		asn := "-"
		if hop.ASN != 0 {
			asn = fmt.Sprintf("AS%d %s", hop.ASN, hop.ASNOrg)
		}
		rows[i] = []string{
			strconv.Itoa(hop.Number),
			hop.IP,
			Title(hop.Classification.String()),
			yesNo(hop.IsPrivate),
			truncateString(asn, 40),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Hop", "Address", "Classification", "Private", "ASN"},
		Rows:   rows,
	})
	md.PlainText("")

	md.PlainTextf("**Private hops:** %d of %d (ratio %.2f)",
		h.PrivateHopCount(), h.TotalHopCount(), h.PrivacyRatio())
	md.PlainText("")

	w.writeHopChart(md, h)
}

// writeHopChart writes a mermaid pie chart of private versus public hops.
func (w *MarkdownWriter) writeHopChart(md *markdown.Markdown, h model.HopEvidence) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Hop Classification"),
		piechart.WithShowData(true),
	)

	private := h.PrivateHopCount()
	public := h.TotalHopCount() - private
	if private > 0 {
		chart.LabelAndIntValue("Private", uint64(private))
	}
	if public > 0 {
		chart.LabelAndIntValue("Public", uint64(public))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeVPN writes the tunnel probes.
func (w *MarkdownWriter) writeVPN(md *markdown.Markdown, report *model.VerificationReport) {
	md.H2("VPN")
	md.PlainText("")

	v := report.VPN
	if v.Established {
		md.PlainTextf("Established tunnel: **%s**", Title(v.Mechanism.String()))
	} else {
		md.PlainText("No established tunnel.")
	}
	md.PlainText("")

	if len(v.Probes) == 0 {
		return
	}

	rows := make([][]string, len(v.Probes))
	for i, p := range v.Probes {
		rows[i] = []string{
			Title(p.Mechanism.String()),
			"`" + p.Command + "`",
			yesNo(p.Detected),
			yesNo(p.Established),
			orDash(truncateString(p.Error, 50)),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Mechanism", "Command", "Detected", "Established", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeObservations writes the advisory supplemental evidence.
func (w *MarkdownWriter) writeObservations(md *markdown.Markdown, report *model.VerificationReport) {
	if len(report.Observations) == 0 {
		return
	}

	md.H2("Observations")
	md.PlainText("")
	md.Note("Observations are advisory and do not change the verdict.")
	md.PlainText("")

	rows := make([][]string, len(report.Observations))
	for i, o := range report.Observations {
		rows[i] = []string{o.Source, statusBadge(o.Status), o.Summary}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Source", "Status", "Summary"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, o := range report.Observations {
		if len(o.Details) > 0 {
			md.Details(o.Source, strings.Join(o.Details, "\n"))
		}
	}
	md.PlainText("")
}

// writeRemediation writes the checklist and any step errors.
func (w *MarkdownWriter) writeRemediation(md *markdown.Markdown, report *model.VerificationReport) {
	if report.HasRemediation() {
		md.H2("Remediation Checklist")
		md.PlainText("")

		items := make([]string, len(report.Remediation))
		for i, r := range report.Remediation {
			item := fmt.Sprintf("[ ] **%s** (%s): %s", r.Title, r.Category, r.Action)
			if r.Detail != "" {
				item += " Evidence: " + r.Detail + "."
			}
			items[i] = item
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(report.StepErrors) > 0 {
		md.H2("Step Errors")
		md.PlainText("")
		md.BulletList(report.StepErrors...)
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by privpath*")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
