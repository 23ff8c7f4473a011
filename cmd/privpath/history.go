package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/privpath/internal/config"
	"github.com/nao1215/privpath/internal/database"
	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/report"
	"github.com/spf13/cobra"
)

// Constants for verdict direction between two runs.
const (
	directionWorsened  = "worsened"
	directionImproved  = "improved"
	directionUnchanged = "unchanged"
)

// historyDateFormat is the timestamp layout of the history listing.
const historyDateFormat = "2006-01-02 15:04:05"

// categories are the evidence categories in report order.
var categories = []string{"dns", "route", "hops", "vpn"}

// NewHistoryCmd creates the history command.
// This command lists and compares runs stored with "verify --save".
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved runs or compare the latest two",
		Long: `History shows the verification runs stored with "privpath verify --save".

With --compare it loads the latest two runs for the target host and shows:
- The verdict of each run and whether the path improved or worsened
- Category statuses (dns, route, hops, vpn) that changed
- DNS answers that appeared or disappeared

Two runs with the same evidence digest collected the same path evidence.

Examples:
  # List the latest runs for every target
  privpath history

  # List runs for one target
  privpath history -H aiplatform.googleapis.com -n 5

  # Compare the latest two runs of the default target
  privpath history --compare

  # Show the full stored report of one run
  privpath history --run 3f6c1e3a-1111-4222-8333-444455556666

  # Output as JSON
  privpath history --json`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("target", "H", "",
		"Only show runs for this target host (compare defaults to "+config.DefaultTargetHost+")")
	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().BoolP("compare", "C", false,
		"Compare the latest two runs of the target host")
	cmd.Flags().StringP("run", "r", "",
		"Show the stored report of this run ID")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	target, err := cmd.Flags().GetString("target")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	compare, err := cmd.Flags().GetBool("compare")
	if err != nil {
		return err
	}
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	if compare && runID != "" {
		return errors.New("--compare and --run cannot be used together")
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	// History is read-only; never create an empty database here.
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if runID != "" {
		return showRun(ctx, db, runID, jsonOutput, out)
	}
	if compare {
		if target == "" {
			target = config.DefaultTargetHost
		}
		return runComparison(ctx, db, target, jsonOutput, out)
	}
	return listHistory(ctx, db, target, limit, jsonOutput, out)
}

// historyEntry is the JSON form of a stored run.
type historyEntry struct {
	ID         int64                       `json:"id"`
	RunID      string                      `json:"run_id"`
	TargetHost string                      `json:"target_host"`
	Timestamp  time.Time                   `json:"timestamp"`
	Verdict    model.Verdict               `json:"verdict"`
	Statuses   map[string]model.PathStatus `json:"statuses"`
	Digest     string                      `json:"evidence_digest"`
}

// listHistory prints the stored runs, newest first.
func listHistory(ctx context.Context, db *database.HistoryDB, target string, limit int, jsonOutput bool, out io.Writer) error {
	runs, err := db.ListRuns(ctx, target, limit)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if jsonOutput {
		entries := make([]historyEntry, len(runs))
		for i, r := range runs {
			entries[i] = historyEntry{
				ID:         r.ID,
				RunID:      r.RunID,
				TargetHost: r.TargetHost,
				Timestamp:  runTime(r),
				Verdict:    r.Verdict,
				Statuses:   r.Statuses,
				Digest:     r.Digest,
			}
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	if len(runs) == 0 {
		if target != "" {
			return listTargets(ctx, db, target, out)
		}
		fmt.Fprintln(out, "No saved runs found in the database.")
		fmt.Fprintln(out, "\nUse 'privpath verify --save' to store a run.")
		return nil
	}

	fmt.Fprintf(out, "Saved runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-5s  %-19s  %-36s  %-17s  %s\n", "ID", "Date", "Target", "Verdict", "DNS/Route/Hops/VPN")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))

	for _, r := range runs {
		fmt.Fprintf(out, "  %-5d  %-19s  %-36s  %-17s  %s\n",
			r.ID,
			runTime(r).Format(historyDateFormat),
			r.TargetHost,
			r.Verdict,
			formatStatuses(r.Statuses),
		)
	}

	fmt.Fprintln(out, "\nUse 'privpath history --compare' to compare the latest two runs.")
	return nil
}

// listTargets points at the targets that do have runs when target has none.
func listTargets(ctx context.Context, db *database.HistoryDB, target string, out io.Writer) error {
	targets, err := db.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}

	fmt.Fprintf(out, "No saved runs found for %s.\n", target)
	if len(targets) == 0 {
		fmt.Fprintln(out, "\nUse 'privpath verify --save' to store a run.")
		return nil
	}
	fmt.Fprintln(out, "\nTargets with saved runs:")
	for _, t := range targets {
		fmt.Fprintf(out, "  - %s\n", t)
	}
	return nil
}

// showRun renders the stored report of one run.
func showRun(ctx context.Context, db *database.HistoryDB, runID string, jsonOutput bool, out io.Writer) error {
	r, err := db.GetReport(ctx, runID)
	if err != nil {
		return err
	}

	var w report.Writer
	if jsonOutput {
		w = report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	} else {
		w = report.NewSimpleWriter(out, report.WithVerbose(true))
	}
	_, err = w.Write(r)
	return err
}

// runTime prefers the recorded start time over the insert timestamp.
func runTime(r database.RunSummary) time.Time {
	if !r.StartedAt.IsZero() {
		return r.StartedAt
	}
	return r.Timestamp
}

// formatStatuses renders the category statuses as "PR/PR/UN/PU".
func formatStatuses(statuses map[string]model.PathStatus) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = statuses[c].String()[:2]
	}
	return strings.Join(parts, "/")
}

// runComparison compares the latest two reports of target.
func runComparison(ctx context.Context, db *database.HistoryDB, target string, jsonOutput bool, out io.Writer) error {
	reports, err := db.LatestReports(ctx, target, 2)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(reports) == 0 {
		return fmt.Errorf("no saved runs found for %s", target)
	}
	if len(reports) < 2 {
		return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(reports))
	}

	// Reports are newest first.
	comparison := compareReports(reports[1], reports[0])

	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(comparison)
	}
	outputComparisonText(comparison, out)
	return nil
}

// ComparisonResult holds the result of comparing two runs.
type ComparisonResult struct {
	// TargetHost is the traced hostname.
	TargetHost string `json:"target_host"`

	// PreviousRun and CurrentRun describe the compared runs.
	PreviousRun RunSnapshot `json:"previous_run"`
	CurrentRun  RunSnapshot `json:"current_run"`

	// Direction is "improved", "worsened", or "unchanged".
	Direction string `json:"direction"`

	// SameEvidence is true when both evidence digests are equal.
	SameEvidence bool `json:"same_evidence"`

	// StatusChanges lists the categories whose status changed.
	StatusChanges []StatusChange `json:"status_changes,omitempty"`

	// AddedAddresses and RemovedAddresses are "hostname address" pairs
	// that appeared or disappeared in the DNS evidence.
	AddedAddresses   []string `json:"added_addresses,omitempty"`
	RemovedAddresses []string `json:"removed_addresses,omitempty"`
}

// RunSnapshot contains the metadata of one compared run.
type RunSnapshot struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Verdict   model.Verdict `json:"verdict"`
	Digest    string        `json:"evidence_digest"`
}

// StatusChange is a category whose status differs between two runs.
type StatusChange struct {
	Category string           `json:"category"`
	Previous model.PathStatus `json:"previous"`
	Current  model.PathStatus `json:"current"`
}

// compareReports compares two reports of the same target.
func compareReports(previous, current *model.VerificationReport) *ComparisonResult {
	result := &ComparisonResult{
		TargetHost:  current.TargetHost,
		PreviousRun: snapshot(previous),
		CurrentRun:  snapshot(current),
	}
	result.SameEvidence = result.PreviousRun.Digest == result.CurrentRun.Digest
	result.Direction = verdictDirection(previous.Verdict, current.Verdict)

	prevStatuses := reportStatuses(previous)
	currStatuses := reportStatuses(current)
	for _, c := range categories {
		if prevStatuses[c] != currStatuses[c] {
			result.StatusChanges = append(result.StatusChanges, StatusChange{
				Category: c,
				Previous: prevStatuses[c],
				Current:  currStatuses[c],
			})
		}
	}

	prevAddrs := dnsAnswers(previous)
	currAddrs := dnsAnswers(current)
	for key := range currAddrs {
		if !prevAddrs[key] {
			result.AddedAddresses = append(result.AddedAddresses, key)
		}
	}
	for key := range prevAddrs {
		if !currAddrs[key] {
			result.RemovedAddresses = append(result.RemovedAddresses, key)
		}
	}
	slices.Sort(result.AddedAddresses)
	slices.Sort(result.RemovedAddresses)

	return result
}

func snapshot(r *model.VerificationReport) RunSnapshot {
	return RunSnapshot{
		RunID:     r.Meta.RunID,
		StartedAt: r.Meta.StartedAt,
		Verdict:   r.Verdict,
		Digest:    r.EvidenceDigest(),
	}
}

// reportStatuses returns the status of each category.
func reportStatuses(r *model.VerificationReport) map[string]model.PathStatus {
	return map[string]model.PathStatus{
		"dns":   r.DNSStatus(),
		"route": r.Route.Verdict,
		"hops":  r.Hops.Status(),
		"vpn":   r.VPN.Status(),
	}
}

// dnsAnswers returns the set of "hostname address" pairs of a report.
func dnsAnswers(r *model.VerificationReport) map[string]bool {
	answers := make(map[string]bool)
	for _, h := range r.DNS {
		for _, addr := range h.Addresses {
			answers[h.Hostname+" "+addr] = true
		}
	}
	return answers
}

// verdictRank orders verdicts from least to most private.
func verdictRank(v model.Verdict) int {
	switch v {
	case model.VerdictPublicSuspected:
		return 0
	case model.VerdictPrivateConfirmed:
		return 2
	default:
		return 1
	}
}

// verdictDirection tells whether the path became more or less private.
func verdictDirection(previous, current model.Verdict) string {
	prev, curr := verdictRank(previous), verdictRank(current)
	switch {
	case curr > prev:
		return directionImproved
	case curr < prev:
		return directionWorsened
	default:
		return directionUnchanged
	}
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(result *ComparisonResult, out io.Writer) {
	fmt.Fprintf(out, "Run Comparison: %s\n", result.TargetHost)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPath Status: %s\n", formatDirection(result.Direction))

	fmt.Fprintf(out, "\nPrevious run: %s  %s  %s\n",
		result.PreviousRun.StartedAt.Format(historyDateFormat),
		result.PreviousRun.Verdict,
		shortDigest(result.PreviousRun.Digest))
	fmt.Fprintf(out, "Current run:  %s  %s  %s\n",
		result.CurrentRun.StartedAt.Format(historyDateFormat),
		result.CurrentRun.Verdict,
		shortDigest(result.CurrentRun.Digest))

	if result.SameEvidence {
		fmt.Fprintln(out, "\nEvidence unchanged: both runs observed the same path.")
		return
	}

	if len(result.StatusChanges) > 0 {
		fmt.Fprintln(out, "\nStatus Changes:")
		fmt.Fprintf(out, "  %-10s  %-10s  %-10s\n", "Category", "Previous", "Current")
		fmt.Fprintln(out, "  "+strings.Repeat("-", 34))
		for _, c := range result.StatusChanges {
			fmt.Fprintf(out, "  %-10s  %-10s  %-10s\n", c.Category, c.Previous, c.Current)
		}
	}

	if len(result.AddedAddresses) > 0 {
		fmt.Fprintf(out, "\nNew DNS Answers (%d):\n", len(result.AddedAddresses))
		for _, a := range result.AddedAddresses {
			fmt.Fprintf(out, "  [+] %s\n", a)
		}
	}

	if len(result.RemovedAddresses) > 0 {
		fmt.Fprintf(out, "\nRemoved DNS Answers (%d):\n", len(result.RemovedAddresses))
		for _, a := range result.RemovedAddresses {
			fmt.Fprintf(out, "  [-] %s\n", a)
		}
	}
}

// formatDirection formats the verdict direction for display.
func formatDirection(direction string) string {
	switch direction {
	case directionImproved:
		return "IMPROVED (more private)"
	case directionWorsened:
		return "WORSENED (less private)"
	default:
		return "UNCHANGED"
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
