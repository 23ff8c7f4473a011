package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/privpath/internal/model"
)

// FileName is the name of the history database inside the data directory.
const FileName = "privpath.db"

var (
	// ErrMissingRunID is returned when a report without a run ID is saved.
	ErrMissingRunID = errors.New("report has no run ID")

	// ErrRunNotFound is returned when no run matches the requested ID.
	ErrRunNotFound = errors.New("run not found")
)

// HistoryDB provides SQLite-based storage for verification reports.
// Each run is stored once with its verdict, per-category statuses and
// evidence digest as columns, and the full report as JSON.
//
// Design decision: We keep the indexed summary columns next to the JSON
// blob so that listing history never needs to decode reports.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run verify with --save first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite: mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	-- One row per verification run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		target_host TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at TEXT,
		verdict TEXT NOT NULL,
		dns_status TEXT NOT NULL,
		route_status TEXT NOT NULL,
		hops_status TEXT NOT NULL,
		vpn_status TEXT NOT NULL,
		digest TEXT NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target_host);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_digest ON runs(digest);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveReport stores a verification report and returns its row ID.
// The report must carry a run ID; saving the same run twice fails.
func (hdb *HistoryDB) SaveReport(ctx context.Context, report *model.VerificationReport) (int64, error) {
	if report.Meta.RunID == "" {
		return 0, ErrMissingRunID
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	var startedAt string
	if !report.Meta.StartedAt.IsZero() {
		startedAt = report.Meta.StartedAt.UTC().Format(time.RFC3339Nano)
	}

	query := `
	INSERT INTO runs (run_id, target_host, started_at, verdict, dns_status, route_status, hops_status, vpn_status, digest, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := hdb.db.ExecContext(ctx, query,
		report.Meta.RunID,
		report.TargetHost,
		startedAt,
		report.Verdict.String(),
		report.DNSStatus().String(),
		report.Route.Verdict.String(),
		report.Hops.Status().String(),
		report.VPN.Status().String(),
		report.EvidenceDigest(),
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save report: %w", err)
	}

	return result.LastInsertId()
}

// RunSummary contains summary information about a stored run.
// This is used for displaying history without loading the full report.
type RunSummary struct {
	// ID is the row ID of the run in the database.
	ID int64

	// RunID is the UUID assigned when the run started.
	RunID string

	// TargetHost is the traced hostname.
	TargetHost string

	// Timestamp is when the run was stored.
	Timestamp time.Time

	// StartedAt is when the run began, if recorded.
	StartedAt time.Time

	Verdict model.Verdict

	// Statuses maps "dns", "route", "hops" and "vpn" to their status.
	Statuses map[string]model.PathStatus

	// Digest is the evidence digest of the report.
	Digest string
}

// ListRuns returns stored runs, newest first. An empty targetHost lists
// every target; a limit of zero or less returns all runs.
func (hdb *HistoryDB) ListRuns(ctx context.Context, targetHost string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, run_id, target_host, timestamp, started_at, verdict,
	       dns_status, route_status, hops_status, vpn_status, digest
	FROM runs
	WHERE (? = '' OR target_host = ?)
	ORDER BY id DESC
	LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := hdb.db.QueryContext(ctx, query, targetHost, targetHost, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var s RunSummary
		var timestamp, verdict string
		var startedAt sql.NullString
		var dnsS, routeS, hopsS, vpnS string
		if err := rows.Scan(&s.ID, &s.RunID, &s.TargetHost, &timestamp, &startedAt, &verdict,
			&dnsS, &routeS, &hopsS, &vpnS, &s.Digest); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		s.Timestamp = parseTimestamp(timestamp)
		if startedAt.Valid {
			s.StartedAt = parseTimestamp(startedAt.String)
		}
		s.Verdict = parseVerdict(verdict)
		s.Statuses = map[string]model.PathStatus{
			"dns":   parseStatus(dnsS),
			"route": parseStatus(routeS),
			"hops":  parseStatus(hopsS),
			"vpn":   parseStatus(vpnS),
		}

		results = append(results, s)
	}

	return results, rows.Err()
}

// parseVerdict and parseStatus map unknown text to the zero value
// (Indeterminate and Unknown).
func parseVerdict(s string) model.Verdict {
	var v model.Verdict
	_ = v.UnmarshalText([]byte(s)) //nolint:errcheck // zero value on error
	return v
}

func parseStatus(s string) model.PathStatus {
	var st model.PathStatus
	_ = st.UnmarshalText([]byte(s)) //nolint:errcheck // zero value on error
	return st
}

// LatestReports returns up to n full reports for a target, newest first.
func (hdb *HistoryDB) LatestReports(ctx context.Context, targetHost string, n int) ([]*model.VerificationReport, error) {
	query := `
	SELECT report_json FROM runs
	WHERE (? = '' OR target_host = ?)
	ORDER BY id DESC
	LIMIT ?
	`
	if n <= 0 {
		n = -1
	}

	rows, err := hdb.db.QueryContext(ctx, query, targetHost, targetHost, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get reports: %w", err)
	}
	defer rows.Close()

	var reports []*model.VerificationReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		var report model.VerificationReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue // Skip malformed reports
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// GetReport retrieves a report by its run ID.
// It returns ErrRunNotFound when no run matches.
func (hdb *HistoryDB) GetReport(ctx context.Context, runID string) (*model.VerificationReport, error) {
	query := `
	SELECT report_json FROM runs
	WHERE run_id = ?
	`

	var reportJSON string
	err := hdb.db.QueryRowContext(ctx, query, runID).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.VerificationReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ListTargets returns every target host with stored runs.
func (hdb *HistoryDB) ListTargets(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT target_host FROM runs
	ORDER BY target_host
	`

	rows, err := hdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}

	return targets, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
