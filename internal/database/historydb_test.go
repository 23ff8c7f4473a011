package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/netclass"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// testReport builds a minimal report for the given run.
func testReport(runID, target string, verdict model.Verdict, addr string) *model.VerificationReport {
	class, _ := netclass.Classify(addr) //nolint:errcheck // fixtures are valid literals
	return &model.VerificationReport{
		Meta: model.RunMeta{
			RunID:     runID,
			StartedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
			ProjectID: "prod-123",
		},
		TargetHost: target,
		DNS: []model.HostnameEvidence{{
			Hostname:        target,
			QueriedName:     target,
			Addresses:       []string{addr},
			Classifications: []netclass.Classification{class},
		}},
		Route:   model.RouteEvidence{TargetIP: addr, Interface: "tun0", UsesTunnelInterface: true, Verdict: model.PathPrivate},
		VPN:     model.VPNStatus{Mechanism: model.VPNIPsec, Established: true},
		Verdict: verdict,
	}
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected informative error, got %q", err.Error())
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		ctx := context.Background()
		if _, err := db1.SaveReport(ctx, testReport("run-1", "aiplatform.googleapis.com", model.VerdictPrivateConfirmed, "199.36.153.8")); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		if _, err := db2.GetReport(ctx, "run-1"); err != nil {
			t.Errorf("expected report to persist: %v", err)
		}
	})
}

// TestDefaultOptions tests the default options values.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true by default")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true by default")
	}
}

func TestSaveReport(t *testing.T) {
	t.Parallel()

	t.Run("round trips a report", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		original := testReport("run-1", "aiplatform.googleapis.com", model.VerdictPrivateConfirmed, "199.36.153.8")

		id, err := db.SaveReport(ctx, original)
		if err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if id <= 0 {
			t.Errorf("expected positive row ID, got %d", id)
		}

		got, err := db.GetReport(ctx, "run-1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.Verdict != model.VerdictPrivateConfirmed {
			t.Errorf("expected PRIVATE_CONFIRMED, got %v", got.Verdict)
		}
		if got.DNS[0].Classifications[0] != netclass.GooglePrivateAccess {
			t.Errorf("expected classification to survive, got %v", got.DNS[0].Classifications[0])
		}
		if got.EvidenceDigest() != original.EvidenceDigest() {
			t.Error("expected identical digest after round trip")
		}
		if !got.Meta.StartedAt.Equal(original.Meta.StartedAt) {
			t.Errorf("expected StartedAt %v, got %v", original.Meta.StartedAt, got.Meta.StartedAt)
		}
	})

	t.Run("rejects report without run ID", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		_, err := db.SaveReport(context.Background(), testReport("", "aiplatform.googleapis.com", model.VerdictIndeterminate, "10.0.0.1"))
		if !errors.Is(err, ErrMissingRunID) {
			t.Errorf("expected ErrMissingRunID, got %v", err)
		}
	})

	t.Run("rejects duplicate run ID", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		r := testReport("dup", "aiplatform.googleapis.com", model.VerdictIndeterminate, "10.0.0.1")
		if _, err := db.SaveReport(ctx, r); err != nil {
			t.Fatalf("first save failed: %v", err)
		}
		if _, err := db.SaveReport(ctx, r); err == nil {
			t.Error("expected second save of the same run to fail")
		}
	})
}

func TestGetReportNotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	_, err := db.GetReport(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	reports := []*model.VerificationReport{
		testReport("run-1", "aiplatform.googleapis.com", model.VerdictPublicSuspected, "142.250.72.10"),
		testReport("run-2", "generativelanguage.googleapis.com", model.VerdictIndeterminate, "10.0.0.1"),
		testReport("run-3", "aiplatform.googleapis.com", model.VerdictPrivateConfirmed, "199.36.153.8"),
	}
	for _, r := range reports {
		if _, err := db.SaveReport(ctx, r); err != nil {
			t.Fatalf("failed to save %s: %v", r.Meta.RunID, err)
		}
	}

	t.Run("lists newest first", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(ctx, "", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		if runs[0].RunID != "run-3" || runs[2].RunID != "run-1" {
			t.Errorf("expected newest first, got %s..%s", runs[0].RunID, runs[2].RunID)
		}
	})

	t.Run("filters by target and limits", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(ctx, "aiplatform.googleapis.com", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != 1 || runs[0].RunID != "run-3" {
			t.Fatalf("expected only run-3, got %+v", runs)
		}
	})

	t.Run("decodes summary columns", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(ctx, "aiplatform.googleapis.com", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		latest := runs[0]
		if latest.Verdict != model.VerdictPrivateConfirmed {
			t.Errorf("expected PRIVATE_CONFIRMED, got %v", latest.Verdict)
		}
		if latest.Statuses["route"] != model.PathPrivate {
			t.Errorf("expected route PRIVATE, got %v", latest.Statuses["route"])
		}
		if latest.Statuses["dns"] != model.PathPrivate {
			t.Errorf("expected dns PRIVATE, got %v", latest.Statuses["dns"])
		}
		if latest.Digest != reports[2].EvidenceDigest() {
			t.Error("expected stored digest to match")
		}
		if !latest.StartedAt.Equal(reports[2].Meta.StartedAt) {
			t.Errorf("expected StartedAt %v, got %v", reports[2].Meta.StartedAt, latest.StartedAt)
		}
		if latest.Timestamp.IsZero() {
			t.Error("expected stored timestamp")
		}
	})

	t.Run("latest reports", func(t *testing.T) {
		t.Parallel()

		got, err := db.LatestReports(ctx, "aiplatform.googleapis.com", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 reports, got %d", len(got))
		}
		if got[0].Meta.RunID != "run-3" || got[1].Meta.RunID != "run-1" {
			t.Errorf("expected run-3 then run-1, got %s, %s", got[0].Meta.RunID, got[1].Meta.RunID)
		}
	})

	t.Run("lists targets", func(t *testing.T) {
		t.Parallel()

		targets, err := db.ListTargets(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"aiplatform.googleapis.com", "generativelanguage.googleapis.com"}
		if len(targets) != len(want) || targets[0] != want[0] || targets[1] != want[1] {
			t.Errorf("ListTargets() = %v, want %v", targets, want)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-10-01 09:00:00", time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)},
		{"2026-10-01T09:00:00Z", time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)},
		{"2026-10-01T09:00:00.5Z", time.Date(2026, 10, 1, 9, 0, 0, 500000000, time.UTC)},
		{"not a time", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
