// Package database provides SQLite-based run history for privpath.
//
// The HistoryDB stores one row per verification run saved with --save:
// the verdict, the per-category statuses and the evidence digest as
// columns, plus the full report as JSON. "privpath history" reads it to
// list past runs and to compare the latest two.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
