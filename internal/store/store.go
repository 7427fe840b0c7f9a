// Package store persists optimization runs and their per-iteration records
// in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/copyleftdev/STRUT/internal/optimization"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    study           TEXT NOT NULL,
    max_iterations  INTEGER NOT NULL,
    max_area        REAL NOT NULL,
    tolerance       REAL NOT NULL,
    status          TEXT NOT NULL DEFAULT 'running',
    converged       INTEGER NOT NULL DEFAULT 0,
    iterations      INTEGER NOT NULL DEFAULT 0,
    objective       REAL,
    area_fraction   REAL,
    elapsed         REAL,
    started_at      TEXT NOT NULL,
    finished_at     TEXT
);
`

const iterationsSchema = `
CREATE TABLE IF NOT EXISTS run_iterations (
    run_id          TEXT NOT NULL REFERENCES runs(id),
    iteration       INTEGER NOT NULL,
    objective       REAL NOT NULL,
    max_stress      REAL NOT NULL,
    area_fraction   REAL NOT NULL,
    relative_change REAL NOT NULL,
    PRIMARY KEY (run_id, iteration)
);
`

// Store is the SQLite-backed run history. It implements optimization.Sink.
type Store struct {
	db    *sql.DB
	runID string
}

// Open connects to the SQLite database at dsn in WAL mode and ensures the
// schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enabling WAL: %w", err)
	}
	for _, schema := range []string{runsSchema, iterationsSchema} {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: creating schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Start implements optimization.Sink: a run row is created up front so
// partial histories of killed processes remain attributable.
func (s *Store) Start(info optimization.RunInfo) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, study, max_iterations, max_area, tolerance, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.Study, info.MaxIterations, info.MaxArea, info.Tolerance,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: inserting run: %w", err)
	}
	s.runID = info.ID
	return nil
}

// Record implements optimization.Sink.
func (s *Store) Record(rec optimization.IterationRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO run_iterations
		(run_id, iteration, objective, max_stress, area_fraction, relative_change)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.runID, rec.Iteration, rec.Objective, rec.MaxStress, rec.AreaFraction, rec.RelativeChange,
	)
	if err != nil {
		return fmt.Errorf("store: inserting iteration %d: %w", rec.Iteration, err)
	}
	return nil
}

// Snapshot implements optimization.Sink. Geometry snapshots live on disk,
// not in the store.
func (s *Store) Snapshot(iteration int) error { return nil }

// Finish implements optimization.Sink.
func (s *Store) Finish(summary optimization.RunSummary) error {
	converged := 0
	if summary.Converged {
		converged = 1
	}
	_, err := s.db.Exec(`
		UPDATE runs
		SET status = 'finished', converged = ?, iterations = ?,
		    objective = ?, area_fraction = ?, elapsed = ?, finished_at = ?
		WHERE id = ?`,
		converged, summary.Iterations, summary.Objective, summary.AreaFraction,
		summary.Elapsed, time.Now().UTC().Format(time.RFC3339), s.runID,
	)
	if err != nil {
		return fmt.Errorf("store: finalizing run: %w", err)
	}
	return nil
}

// Run returns the stored run metadata and summary for id.
func (s *Store) Run(id string) (optimization.RunInfo, optimization.RunSummary, error) {
	var info optimization.RunInfo
	var sum optimization.RunSummary
	var converged int
	var objective, areaFraction, elapsed sql.NullFloat64

	err := s.db.QueryRow(`
		SELECT id, study, max_iterations, max_area, tolerance,
		       converged, iterations, objective, area_fraction, elapsed
		FROM runs WHERE id = ?`, id).
		Scan(&info.ID, &info.Study, &info.MaxIterations, &info.MaxArea, &info.Tolerance,
			&converged, &sum.Iterations, &objective, &areaFraction, &elapsed)
	if err != nil {
		return info, sum, fmt.Errorf("store: loading run %s: %w", id, err)
	}

	sum.Converged = converged != 0
	sum.Objective = objective.Float64
	sum.AreaFraction = areaFraction.Float64
	sum.Elapsed = elapsed.Float64
	return info, sum, nil
}

// Iterations returns the stored records of run id in iteration order.
func (s *Store) Iterations(id string) ([]optimization.IterationRecord, error) {
	rows, err := s.db.Query(`
		SELECT iteration, objective, max_stress, area_fraction, relative_change
		FROM run_iterations WHERE run_id = ? ORDER BY iteration`, id)
	if err != nil {
		return nil, fmt.Errorf("store: querying iterations of %s: %w", id, err)
	}
	defer rows.Close()

	var out []optimization.IterationRecord
	for rows.Next() {
		var rec optimization.IterationRecord
		if err := rows.Scan(&rec.Iteration, &rec.Objective, &rec.MaxStress,
			&rec.AreaFraction, &rec.RelativeChange); err != nil {
			return nil, fmt.Errorf("store: scanning iteration: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
