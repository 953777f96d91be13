// Package store persists versioned pipeline states, transition provenance,
// and sensitivity runs in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/sensitivity"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS pipeline_versions (
	version_id     TEXT PRIMARY KEY,
	parent_id      TEXT,
	state_json     TEXT NOT NULL,
	mode           TEXT NOT NULL,
	status         TEXT NOT NULL,
	power_avg_mw   REAL NOT NULL,
	exotic_mass_kg REAL NOT NULL,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES pipeline_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_pipeline (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES pipeline_versions(version_id)
);

CREATE TABLE IF NOT EXISTS transition_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id       TEXT NOT NULL,
	requested_mode   TEXT NOT NULL,
	applied_mode     TEXT NOT NULL,
	fallback_applied INTEGER NOT NULL,
	first_fail       TEXT,
	summary_json     TEXT,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES pipeline_versions(version_id)
);

CREATE TABLE IF NOT EXISTS guardrail_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	applicability  TEXT NOT NULL,
	classification TEXT NOT NULL,
	margin_ratio   REAL NOT NULL,
	rho_source     TEXT,
	summary_json   TEXT NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_runs (
	run_id          TEXT PRIMARY KEY,
	seed            INTEGER NOT NULL,
	requested_cases INTEGER NOT NULL,
	truncated       INTEGER NOT NULL,
	result_json     TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store manages versioned pipeline state in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-open connection; the caller keeps ownership
// and must have applied the schema.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create-initial
// CreateInitial persists a first version of the given state and points the
// active row at it.
func (s *Store) CreateInitial(st pipeline.State) (VersionRecord, error) {
	rec := VersionRecord{
		VersionID: uuid.New().String(),
		ParentID:  "",
		State:     st,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return VersionRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(tx, rec); err != nil {
		return VersionRecord{}, err
	}

	_, err = tx.Exec(
		`INSERT INTO active_pipeline (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return VersionRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// #endregion create-initial

// #region commit
// Commit inserts a new version and updates the active pointer atomically.
func (s *Store) Commit(rec VersionRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(tx, rec); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`UPDATE active_pipeline SET version_id = ? WHERE id = 1`, rec.VersionID,
	); err != nil {
		return fmt.Errorf("update active: %w", err)
	}

	return tx.Commit()
}

// insertVersion writes one pipeline_versions row inside an open transaction.
func insertVersion(tx *sql.Tx, rec VersionRecord) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	var parentPtr interface{}
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}

	mass := rec.State.ExoticMassRawKg
	if rec.State.Variant == pipeline.VariantCalibrated {
		mass = rec.State.ExoticMassCalKg
	}

	_, err = tx.Exec(
		`INSERT INTO pipeline_versions (version_id, parent_id, state_json, mode, status, power_avg_mw, exotic_mass_kg, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, parentPtr, string(stateJSON),
		string(rec.State.Mode), string(rec.State.OverallStatus),
		rec.State.PowerAvgMW, mass,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// #endregion commit

// #region get-current
// Current reads the active pipeline version.
func (s *Store) Current() (VersionRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_pipeline WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.Version(versionID)
}

// #endregion get-current

// #region get-version
// Version retrieves a specific pipeline version by ID.
func (s *Store) Version(id string) (VersionRecord, error) {
	var rec VersionRecord
	var parentID sql.NullString
	var stateJSON string
	var createdStr string

	err := s.db.QueryRow(
		`SELECT version_id, parent_id, state_json, created_at
		 FROM pipeline_versions WHERE version_id = ?`, id,
	).Scan(&rec.VersionID, &parentID, &stateJSON, &createdStr)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}

	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		return VersionRecord{}, fmt.Errorf("unmarshal state: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)

	return rec, nil
}

// #endregion get-version

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM pipeline_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s: %w", targetVersionID, sql.ErrNoRows)
	}

	_, err = s.db.Exec(`UPDATE active_pipeline SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent pipeline versions.
func (s *Store) ListVersions(limit int) ([]VersionRecord, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, state_json, created_at
		 FROM pipeline_versions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []VersionRecord
	for rows.Next() {
		var rec VersionRecord
		var parentID sql.NullString
		var stateJSON string
		var createdStr string

		if err := rows.Scan(&rec.VersionID, &parentID, &stateJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if parentID.Valid {
			rec.ParentID = parentID.String
		}
		if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-versions

// #region sweep-runs
// SaveRun persists a sensitivity run keyed by its seed-derived identifier.
// Re-saving the same run is idempotent.
func (s *Store) SaveRun(res sensitivity.RunResult) error {
	resultJSON, err := res.Serialize()
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO sweep_runs (run_id, seed, requested_cases, truncated, result_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   seed = excluded.seed,
		   requested_cases = excluded.requested_cases,
		   truncated = excluded.truncated,
		   result_json = excluded.result_json`,
		res.RunID, res.Seed, res.RequestedCases, boolInt(res.Truncated),
		string(resultJSON), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// Run retrieves a persisted sensitivity run by ID.
func (s *Store) Run(runID string) (sensitivity.RunResult, error) {
	var resultJSON string
	err := s.db.QueryRow(
		`SELECT result_json FROM sweep_runs WHERE run_id = ?`, runID,
	).Scan(&resultJSON)
	if err != nil {
		return sensitivity.RunResult{}, fmt.Errorf("get run %s: %w", runID, err)
	}

	var res sensitivity.RunResult
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return sensitivity.RunResult{}, fmt.Errorf("unmarshal run: %w", err)
	}
	return res, nil
}

// ListRuns returns the most recent sensitivity runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRow, error) {
	rows, err := s.db.Query(
		`SELECT run_id, seed, requested_cases, truncated, created_at
		 FROM sweep_runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var truncated int
		var createdStr string
		if err := rows.Scan(&row.RunID, &row.Seed, &row.RequestedCases, &truncated, &createdStr); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		row.Truncated = truncated != 0
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, row)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion sweep-runs
