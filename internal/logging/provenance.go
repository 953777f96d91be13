// Package logging writes transition and guardrail provenance rows so every
// mode decision and safety verdict can be audited after the fact.
package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-transition
// LogTransition writes a mode-decision entry to the transition_log table.
func LogTransition(db *sql.DB, entry TransitionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO transition_log (version_id, requested_mode, applied_mode, fallback_applied, first_fail, summary_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		entry.RequestedMode,
		entry.AppliedMode,
		boolInt(entry.FallbackApplied),
		nullIfEmpty(entry.FirstFail),
		nullIfEmpty(entry.SummaryJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log transition: %w", err)
	}
	return nil
}

// #endregion log-transition

// #region log-evaluation
// LogEvaluation writes a guardrail verdict to the guardrail_log table.
func LogEvaluation(db *sql.DB, entry GuardrailEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO guardrail_log (applicability, classification, margin_ratio, rho_source, summary_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Applicability,
		entry.Classification,
		entry.MarginRatio,
		nullIfEmpty(entry.RhoSource),
		entry.SummaryJSON,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log evaluation: %w", err)
	}
	return nil
}

// #endregion log-evaluation

// #region list-transitions
// ListTransitions returns the most recent transition entries, newest first.
func ListTransitions(db *sql.DB, limit int) ([]TransitionEntry, error) {
	rows, err := db.Query(
		`SELECT version_id, requested_mode, applied_mode, fallback_applied, first_fail, summary_json, created_at
		 FROM transition_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var entries []TransitionEntry
	for rows.Next() {
		var e TransitionEntry
		var fallback int
		var firstFail, summaryJSON sql.NullString
		var createdStr string

		if err := rows.Scan(&e.VersionID, &e.RequestedMode, &e.AppliedMode, &fallback, &firstFail, &summaryJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		e.FallbackApplied = fallback != 0
		if firstFail.Valid {
			e.FirstFail = firstFail.String
		}
		if summaryJSON.Valid {
			e.SummaryJSON = summaryJSON.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-transitions

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
