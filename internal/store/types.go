package store

import (
	"time"

	"github.com/pestypig/casimirbot/internal/pipeline"
)

// #region version-record
// VersionRecord is a versioned snapshot of the full pipeline state.
type VersionRecord struct {
	VersionID string         `json:"versionId"`
	ParentID  string         `json:"parentId,omitempty"`
	State     pipeline.State `json:"state"`
	CreatedAt time.Time      `json:"createdAt"`
}

// #endregion version-record

// #region run-row
// RunRow is the listing view of a persisted sensitivity run.
type RunRow struct {
	RunID          string    `json:"runId"`
	Seed           int64     `json:"seed"`
	RequestedCases int       `json:"requestedCases"`
	Truncated      bool      `json:"truncated"`
	CreatedAt      time.Time `json:"createdAt"`
}

// #endregion run-row
