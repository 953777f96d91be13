package logging

import "time"

// #region transition-entry
// TransitionEntry is a single row in the transition_log table.
type TransitionEntry struct {
	VersionID       string    `json:"versionId"`
	RequestedMode   string    `json:"requestedMode"`
	AppliedMode     string    `json:"appliedMode"`
	FallbackApplied bool      `json:"fallbackApplied"`
	FirstFail       string    `json:"firstFail,omitempty"`
	SummaryJSON     string    `json:"summaryJson,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// #endregion transition-entry

// #region guardrail-entry
// GuardrailEntry is a single row in the guardrail_log table.
type GuardrailEntry struct {
	Applicability  string    `json:"applicability"`
	Classification string    `json:"classification"`
	MarginRatio    float64   `json:"marginRatio"`
	RhoSource      string    `json:"rhoSource"`
	SummaryJSON    string    `json:"summaryJson,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// #endregion guardrail-entry
