// Package transition gates operational-mode changes behind ordered preflight
// checks with a mandatory emergency fail-safe.
package transition

import "github.com/pestypig/casimirbot/internal/pipeline"

// #region check-names

// CheckName identifies one preflight check.
type CheckName string

const (
	CheckFordRomanQI CheckName = "FordRomanQI"
	CheckNatario     CheckName = "NatarioConstraint"
	CheckGRValidity  CheckName = "GRValidity"
)

// #endregion check-names

// #region preflight-report

// PreflightReport records whether checks ran and which one failed first.
type PreflightReport struct {
	Required  bool      `json:"required"`
	OK        bool      `json:"ok"`
	FirstFail CheckName `json:"firstFail,omitempty"`
}

// #endregion preflight-report

// #region transition-result

// TransitionResult is the output of a mode-transition decision. The operation
// always succeeds; a refused request surfaces as a fail-safe substitution.
type TransitionResult struct {
	RequestedMode   pipeline.Mode   `json:"requestedMode"`
	AppliedMode     pipeline.Mode   `json:"appliedMode"`
	FallbackApplied bool            `json:"fallbackApplied"`
	Preflight       PreflightReport `json:"preflight"`
}

// #endregion transition-result

// #region controller-config

// Config holds the ordered preflight check list.
type Config struct {
	Checks []CheckName
}

// DefaultConfig returns the standard check order; position decides firstFail.
func DefaultConfig() Config {
	return Config{
		Checks: []CheckName{CheckFordRomanQI, CheckNatario, CheckGRValidity},
	}
}

// #endregion controller-config
