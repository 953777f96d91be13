// Package sensitivity sweeps the energy pipeline and quantum-inequality
// guardrail across bounded parameter grids and reports one result per case.
package sensitivity

import (
	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/pipeline"
)

// #region sweep-cases

// MaxCases bounds a single run; overflowing grids are truncated, never rejected.
const MaxCases = 8

// BaseCase overrides the evaluation-side knobs for one sweep axis.
type BaseCase struct {
	Label         string            `json:"label"`
	WindowMs      float64           `json:"windowMs"`
	Sampler       guardrail.Sampler `json:"sampler"`
	FieldType     string            `json:"fieldType"`
	PolicyMaxZeta float64           `json:"policyMaxZeta"`
}

// SecondaryCase overrides the calculator-side knobs for one sweep axis.
type SecondaryCase struct {
	Label        string  `json:"label"`
	GapNm        float64 `json:"gapNm"`
	CasimirModel string  `json:"casimirModel"`
}

// DefaultBaseCase mirrors the guardrail defaults so an empty grid still runs.
func DefaultBaseCase() BaseCase {
	ec := guardrail.DefaultContext()
	return BaseCase{
		Label:         "base.default",
		WindowMs:      ec.WindowMs,
		Sampler:       ec.Sampler,
		FieldType:     "natario_shift",
		PolicyMaxZeta: ec.PolicyMaxZeta,
	}
}

// DefaultSecondaryCase leaves the baseline calculator state untouched.
func DefaultSecondaryCase() SecondaryCase {
	return SecondaryCase{Label: "secondary.baseline"}
}

// #endregion sweep-cases

// #region sweep-results

// CaseResult captures one grid point: the recomputed state highlights plus the
// full guardrail summary evaluated against it.
type CaseResult struct {
	BaseLabel       string            `json:"baseLabel"`
	SecondaryLabel  string            `json:"secondaryLabel"`
	FieldType       string            `json:"fieldType"`
	CasimirModel    string            `json:"casimirModel"`
	GapNm           float64           `json:"gapNm"`
	Mode            pipeline.Mode     `json:"mode"`
	PowerAvgMW      float64           `json:"powerAvgMW"`
	ExoticMassRawKg float64           `json:"exoticMassRawKg"`
	Zeta            float64           `json:"zeta"`
	Status          pipeline.Status   `json:"status"`
	Summary         guardrail.Summary `json:"summary"`
}

// RunResult is the serialized unit of a sweep: identity, inputs echo, cases.
type RunResult struct {
	RunID          string       `json:"runId"`
	Seed           int64        `json:"seed"`
	RequestedCases int          `json:"requestedCases"`
	Truncated      bool         `json:"truncated"`
	Cases          []CaseResult `json:"cases"`
}

// #endregion sweep-results
