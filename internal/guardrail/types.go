// Package guardrail evaluates the quantum-inequality margin of the platform:
// it resolves an effective energy density from telemetry by fixed source
// precedence, compares the window-normalized on-integral against the
// Ford-Roman floor, and emits deterministic reason codes and a
// classification. It never errors; missing or malformed inputs fail closed.
package guardrail

import (
	"math"
	"sort"
	"time"
)

// #region reason-codes

// ReasonCode tags one cause in a guardrail verdict. The set is closed; codes
// carry a fixed total order for deterministic output.
type ReasonCode string

const (
	CodeSignalMissing        ReasonCode = "SIGNAL_MISSING"
	CodeCurvatureWindowFail  ReasonCode = "CURVATURE_WINDOW_FAIL"
	CodeApplicabilityNotPass ReasonCode = "APPLICABILITY_NOT_PASS"
	CodeMarginExceeded       ReasonCode = "MARGIN_EXCEEDED"
	CodeSourceNotMetric      ReasonCode = "SOURCE_NOT_METRIC"
)

// codeRank is the fixed priority order; codes outside the list sort
// alphabetically after all listed codes.
var codeRank = map[ReasonCode]int{
	CodeSignalMissing:        0,
	CodeCurvatureWindowFail:  1,
	CodeApplicabilityNotPass: 2,
	CodeMarginExceeded:       3,
	CodeSourceNotMetric:      4,
}

// codeLess is the total-order comparator over reason codes.
func codeLess(a, b ReasonCode) bool {
	ra, okA := codeRank[a]
	rb, okB := codeRank[b]
	switch {
	case okA && okB:
		return ra < rb
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}

// sortCodes orders a code list by the fixed priority.
func sortCodes(codes []ReasonCode) {
	sort.Slice(codes, func(i, j int) bool { return codeLess(codes[i], codes[j]) })
}

// #endregion reason-codes

// #region applicability

// Applicability states of a guardrail evaluation.
const (
	ApplicabilityPass    = "PASS"
	ApplicabilityFail    = "FAIL"
	ApplicabilityUnknown = "UNKNOWN"
)

// #endregion applicability

// #region sampler

// Sampler selects the Ford-Roman sampling function.
type Sampler string

const (
	SamplerGaussian   Sampler = "gaussian"
	SamplerLorentzian Sampler = "lorentzian"
)

// KFactor returns the sampler constant of the Ford-Roman floor. The second
// return is false for unknown sampler kinds.
func (s Sampler) KFactor() (float64, bool) {
	switch s {
	case SamplerGaussian:
		return 1.0, true
	case SamplerLorentzian:
		return 16.0 / (3.0 * math.Pi), true
	default:
		return 0, false
	}
}

// #endregion sampler

// #region classification

// Classification buckets a verdict for operators.
type Classification string

const (
	ClassApplicabilityLimited Classification = "applicability_limited"
	ClassScalingSuspect       Classification = "scaling_suspect"
	ClassPhysicsLimited       Classification = "physics_limited"
)

// #endregion classification

// #region context

// Context is the sampling context of one evaluation.
type Context struct {
	WindowMs      float64 `json:"windowMs"`
	Sampler       Sampler `json:"sampler"`
	PolicyMaxZeta float64 `json:"policyMaxZeta"`
}

// DefaultContext returns the dashboard's standard sampling context.
func DefaultContext() Context {
	return Context{
		WindowMs:      250,
		Sampler:       SamplerGaussian,
		PolicyMaxZeta: 10.0,
	}
}

// #endregion context

// #region summary

// Summary is the full verdict of one evaluation. The JSON field names are a
// wire contract consumed by external dashboards; do not rename them.
type Summary struct {
	WindowMs      float64 `json:"windowMs"`
	Sampler       Sampler `json:"sampler"`
	PolicyMaxZeta float64 `json:"policyMaxZeta"`

	// MarginRatioRaw is nil when the ratio could not be computed; the
	// MARGIN_EXCEEDED code is then present (fail closed).
	MarginRatioRaw *float64 `json:"marginRatioRaw"`
	MarginRatio    float64  `json:"marginRatio"`

	ApplicabilityStatus     string     `json:"applicabilityStatus"`
	ApplicabilityReasonCode ReasonCode `json:"applicabilityReasonCode"`

	RhoSource    string  `json:"rhoSource"`
	EffectiveRho float64 `json:"effectiveRho"`
	Lhs          float64 `json:"lhs"`
	Bound        float64 `json:"bound"`

	Duty            float64 `json:"duty"`
	PatternDuty     float64 `json:"patternDuty"`
	SumWindowDt     float64 `json:"sumWindowDt"`
	DutyEffectiveFR float64 `json:"dutyEffectiveFR"`

	Reasons        []ReasonCode   `json:"reasons"`
	Classification Classification `json:"classification"`

	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// HasReason reports whether the verdict carries the given code.
func (s Summary) HasReason(code ReasonCode) bool {
	for _, c := range s.Reasons {
		if c == code {
			return true
		}
	}
	return false
}

// #endregion summary
