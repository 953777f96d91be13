package transition

import (
	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/pipeline"
)

// #region controller

// EvalFunc produces a guardrail verdict for a candidate state. A nil summary
// means no telemetry-side evaluation is available; the state flags then
// decide alone.
type EvalFunc func(pipeline.State) *guardrail.Summary

// Controller decides whether a requested mode may be applied or must fall
// back to the emergency profile.
type Controller struct {
	config Config
}

// NewController creates a controller with the given configuration.
func NewController(config Config) *Controller {
	return &Controller{config: config}
}

// Decide materializes the state implied by the requested mode, runs the
// ordered preflight checks against it, and returns the decision plus the
// state to commit. It never fails: a refused request substitutes the
// emergency profile instead.
func (c *Controller) Decide(current pipeline.State, requested pipeline.Mode, eval EvalFunc) (TransitionResult, pipeline.State) {
	// 1. The fail-safe target itself is always reachable, no preflight.
	if requested == pipeline.ModeEmergency {
		applied := pipeline.ApplyMode(current, pipeline.ModeEmergency)
		return TransitionResult{
			RequestedMode:   requested,
			AppliedMode:     pipeline.ModeEmergency,
			FallbackApplied: false,
			Preflight:       PreflightReport{Required: false, OK: true},
		}, applied
	}

	// 2. Materialize the candidate state under the requested mode.
	candidate := pipeline.ApplyMode(current, requested)

	// 3. Evaluate the guardrail against the candidate, if a feed is wired.
	var sum *guardrail.Summary
	if eval != nil {
		sum = eval(candidate)
	}

	// 4. Ordered check pass; the first failure names the veto.
	var firstFail CheckName
	for _, name := range c.config.Checks {
		if !checkPasses(candidate, sum, name) {
			firstFail = name
			break
		}
	}

	// 5. All clear: commit the request.
	if firstFail == "" {
		return TransitionResult{
			RequestedMode:   requested,
			AppliedMode:     requested,
			FallbackApplied: false,
			Preflight:       PreflightReport{Required: true, OK: true},
		}, candidate
	}

	// 6. Fail-safe substitution; the committed state is the emergency profile.
	fallback := pipeline.ApplyMode(current, pipeline.ModeEmergency)
	return TransitionResult{
		RequestedMode:   requested,
		AppliedMode:     pipeline.ModeEmergency,
		FallbackApplied: true,
		Preflight:       PreflightReport{Required: true, OK: false, FirstFail: firstFail},
	}, fallback
}

// #endregion controller

// #region checks

// checkPasses runs one named check against the candidate state and the
// optional guardrail verdict.
func checkPasses(s pipeline.State, sum *guardrail.Summary, name CheckName) bool {
	switch name {
	case CheckFordRomanQI:
		return fordRomanOK(s, sum)
	case CheckNatario:
		return s.NatarioConstraint
	case CheckGRValidity:
		return s.GRValidity
	default:
		// Unknown check names fail closed.
		return false
	}
}

// fordRomanOK combines the pipeline's duty-cycle proxy with the live
// quantum-inequality verdict. A FAIL applicability or an exceeded margin
// refuses the transition; an UNKNOWN applicability does not, since the bound
// was never established for the window.
func fordRomanOK(s pipeline.State, sum *guardrail.Summary) bool {
	if !s.FordRomanCompliance {
		return false
	}
	if sum == nil {
		return true
	}
	if sum.ApplicabilityStatus == guardrail.ApplicabilityFail {
		return false
	}
	return !sum.HasReason(guardrail.CodeMarginExceeded)
}

// #endregion checks
