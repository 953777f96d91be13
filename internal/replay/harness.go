package replay

import (
	"time"

	"github.com/pestypig/casimirbot/internal/engine"
	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/telemetry"
	"github.com/pestypig/casimirbot/internal/transition"
)

// #region types

// Step op names.
const (
	OpRecompute  = "recompute"
	OpTransition = "transition"
)

// Step is one recorded operation against the pipeline. Transition steps
// carry the telemetry snapshot and clock the preflight saw; an absent
// snapshot replays the fail-closed path.
type Step struct {
	StepID   string              `json:"stepId"`
	Op       string              `json:"op"`
	Delta    *engine.ConfigDelta `json:"delta,omitempty"`
	Mode     string              `json:"mode,omitempty"`
	Snapshot *telemetry.Snapshot `json:"snapshot,omitempty"`
	At       time.Time           `json:"at,omitempty"`
}

// ReplayConfig bundles the evaluation context and preflight check order.
type ReplayConfig struct {
	EvalContext guardrail.Context
	Checks      transition.Config
}

// DefaultReplayConfig returns the standing defaults for both stages.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		EvalContext: guardrail.DefaultContext(),
		Checks:      transition.DefaultConfig(),
	}
}

// Result captures the outcome of replaying one step.
type Result struct {
	StepID string
	Op     string
	Err    string // non-empty when the step's delta or mode was rejected

	Mode            pipeline.Mode
	Status          pipeline.Status
	PowerAvgMW      float64
	ExoticMassRawKg float64
	Zeta            float64
	FallbackApplied bool
	FirstFail       transition.CheckName

	// State after this step; equals the previous state when Err is set.
	State pipeline.State
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSteps  int
	Recomputes  int
	Transitions int
	Fallbacks   int
	Errors      int
	FinalState  pipeline.State
}

// #endregion types

// #region replay

// Replay iterates the recorded steps, applying the full pipeline per step:
// overlay → recompute → preflight → commit. Operates entirely in-memory; the
// calculator is a pure function, so a faithful recording reproduces every
// derived field bit-for-bit.
func Replay(start pipeline.State, steps []Step, config ReplayConfig) []Result {
	current := start
	results := make([]Result, 0, len(steps))

	ctl := transition.NewController(config.Checks)

	for _, step := range steps {
		switch step.Op {
		case OpTransition:
			mode, err := pipeline.ParseMode(step.Mode)
			if err != nil {
				results = append(results, errResult(step, current, err.Error()))
				continue
			}

			snap := telemetry.Snapshot{}
			if step.Snapshot != nil {
				snap = step.Snapshot.Clone()
			}
			eval := func(st pipeline.State) *guardrail.Summary {
				sum := guardrail.EvaluateSnapshot(st, snap, config.EvalContext, step.At)
				return &sum
			}

			res, applied := ctl.Decide(current, mode, eval)
			current = applied
			results = append(results, Result{
				StepID:          step.StepID,
				Op:              OpTransition,
				Mode:            applied.Mode,
				Status:          applied.OverallStatus,
				PowerAvgMW:      applied.PowerAvgMW,
				ExoticMassRawKg: applied.ExoticMassRawKg,
				Zeta:            applied.Zeta,
				FallbackApplied: res.FallbackApplied,
				FirstFail:       res.Preflight.FirstFail,
				State:           applied,
			})

		default: // recompute
			var delta engine.ConfigDelta
			if step.Delta != nil {
				delta = *step.Delta
			}
			next, err := delta.Apply(current)
			if err != nil {
				results = append(results, errResult(step, current, err.Error()))
				continue
			}

			next = pipeline.Calculate(next)
			current = next
			results = append(results, Result{
				StepID:          step.StepID,
				Op:              OpRecompute,
				Mode:            next.Mode,
				Status:          next.OverallStatus,
				PowerAvgMW:      next.PowerAvgMW,
				ExoticMassRawKg: next.ExoticMassRawKg,
				Zeta:            next.Zeta,
				State:           next,
			})
		}
	}

	return results
}

// errResult records a rejected step; the state carries over unchanged.
func errResult(step Step, current pipeline.State, msg string) Result {
	return Result{
		StepID:          step.StepID,
		Op:              step.Op,
		Err:             msg,
		Mode:            current.Mode,
		Status:          current.OverallStatus,
		PowerAvgMW:      current.PowerAvgMW,
		ExoticMassRawKg: current.ExoticMassRawKg,
		Zeta:            current.Zeta,
		State:           current,
	}
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result, final pipeline.State) Summary {
	s := Summary{
		TotalSteps: len(results),
		FinalState: final,
	}
	for _, r := range results {
		if r.Err != "" {
			s.Errors++
			continue
		}
		switch r.Op {
		case OpRecompute:
			s.Recomputes++
		case OpTransition:
			s.Transitions++
			if r.FallbackApplied {
				s.Fallbacks++
			}
		}
	}
	return s
}

// #endregion replay
