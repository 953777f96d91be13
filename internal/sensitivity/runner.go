package sensitivity

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/telemetry"
)

// #region sweep-runner

// sweepNamespace seeds run identifiers; a run ID is a pure function of the seed.
var sweepNamespace = uuid.MustParse("b1c0d9e8-4a31-4f0b-9e5d-2c7a8f6e0d13")

// Runner evaluates parameter grids against a pinned baseline state and a
// pinned telemetry snapshot so repeated runs serialize byte-identically.
type Runner struct {
	baseline pipeline.State
	snap     telemetry.Snapshot
}

// NewRunner creates a Runner over the given baseline and telemetry snapshot.
func NewRunner(baseline pipeline.State, snap telemetry.Snapshot) *Runner {
	return &Runner{baseline: baseline, snap: snap.Clone()}
}

// Run expands the base x secondary grid in base-major order, evaluates up to
// MaxCases points, and returns the ordered results.
func (r *Runner) Run(seed int64, bases []BaseCase, secondaries []SecondaryCase) RunResult {
	// 1. Empty axes collapse to a single pass-through case.
	if len(bases) == 0 {
		bases = []BaseCase{DefaultBaseCase()}
	}
	if len(secondaries) == 0 {
		secondaries = []SecondaryCase{DefaultSecondaryCase()}
	}

	// 2. Pin the evaluation clock to the seed; wall time never leaks in.
	now := time.Unix(seed, 0).UTC()

	requested := len(bases) * len(secondaries)
	out := RunResult{
		RunID:          runID(seed),
		Seed:           seed,
		RequestedCases: requested,
		Truncated:      requested > MaxCases,
		Cases:          make([]CaseResult, 0, min(requested, MaxCases)),
	}

	// 3. Base-major expansion; truncation drops trailing combinations only.
	for _, b := range bases {
		for _, s := range secondaries {
			if len(out.Cases) >= MaxCases {
				return out
			}
			out.Cases = append(out.Cases, r.evaluateCase(b, s, now))
		}
	}
	return out
}

// evaluateCase recomputes one grid point in full isolation from its siblings.
func (r *Runner) evaluateCase(b BaseCase, s SecondaryCase, now time.Time) CaseResult {
	// 1. Clone the baseline so overrides never bleed across cases.
	st := r.baseline.Clone()
	if s.GapNm > 0 {
		st.GapNm = s.GapNm
	}
	if s.CasimirModel != "" {
		st.CasimirModel = s.CasimirModel
	}

	// 2. Recompute the full pipeline under the overridden configuration.
	st = pipeline.Calculate(st)

	// 3. Evaluate the guardrail with the case's evaluation context.
	ec := evalContext(b)
	sum := guardrail.EvaluateSnapshot(st, r.snap.Clone(), ec, now)

	return CaseResult{
		BaseLabel:       b.Label,
		SecondaryLabel:  s.Label,
		FieldType:       b.FieldType,
		CasimirModel:    st.CasimirModel,
		GapNm:           st.GapNm,
		Mode:            st.Mode,
		PowerAvgMW:      st.PowerAvgMW,
		ExoticMassRawKg: st.ExoticMassRawKg,
		Zeta:            st.Zeta,
		Status:          st.OverallStatus,
		Summary:         sum,
	}
}

// evalContext fills unset base-case knobs from the guardrail defaults.
func evalContext(b BaseCase) guardrail.Context {
	ec := guardrail.DefaultContext()
	if b.WindowMs > 0 {
		ec.WindowMs = b.WindowMs
	}
	if b.Sampler != "" {
		ec.Sampler = b.Sampler
	}
	if b.PolicyMaxZeta > 0 {
		ec.PolicyMaxZeta = b.PolicyMaxZeta
	}
	return ec
}

// runID derives a stable UUID from the seed alone.
func runID(seed int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))
	return uuid.NewSHA1(sweepNamespace, buf[:]).String()
}

// Serialize renders the run with stable field ordering for artifact storage.
func (r RunResult) Serialize() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// #endregion sweep-runner
