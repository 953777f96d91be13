package guardrail

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/telemetry"
)

// #region evaluator

// Evaluator pairs a telemetry feed with a clock. All scoring lives in the
// pure EvaluateSnapshot; the evaluator only supplies inputs.
type Evaluator struct {
	feed telemetry.Feed
	now  func() time.Time
}

// NewEvaluator creates an evaluator over a live feed.
func NewEvaluator(feed telemetry.Feed) *Evaluator {
	return &Evaluator{feed: feed, now: time.Now}
}

// NewEvaluatorWithClock creates an evaluator with an injected clock.
// Used for testing freshness windows without sleeping.
func NewEvaluatorWithClock(feed telemetry.Feed, now func() time.Time) *Evaluator {
	return &Evaluator{feed: feed, now: now}
}

// Evaluate pulls a snapshot and scores the state against the sampling
// context. Feed errors degrade to an empty snapshot; the verdict then runs
// the normal fallback chain and fails closed.
func (e *Evaluator) Evaluate(ctx context.Context, s pipeline.State, ec Context) Summary {
	snap, err := e.feed.Snapshot(ctx)
	if err != nil {
		snap = telemetry.Snapshot{}
	}
	return EvaluateSnapshot(s, snap, ec, e.now())
}

// #endregion evaluator

// #region evaluate

// EvaluateSnapshot is the pure scoring core: state + telemetry snapshot +
// sampling context + clock reading in, full verdict out. Identical inputs
// reproduce identical verdicts.
func EvaluateSnapshot(s pipeline.State, snap telemetry.Snapshot, ec Context, now time.Time) Summary {
	sum := Summary{
		WindowMs:      ec.WindowMs,
		Sampler:       ec.Sampler,
		PolicyMaxZeta: ec.PolicyMaxZeta,
		EvaluatedAt:   now.UTC(),
	}

	windowSec := ec.WindowMs / 1000
	fresh := freshnessWindow(ec.WindowMs)

	kFactor, samplerOK := ec.Sampler.KFactor()
	contextOK := ec.WindowMs > 0 && samplerOK

	// Scheduled duty comes from the committed state; the measured sample
	// overrides it only when fresh and valid.
	sum.PatternDuty = s.DutyEffective
	latestDuty, hasDuty := latestDutySample(snap.Duty)
	if hasDuty {
		sum.Duty = latestDuty.Duty
	}
	dutyFresh := hasDuty && isFresh(latestDuty.At, now, fresh) &&
		isFinite(latestDuty.Duty) && latestDuty.Duty > 0

	sum.DutyEffectiveFR = sum.PatternDuty
	if dutyFresh {
		sum.DutyEffectiveFR = latestDuty.Duty
	}
	sum.SumWindowDt = sum.DutyEffectiveFR * windowSec

	// Effective density by fixed source precedence.
	source, rho, resolved := resolveEffectiveRho(snap, now, fresh, dutyFresh, sum.DutyEffectiveFR)
	sum.RhoSource = source
	sum.EffectiveRho = rho

	// Margin against the Ford-Roman floor. The raw ratio keeps full
	// precision; only the clamped ratio is display-bounded.
	sum.Bound = fordRomanFloor(windowSec, kFactor)
	sum.Lhs = rho * sum.DutyEffectiveFR
	raw := math.Abs(sum.Lhs) / math.Abs(sum.Bound)
	rawOK := isFinite(raw)
	if rawOK {
		v := raw
		sum.MarginRatioRaw = &v
	}
	sum.MarginRatio = clampRatio(raw, rawOK, ec.PolicyMaxZeta)

	sum.ApplicabilityStatus, sum.ApplicabilityReasonCode = applicability(resolved, contextOK, ec.WindowMs, s)

	sum.Reasons = deriveReasons(sum.ApplicabilityStatus, sum.ApplicabilityReasonCode, raw, rawOK, source)
	sum.Classification = classify(sum.Reasons, sum.ApplicabilityStatus, raw, rawOK)
	return sum
}

// #endregion evaluate

// #region source-resolution

// resolveEffectiveRho walks the fixed precedence: tile telemetry, gate
// pulses, pump tones, duty fallback. The first available source wins and the
// rest are never consulted.
func resolveEffectiveRho(snap telemetry.Snapshot, now time.Time, fresh time.Duration, dutyFresh bool, dutyEff float64) (string, float64, bool) {
	// 1. Tile telemetry: weighted mean of fresh negative samples.
	if source, rho, ok := tileMean(snap.Tiles, now, fresh); ok {
		return source, rho, true
	}

	// 2. Gate pulses: sum, superposed with tones when present.
	if source, rho, ok := pulseSum(snap.Pulses, snap.Pumps, now, fresh); ok {
		return source, rho, true
	}

	// 3. Pump tones at the latest command timestamp.
	if cmd, ok := latestPump(snap.Pumps, now, fresh); ok {
		return cmd.Source, toneValue(cmd), true
	}

	// 4. Duty fallback: fresh positive measured duty stands in for density.
	if dutyFresh {
		return "duty.fallback", -math.Abs(dutyEff), true
	}
	return "", 0, false
}

func tileMean(tiles []telemetry.TileSample, now time.Time, fresh time.Duration) (string, float64, bool) {
	var weightSum, rhoSum float64
	var source string
	var latest time.Time
	for _, t := range tiles {
		if !isFresh(t.At, now, fresh) || !isFinite(t.RhoJm3) || t.RhoJm3 >= 0 || t.Weight <= 0 {
			continue
		}
		weightSum += t.Weight
		rhoSum += t.RhoJm3 * t.Weight
		if source == "" || t.At.After(latest) {
			source = t.Source
			latest = t.At
		}
	}
	if weightSum <= 0 {
		return "", 0, false
	}
	return source, rhoSum / weightSum, true
}

func pulseSum(pulses []telemetry.GatePulse, pumps []telemetry.PumpCommand, now time.Time, fresh time.Duration) (string, float64, bool) {
	var sum float64
	var source string
	var latest time.Time
	used := false
	for _, p := range pulses {
		if !isFresh(p.At, now, fresh) || !isFinite(p.RhoJm3) {
			continue
		}
		sum += p.RhoJm3
		used = true
		if source == "" || p.At.After(latest) {
			source = p.Source
			latest = p.At
		}
	}
	if !used {
		return "", 0, false
	}
	if cmd, ok := latestPump(pumps, now, fresh); ok {
		sum += toneValue(cmd)
	}
	return source, sum, true
}

func latestPump(pumps []telemetry.PumpCommand, now time.Time, fresh time.Duration) (telemetry.PumpCommand, bool) {
	var best telemetry.PumpCommand
	found := false
	for _, c := range pumps {
		if !isFresh(c.At, now, fresh) {
			continue
		}
		if !found || c.At.After(best.At) {
			best = c
			found = true
		}
	}
	return best, found
}

// toneValue evaluates rho0 plus the superposed tones at the command's own
// timestamp.
func toneValue(cmd telemetry.PumpCommand) float64 {
	t := float64(cmd.At.UnixNano()) / 1e9
	v := cmd.Rho0
	for _, tone := range cmd.Tones {
		v += tone.DepthJm3 * math.Cos(2*math.Pi*tone.FreqHz*t+tone.PhaseRad)
	}
	return v
}

// #endregion source-resolution

// #region applicability

// applicability derives the status and its primary cause, in fixed priority:
// missing signal, curvature window violation, invalid context.
func applicability(resolved, contextOK bool, windowMs float64, s pipeline.State) (string, ReasonCode) {
	if !resolved {
		return ApplicabilityFail, CodeSignalMissing
	}
	if curvatureWindowFail(windowMs, s) {
		return ApplicabilityFail, CodeCurvatureWindowFail
	}
	if !contextOK {
		return ApplicabilityUnknown, CodeApplicabilityNotPass
	}
	return ApplicabilityPass, ""
}

// curvatureWindowFail checks that the sampling window stays inside 10% of
// the curvature timescale 1/sqrt(8*pi*G*|T00|/c^2); the flat-space
// quantum-inequality form is only applicable there.
func curvatureWindowFail(windowMs float64, s pipeline.State) bool {
	omega := math.Sqrt(8 * math.Pi * pipeline.GravitationalG * math.Abs(s.StressEnergyT00) /
		(pipeline.LightSpeed * pipeline.LightSpeed))
	if omega <= 0 || !isFinite(omega) {
		return false
	}
	capMs := 0.1 * 1000.0 / omega
	return windowMs > capMs
}

// #endregion applicability

// #region reasons

// deriveReasons builds the deterministic code set, then orders it by the
// fixed priority.
func deriveReasons(status string, cause ReasonCode, raw float64, rawOK bool, source string) []ReasonCode {
	var codes []ReasonCode
	if status != ApplicabilityPass {
		codes = append(codes, CodeApplicabilityNotPass)
		if cause != "" && cause != CodeApplicabilityNotPass {
			codes = append(codes, cause)
		}
	}
	// Full-precision raw ratio only; a missing or non-finite ratio is an
	// automatic violation.
	if !rawOK || raw >= 1.0 {
		codes = append(codes, CodeMarginExceeded)
	}
	if !IsMetricRhoSource(source) {
		codes = append(codes, CodeSourceNotMetric)
	}
	sortCodes(codes)
	return codes
}

// classify buckets the verdict, first match wins.
func classify(codes []ReasonCode, status string, raw float64, rawOK bool) Classification {
	if status != ApplicabilityPass ||
		hasCode(codes, CodeSignalMissing) || hasCode(codes, CodeCurvatureWindowFail) || hasCode(codes, CodeApplicabilityNotPass) {
		return ClassApplicabilityLimited
	}
	if hasCode(codes, CodeSourceNotMetric) {
		return ClassScalingSuspect
	}
	if !rawOK || raw >= 1.0 || hasCode(codes, CodeMarginExceeded) {
		return ClassPhysicsLimited
	}
	return ClassScalingSuspect
}

func hasCode(codes []ReasonCode, c ReasonCode) bool {
	for _, x := range codes {
		if x == c {
			return true
		}
	}
	return false
}

// #endregion reasons

// #region helpers

// metricSourcePrefixes are the density sources backed by the metric itself
// rather than a proxy.
var metricSourcePrefixes = []string{"warp.metric", "gr.rho_constraint", "gr.metric"}

// IsMetricRhoSource reports whether a resolved source string names a
// metric-backed density, case-insensitively.
func IsMetricRhoSource(source string) bool {
	lower := strings.ToLower(source)
	for _, p := range metricSourcePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// freshnessWindow is the staleness cutoff for telemetry samples.
func freshnessWindow(windowMs float64) time.Duration {
	ms := math.Max(2*windowMs, math.Max(2500, 20000))
	return time.Duration(ms * float64(time.Millisecond))
}

// isFresh accepts samples no older than the cutoff; exactly at the cutoff is
// still fresh, one millisecond past is not.
func isFresh(at, now time.Time, fresh time.Duration) bool {
	return now.Sub(at) <= fresh
}

// fordRomanFloor is the sampler-normalized quantum-inequality floor for a
// sampling time tau: -(3*K)/(32*pi^2*tau^4). Always negative and finite.
func fordRomanFloor(windowSec, kFactor float64) float64 {
	if kFactor <= 0 {
		kFactor = 1.0
	}
	tau := windowSec
	if !isFinite(tau) || tau < 1e-9 {
		tau = 1e-9
	}
	return -(3 * kFactor) / (32 * math.Pi * math.Pi * tau * tau * tau * tau)
}

func clampRatio(raw float64, rawOK bool, maxZeta float64) float64 {
	if !rawOK {
		return maxZeta
	}
	if raw < 0 {
		return 0
	}
	if raw > maxZeta {
		return maxZeta
	}
	return raw
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func latestDutySample(duty []telemetry.DutySample) (telemetry.DutySample, bool) {
	var best telemetry.DutySample
	found := false
	for _, d := range duty {
		if !found || d.At.After(best.At) {
			best = d
			found = true
		}
	}
	return best, found
}

// #endregion helpers
