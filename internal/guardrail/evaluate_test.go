package guardrail

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/telemetry"
)

var testNow = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

func calculatedState() pipeline.State {
	return pipeline.Calculate(pipeline.DefaultState())
}

func TestIsMetricRhoSource(t *testing.T) {
	cases := []struct {
		source string
		want   bool
	}{
		{"warp.metric.energy", true},
		{"gr.rho_constraint.si", true},
		{"gr.metric.natario", true},
		{"WARP.METRIC.ENERGY", true},
		{"gr.telemetry", false},
		{"proxy", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsMetricRhoSource(c.source); got != c.want {
			t.Fatalf("IsMetricRhoSource(%q): expected %v, got %v", c.source, c.want, got)
		}
	}
}

func TestMarginBoundaryFullPrecision(t *testing.T) {
	// Just under one never trips; just over always does.
	under := deriveReasons(ApplicabilityPass, "", 0.9999999999, true, "warp.metric.energy")
	if hasCode(under, CodeMarginExceeded) {
		t.Fatal("0.9999999999 must not trigger MARGIN_EXCEEDED")
	}
	over := deriveReasons(ApplicabilityPass, "", 1.0000000001, true, "warp.metric.energy")
	if !hasCode(over, CodeMarginExceeded) {
		t.Fatal("1.0000000001 must trigger MARGIN_EXCEEDED")
	}
	exact := deriveReasons(ApplicabilityPass, "", 1.0, true, "warp.metric.energy")
	if !hasCode(exact, CodeMarginExceeded) {
		t.Fatal("1.0 must trigger MARGIN_EXCEEDED")
	}
	// Missing or non-finite ratios fail closed.
	missing := deriveReasons(ApplicabilityPass, "", math.NaN(), false, "warp.metric.energy")
	if !hasCode(missing, CodeMarginExceeded) {
		t.Fatal("missing raw ratio must fail closed to MARGIN_EXCEEDED")
	}
}

func TestTilePrecedenceShortCircuits(t *testing.T) {
	snap := telemetry.Snapshot{
		Tiles: []telemetry.TileSample{
			{Source: "warp.metric.tile_array", RhoJm3: -2.0, Weight: 1.0, At: testNow},
			{Source: "warp.metric.tile_array", RhoJm3: -4.0, Weight: 3.0, At: testNow},
		},
		Pulses: []telemetry.GatePulse{{Source: "gate.schedule", RhoJm3: -99.0, At: testNow}},
		Pumps:  []telemetry.PumpCommand{{Source: "pump.bank", Rho0: -77.0, At: testNow}},
		Duty:   []telemetry.DutySample{{Duty: 0.5, At: testNow}},
	}

	sum := EvaluateSnapshot(calculatedState(), snap, DefaultContext(), testNow)

	if sum.RhoSource != "warp.metric.tile_array" {
		t.Fatalf("tile telemetry must win precedence, got source %q", sum.RhoSource)
	}
	// Weighted mean: (-2*1 + -4*3) / 4 = -3.5, no extra duty scaling
	if sum.EffectiveRho != -3.5 {
		t.Fatalf("weighted mean: expected -3.5, got %f", sum.EffectiveRho)
	}
}

func TestGatePulsesSuperposeTones(t *testing.T) {
	cmd := telemetry.PumpCommand{
		Source: "pump.bank",
		Rho0:   -1.0,
		Tones:  []telemetry.Tone{{DepthJm3: -0.25, FreqHz: 10, PhaseRad: 0}},
		At:     testNow.Add(-time.Second),
	}
	snap := telemetry.Snapshot{
		Pulses: []telemetry.GatePulse{
			{Source: "gate.schedule", RhoJm3: -2.0, At: testNow},
			{Source: "gate.schedule", RhoJm3: -3.0, At: testNow},
		},
		Pumps: []telemetry.PumpCommand{cmd},
	}

	sum := EvaluateSnapshot(calculatedState(), snap, DefaultContext(), testNow)

	if sum.RhoSource != "gate.schedule" {
		t.Fatalf("gate pulses must win over pumps, got %q", sum.RhoSource)
	}
	want := -5.0 + toneValue(cmd)
	if !closeTo(sum.EffectiveRho, want, 1e-12) {
		t.Fatalf("pulse sum with tones: expected %f, got %f", want, sum.EffectiveRho)
	}
}

func TestPumpTonesAtLatestCommand(t *testing.T) {
	older := telemetry.PumpCommand{Source: "pump.bank", Rho0: -10.0, At: testNow.Add(-10 * time.Second)}
	newer := telemetry.PumpCommand{
		Source: "pump.bank",
		Rho0:   -1.0,
		Tones:  []telemetry.Tone{{DepthJm3: -0.5, FreqHz: 3.0, PhaseRad: 1.0}},
		At:     testNow.Add(-2 * time.Second),
	}
	snap := telemetry.Snapshot{Pumps: []telemetry.PumpCommand{older, newer}}

	sum := EvaluateSnapshot(calculatedState(), snap, DefaultContext(), testNow)

	if !closeTo(sum.EffectiveRho, toneValue(newer), 1e-12) {
		t.Fatalf("latest command must drive the tone value: expected %f, got %f",
			toneValue(newer), sum.EffectiveRho)
	}
}

func TestDutyFallback(t *testing.T) {
	snap := telemetry.Snapshot{
		Duty: []telemetry.DutySample{{Duty: 0.14, At: testNow.Add(-time.Second)}},
	}

	sum := EvaluateSnapshot(calculatedState(), snap, DefaultContext(), testNow)

	if sum.RhoSource != "duty.fallback" {
		t.Fatalf("expected duty fallback source, got %q", sum.RhoSource)
	}
	if sum.EffectiveRho != -0.14 {
		t.Fatalf("fallback density must be -|measured duty|, got %f", sum.EffectiveRho)
	}
	if sum.DutyEffectiveFR != 0.14 || sum.Duty != 0.14 {
		t.Fatalf("fresh measured duty must drive dutyEffectiveFR: %+v", sum)
	}
	if sum.ApplicabilityStatus != ApplicabilityPass {
		t.Fatalf("fallback with fresh duty is applicable, got %s", sum.ApplicabilityStatus)
	}
	// Not a metric source, so the verdict stays scaling_suspect
	if !hasCode(sum.Reasons, CodeSourceNotMetric) || sum.Classification != ClassScalingSuspect {
		t.Fatalf("expected SOURCE_NOT_METRIC / scaling_suspect, got %v / %s", sum.Reasons, sum.Classification)
	}
}

func TestDutySampleOneMsPastWindowNeverUsed(t *testing.T) {
	ec := DefaultContext()
	fresh := freshnessWindow(ec.WindowMs)

	atLimit := telemetry.Snapshot{
		Duty: []telemetry.DutySample{{Duty: 0.14, At: testNow.Add(-fresh)}},
	}
	sum := EvaluateSnapshot(calculatedState(), atLimit, ec, testNow)
	if sum.RhoSource != "duty.fallback" {
		t.Fatalf("sample exactly at the window edge is still fresh, got source %q", sum.RhoSource)
	}

	past := telemetry.Snapshot{
		Duty: []telemetry.DutySample{{Duty: 0.14, At: testNow.Add(-fresh - time.Millisecond)}},
	}
	sum = EvaluateSnapshot(calculatedState(), past, ec, testNow)
	if sum.RhoSource == "duty.fallback" {
		t.Fatal("sample 1ms past the freshness window must never be used")
	}
	if sum.ApplicabilityStatus != ApplicabilityFail || sum.ApplicabilityReasonCode != CodeSignalMissing {
		t.Fatalf("stale-only telemetry must fail with SIGNAL_MISSING, got %s/%s",
			sum.ApplicabilityStatus, sum.ApplicabilityReasonCode)
	}
	// Stale duty still reports for display, but never drives the margin
	if sum.Duty != 0.14 || sum.DutyEffectiveFR != sum.PatternDuty {
		t.Fatalf("stale duty must fall back to the scheduled pattern: %+v", sum)
	}
}

func TestFreshnessWindowFloor(t *testing.T) {
	// max(2*window, 2500ms, 20000ms): the 20s floor dominates small windows
	if got := freshnessWindow(250); got != 20000*time.Millisecond {
		t.Fatalf("expected 20s freshness for 250ms window, got %v", got)
	}
	if got := freshnessWindow(15000); got != 30000*time.Millisecond {
		t.Fatalf("expected 30s freshness for 15s window, got %v", got)
	}
}

func TestSignalMissingFailsClosed(t *testing.T) {
	sum := EvaluateSnapshot(calculatedState(), telemetry.Snapshot{}, DefaultContext(), testNow)

	if sum.ApplicabilityStatus != ApplicabilityFail || sum.ApplicabilityReasonCode != CodeSignalMissing {
		t.Fatalf("empty telemetry must fail applicability: %s/%s", sum.ApplicabilityStatus, sum.ApplicabilityReasonCode)
	}
	if !hasCode(sum.Reasons, CodeSignalMissing) || !hasCode(sum.Reasons, CodeApplicabilityNotPass) {
		t.Fatalf("expected SIGNAL_MISSING and APPLICABILITY_NOT_PASS, got %v", sum.Reasons)
	}
	if sum.Classification != ClassApplicabilityLimited {
		t.Fatalf("expected applicability_limited, got %s", sum.Classification)
	}
}

func TestNonFiniteMarginFailsClosed(t *testing.T) {
	s := calculatedState()
	s.DutyEffective = math.NaN()

	sum := EvaluateSnapshot(s, telemetry.Snapshot{}, DefaultContext(), testNow)

	if sum.MarginRatioRaw != nil {
		t.Fatalf("non-finite ratio must publish as missing, got %v", *sum.MarginRatioRaw)
	}
	if !hasCode(sum.Reasons, CodeMarginExceeded) {
		t.Fatalf("non-finite ratio must trigger MARGIN_EXCEEDED, got %v", sum.Reasons)
	}
	if sum.MarginRatio != sum.PolicyMaxZeta {
		t.Fatalf("clamped ratio must pin to the policy ceiling, got %f", sum.MarginRatio)
	}
}

func TestCurvatureWindowCap(t *testing.T) {
	s := pipeline.DefaultState()
	s.GammaVdB = 1e17 // pushes |T00| high enough to shrink the curvature timescale
	s = pipeline.Calculate(s)

	snap := telemetry.Snapshot{
		Duty: []telemetry.DutySample{{Duty: 0.14, At: testNow}},
	}
	sum := EvaluateSnapshot(s, snap, DefaultContext(), testNow)

	if sum.ApplicabilityStatus != ApplicabilityFail || sum.ApplicabilityReasonCode != CodeCurvatureWindowFail {
		t.Fatalf("expected CURVATURE_WINDOW_FAIL, got %s/%s", sum.ApplicabilityStatus, sum.ApplicabilityReasonCode)
	}
	if sum.Classification != ClassApplicabilityLimited {
		t.Fatalf("curvature failure classifies applicability_limited, got %s", sum.Classification)
	}
}

func TestInvalidContextUnknown(t *testing.T) {
	snap := telemetry.Snapshot{
		Duty: []telemetry.DutySample{{Duty: 0.14, At: testNow}},
	}

	ec := DefaultContext()
	ec.WindowMs = 0
	sum := EvaluateSnapshot(calculatedState(), snap, ec, testNow)
	if sum.ApplicabilityStatus != ApplicabilityUnknown || sum.ApplicabilityReasonCode != CodeApplicabilityNotPass {
		t.Fatalf("zero window: expected UNKNOWN/APPLICABILITY_NOT_PASS, got %s/%s",
			sum.ApplicabilityStatus, sum.ApplicabilityReasonCode)
	}

	ec = DefaultContext()
	ec.Sampler = "hann"
	sum = EvaluateSnapshot(calculatedState(), snap, ec, testNow)
	if sum.ApplicabilityStatus != ApplicabilityUnknown {
		t.Fatalf("unknown sampler: expected UNKNOWN, got %s", sum.ApplicabilityStatus)
	}
}

func TestMarginClampToPolicyCeiling(t *testing.T) {
	snap := telemetry.Snapshot{
		Tiles: []telemetry.TileSample{{Source: "warp.metric.tile_array", RhoJm3: -4.3e8, Weight: 1, At: testNow}},
	}
	sum := EvaluateSnapshot(calculatedState(), snap, DefaultContext(), testNow)

	if sum.MarginRatioRaw == nil {
		t.Fatal("raw ratio must be published for finite inputs")
	}
	if *sum.MarginRatioRaw <= sum.PolicyMaxZeta {
		t.Fatalf("SI tile density should blow past the ceiling, got %f", *sum.MarginRatioRaw)
	}
	if sum.MarginRatio != sum.PolicyMaxZeta {
		t.Fatalf("clamped ratio must cap at policyMaxZeta, got %f", sum.MarginRatio)
	}
	if !hasCode(sum.Reasons, CodeMarginExceeded) || sum.Classification != ClassPhysicsLimited {
		t.Fatalf("expected physics_limited margin violation, got %v / %s", sum.Reasons, sum.Classification)
	}
}

func TestBoundPrecomputedNegative(t *testing.T) {
	for _, sampler := range []Sampler{SamplerGaussian, SamplerLorentzian} {
		ec := DefaultContext()
		ec.Sampler = sampler
		snap := telemetry.Snapshot{Duty: []telemetry.DutySample{{Duty: 0.14, At: testNow}}}
		sum := EvaluateSnapshot(calculatedState(), snap, ec, testNow)
		if sum.Bound >= 0 {
			t.Fatalf("%s: bound must be negative, got %e", sampler, sum.Bound)
		}
	}

	// Lorentzian floor is deeper by 16/(3*pi)
	k, ok := SamplerLorentzian.KFactor()
	if !ok || !closeTo(k, 16.0/(3.0*math.Pi), 1e-15) {
		t.Fatalf("lorentzian K factor: got %f", k)
	}
}

func TestSumWindowDt(t *testing.T) {
	snap := telemetry.Snapshot{Duty: []telemetry.DutySample{{Duty: 0.2, At: testNow}}}
	ec := DefaultContext()
	ec.WindowMs = 500

	sum := EvaluateSnapshot(calculatedState(), snap, ec, testNow)

	// On-time within the window: duty * window in seconds
	if !closeTo(sum.SumWindowDt, 0.2*0.5, 1e-12) {
		t.Fatalf("sumWindowDt: expected 0.1, got %f", sum.SumWindowDt)
	}
}

func TestEvaluatorDegradesOnFeedError(t *testing.T) {
	ev := NewEvaluatorWithClock(failingFeed{}, func() time.Time { return testNow })

	sum := ev.Evaluate(context.Background(), calculatedState(), DefaultContext())

	if sum.ApplicabilityReasonCode != CodeSignalMissing {
		t.Fatalf("feed error must degrade to SIGNAL_MISSING, got %s", sum.ApplicabilityReasonCode)
	}
	if sum.Classification != ClassApplicabilityLimited {
		t.Fatalf("expected applicability_limited, got %s", sum.Classification)
	}
}

type failingFeed struct{}

func (failingFeed) Snapshot(context.Context) (telemetry.Snapshot, error) {
	return telemetry.Snapshot{}, errors.New("bucket unreachable")
}

func closeTo(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
