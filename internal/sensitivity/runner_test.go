package sensitivity

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/telemetry"
)

const testSeed = int64(1756000000)

func testRunner() *Runner {
	base := pipeline.Calculate(pipeline.DefaultState())
	at := time.Unix(testSeed, 0).UTC()
	snap := telemetry.Snapshot{
		Tiles: []telemetry.TileSample{
			{Source: "warp.metric.t00", RhoJm3: -3.2e-5, Weight: 1.0, At: at},
		},
	}
	return NewRunner(base, snap)
}

func sweepBases() []BaseCase {
	return []BaseCase{
		{Label: "win.250", WindowMs: 250, Sampler: guardrail.SamplerGaussian, FieldType: "natario_shift", PolicyMaxZeta: 10},
		{Label: "win.1000", WindowMs: 1000, Sampler: guardrail.SamplerLorentzian, FieldType: "natario_shift", PolicyMaxZeta: 10},
	}
}

func sweepSecondaries() []SecondaryCase {
	return []SecondaryCase{
		{Label: "gap.1nm", GapNm: 1.0, CasimirModel: "ideal_parallel_plate"},
		{Label: "gap.2nm", GapNm: 2.0, CasimirModel: "ideal_parallel_plate"},
	}
}

func TestRunByteIdenticalForSameSeed(t *testing.T) {
	first := testRunner().Run(testSeed, sweepBases(), sweepSecondaries())
	second := testRunner().Run(testSeed, sweepBases(), sweepSecondaries())

	a, err := first.Serialize()
	if err != nil {
		t.Fatalf("serialize first run: %v", err)
	}
	b, err := second.Serialize()
	if err != nil {
		t.Fatalf("serialize second run: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected byte-identical runs for seed %d", testSeed)
	}
}

func TestCaseIsolationMatchesSoloRun(t *testing.T) {
	bases := sweepBases()
	secondaries := []SecondaryCase{{Label: "gap.2nm", GapNm: 2.0}}

	batched := testRunner().Run(testSeed, bases, secondaries)
	solo := testRunner().Run(testSeed, bases[1:], secondaries)

	if len(batched.Cases) != 2 || len(solo.Cases) != 1 {
		t.Fatalf("expected 2 batched and 1 solo case, got %d and %d", len(batched.Cases), len(solo.Cases))
	}
	if !reflect.DeepEqual(batched.Cases[1], solo.Cases[0]) {
		t.Fatalf("expected case %q to be identical batched or solo", bases[1].Label)
	}
}

func TestGridTruncatesAtCapInBaseMajorOrder(t *testing.T) {
	bases := []BaseCase{
		{Label: "b0"}, {Label: "b1"}, {Label: "b2"}, {Label: "b3"},
	}
	secondaries := []SecondaryCase{
		{Label: "s0"}, {Label: "s1"}, {Label: "s2"},
	}

	res := testRunner().Run(testSeed, bases, secondaries)

	if res.RequestedCases != 12 {
		t.Fatalf("expected 12 requested cases, got %d", res.RequestedCases)
	}
	if !res.Truncated {
		t.Fatalf("expected truncation flag for 12 requested cases")
	}
	if len(res.Cases) != MaxCases {
		t.Fatalf("expected %d cases after truncation, got %d", MaxCases, len(res.Cases))
	}
	want := []string{"b0/s0", "b0/s1", "b0/s2", "b1/s0", "b1/s1", "b1/s2", "b2/s0", "b2/s1"}
	for i, c := range res.Cases {
		got := c.BaseLabel + "/" + c.SecondaryLabel
		if got != want[i] {
			t.Fatalf("case %d: expected %q, got %q", i, want[i], got)
		}
	}
}

func TestRunIDDerivesFromSeedOnly(t *testing.T) {
	a := testRunner().Run(testSeed, nil, nil)
	b := testRunner().Run(testSeed, sweepBases(), sweepSecondaries())
	c := testRunner().Run(testSeed+1, nil, nil)

	if a.RunID != b.RunID {
		t.Fatalf("expected identical run IDs for seed %d, got %q and %q", testSeed, a.RunID, b.RunID)
	}
	if a.RunID == c.RunID {
		t.Fatalf("expected distinct run IDs for distinct seeds, both %q", a.RunID)
	}
}

func TestSecondaryGapOverrideScalesPower(t *testing.T) {
	res := testRunner().Run(testSeed, sweepBases()[:1], sweepSecondaries())

	if len(res.Cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(res.Cases))
	}
	narrow, wide := res.Cases[0], res.Cases[1]
	if narrow.GapNm != 1.0 || wide.GapNm != 2.0 {
		t.Fatalf("expected gaps 1.0 and 2.0, got %v and %v", narrow.GapNm, wide.GapNm)
	}
	ratio := narrow.PowerAvgMW / wide.PowerAvgMW
	if ratio < 7.9 || ratio > 8.1 {
		t.Fatalf("expected ~8x power ratio across a gap doubling, got %v", ratio)
	}
}

func TestEmptyGridsCollapseToSingleCase(t *testing.T) {
	res := testRunner().Run(testSeed, nil, nil)

	if len(res.Cases) != 1 {
		t.Fatalf("expected 1 case for empty grids, got %d", len(res.Cases))
	}
	c := res.Cases[0]
	if c.BaseLabel != "base.default" || c.SecondaryLabel != "secondary.baseline" {
		t.Fatalf("expected default labels, got %q/%q", c.BaseLabel, c.SecondaryLabel)
	}
	if res.Truncated {
		t.Fatalf("single case must not report truncation")
	}
}

func TestPinnedClockKeepsSnapshotFresh(t *testing.T) {
	res := testRunner().Run(testSeed, sweepBases()[:1], nil)

	sum := res.Cases[0].Summary
	if sum.RhoSource != "warp.metric.t00" {
		t.Fatalf("expected tile source under pinned clock, got %q", sum.RhoSource)
	}
	if !sum.EvaluatedAt.Equal(time.Unix(testSeed, 0).UTC()) {
		t.Fatalf("expected evaluation time pinned to seed, got %v", sum.EvaluatedAt)
	}
}
