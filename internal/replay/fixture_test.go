package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pestypig/casimirbot/internal/guardrail"
)

// helper: build Expected entries from a clean replay of the given steps.
func recordExpected(steps []Step, config ReplayConfig) []Expected {
	results := Replay(replayStart(), steps, config)
	expected := make([]Expected, len(results))
	for i, r := range results {
		expected[i] = Expected{
			StepID:          r.StepID,
			Mode:            string(r.Mode),
			Status:          string(r.Status),
			PowerAvgMW:      r.PowerAvgMW,
			ExoticMassRawKg: r.ExoticMassRawKg,
			Zeta:            r.Zeta,
			FallbackApplied: r.FallbackApplied,
		}
	}
	return expected
}

// TestFixture_RoundTrip writes a recorded history to disk, loads it back, and
// replays it. The reloaded run must verify clean against the recorded
// expectations: JSON round-trips float64 exactly, so nothing may drift.
func TestFixture_RoundTrip(t *testing.T) {
	steps := []Step{
		gapStep("s1", 1.4),
		modeStep("s2", "hover", freshSnapshot(replayNow)),
		modeStep("s3", "cruise", nil),
	}
	f := Fixture{
		Description: "round-trip history",
		StartState:  replayStart(),
		Context:     guardrail.DefaultContext(),
		Steps:       steps,
		Expected:    recordExpected(steps, DefaultReplayConfig()),
	}

	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if loaded.Description != f.Description {
		t.Fatalf("expected description %q, got %q", f.Description, loaded.Description)
	}
	if len(loaded.Steps) != len(steps) {
		t.Fatalf("expected %d steps, got %d", len(steps), len(loaded.Steps))
	}

	results := Replay(loaded.StartState, loaded.Steps, loaded.ReplayConfig())
	mismatches := Verify(results, loaded.Expected)
	if len(mismatches) != 0 {
		t.Fatalf("expected clean replay, got %d mismatches: %+v", len(mismatches), mismatches)
	}
}

// TestVerify_DetectsDrift tampers with one expected value and confirms the
// verifier pins it to the right step and field.
func TestVerify_DetectsDrift(t *testing.T) {
	steps := []Step{gapStep("s1", 1.4), gapStep("s2", 2.0)}
	config := DefaultReplayConfig()
	expected := recordExpected(steps, config)
	expected[1].PowerAvgMW *= 1.001

	results := Replay(replayStart(), steps, config)
	mismatches := Verify(results, expected)

	if len(mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d: %+v", len(mismatches), mismatches)
	}
	m := mismatches[0]
	if m.StepID != "s2" {
		t.Errorf("expected stepId s2, got %s", m.StepID)
	}
	if m.Field != "powerAvgMW" {
		t.Errorf("expected field powerAvgMW, got %s", m.Field)
	}
}

// TestVerify_StepCountMismatch flags expectation lists of the wrong length.
func TestVerify_StepCountMismatch(t *testing.T) {
	steps := []Step{gapStep("s1", 1.4)}
	config := DefaultReplayConfig()
	expected := recordExpected(steps, config)
	expected = append(expected, Expected{StepID: "ghost"})

	results := Replay(replayStart(), steps, config)
	mismatches := Verify(results, expected)

	if len(mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d: %+v", len(mismatches), mismatches)
	}
	if mismatches[0].Field != "stepCount" {
		t.Errorf("expected field stepCount, got %s", mismatches[0].Field)
	}
}

// TestFixtureReplayConfig_Defaults confirms an empty context falls back to
// the standing evaluation defaults.
func TestFixtureReplayConfig_Defaults(t *testing.T) {
	f := Fixture{}
	config := f.ReplayConfig()

	if config.EvalContext != guardrail.DefaultContext() {
		t.Fatalf("expected default context, got %+v", config.EvalContext)
	}
	if len(config.Checks.Checks) == 0 {
		t.Fatal("expected default check order")
	}
}

// TestFixtureReplayConfig_Override confirms fixture values win over defaults.
func TestFixtureReplayConfig_Override(t *testing.T) {
	f := Fixture{
		Context: guardrail.Context{WindowMs: 500, Sampler: "lorentzian", PolicyMaxZeta: 5.0},
	}
	config := f.ReplayConfig()

	if config.EvalContext.WindowMs != 500 {
		t.Fatalf("expected windowMs 500, got %v", config.EvalContext.WindowMs)
	}
	if config.EvalContext.Sampler != "lorentzian" {
		t.Fatalf("expected lorentzian sampler, got %s", config.EvalContext.Sampler)
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestLoadFixture_Malformed verifies error on invalid JSON.
func TestLoadFixture_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json}"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := LoadFixture(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// TestLoadFixture_NoSteps verifies error on an empty history.
func TestLoadFixture_NoSteps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(path, []byte(`{"steps": []}`), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := LoadFixture(path)
	if err == nil {
		t.Fatal("expected error for fixture without steps, got nil")
	}
}
