// Package replay re-executes recorded pipeline histories outside the engine
// and checks the outcome of every step against its recorded expectation.
// Because the calculator is deterministic, a clean replay proves the stored
// chain and the current algorithm still agree.
package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/transition"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a recorded history.
type Fixture struct {
	Description string                 `json:"description,omitempty"`
	StartState  pipeline.State         `json:"startState"`
	Context     guardrail.Context      `json:"context,omitempty"`
	Checks      []transition.CheckName `json:"checks,omitempty"`
	Steps       []Step                 `json:"steps"`
	Expected    []Expected             `json:"expected,omitempty"`
}

// Expected pins the published values of one replayed step.
type Expected struct {
	StepID          string  `json:"stepId"`
	Mode            string  `json:"mode"`
	Status          string  `json:"status"`
	PowerAvgMW      float64 `json:"powerAvgMW"`
	ExoticMassRawKg float64 `json:"exoticMassRawKg"`
	Zeta            float64 `json:"zeta"`
	FallbackApplied bool    `json:"fallbackApplied"`
}

// ReplayConfig converts the fixture's context and check order into a runnable
// config, falling back to defaults where the fixture leaves them empty.
func (f *Fixture) ReplayConfig() ReplayConfig {
	config := DefaultReplayConfig()
	if f.Context != (guardrail.Context{}) {
		config.EvalContext = f.Context
	}
	if len(f.Checks) > 0 {
		config.Checks = transition.Config{Checks: f.Checks}
	}
	return config
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("fixture %s has no steps", path)
	}
	return &f, nil
}

// #endregion fixture-loader

// #region verification

// Mismatch is one divergence between a replayed step and its expectation.
type Mismatch struct {
	StepID string
	Field  string
	Want   string
	Got    string
}

// Verify compares replayed results against expectations, pairing by order.
// Derived values must match exactly: the calculator is a pure function of
// the configuration, so any drift means the algorithm or a constant changed.
func Verify(results []Result, expected []Expected) []Mismatch {
	var mismatches []Mismatch

	n := len(results)
	if len(expected) < n {
		n = len(expected)
	}
	for i := 0; i < n; i++ {
		r, e := results[i], expected[i]
		check := func(field, want, got string) {
			if want != got {
				mismatches = append(mismatches, Mismatch{
					StepID: e.StepID,
					Field:  field,
					Want:   want,
					Got:    got,
				})
			}
		}
		check("mode", e.Mode, string(r.Mode))
		check("status", e.Status, string(r.Status))
		check("powerAvgMW", FormatFloat(e.PowerAvgMW), FormatFloat(r.PowerAvgMW))
		check("exoticMassRawKg", FormatFloat(e.ExoticMassRawKg), FormatFloat(r.ExoticMassRawKg))
		check("zeta", FormatFloat(e.Zeta), FormatFloat(r.Zeta))
		check("fallbackApplied", strconv.FormatBool(e.FallbackApplied), strconv.FormatBool(r.FallbackApplied))
	}

	if len(results) != len(expected) {
		mismatches = append(mismatches, Mismatch{
			Field: "stepCount",
			Want:  strconv.Itoa(len(expected)),
			Got:   strconv.Itoa(len(results)),
		})
	}
	return mismatches
}

// FormatFloat renders a float with the shortest representation that parses
// back to the same bits, so string equality implies bit equality.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// #endregion verification
