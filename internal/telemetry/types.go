// Package telemetry defines the live-feed contract the guardrail evaluates
// against: timestamped tile densities, gate pulses, pump tones, and duty
// measurements, plus the feed implementations that deliver them.
package telemetry

import (
	"context"
	"time"
)

// #region samples

// TileSample is one negative-energy-density reading from a hull tile sensor.
type TileSample struct {
	Source string    `json:"source"`
	RhoJm3 float64   `json:"rho"`
	Weight float64   `json:"weight"`
	At     time.Time `json:"at"`
}

// GatePulse is one scheduled drive pulse reported by the sector gate.
type GatePulse struct {
	Source string    `json:"source"`
	RhoJm3 float64   `json:"rho"`
	At     time.Time `json:"at"`
}

// Tone is one modulation component of a pump command.
type Tone struct {
	DepthJm3 float64 `json:"depth"`
	FreqHz   float64 `json:"freq"`
	PhaseRad float64 `json:"phase"`
}

// PumpCommand is a baseline density with superposed tones, stamped at the
// moment the command was issued.
type PumpCommand struct {
	Source string    `json:"source"`
	Rho0   float64   `json:"rho0"`
	Tones  []Tone    `json:"tones"`
	At     time.Time `json:"at"`
}

// DutySample is one measured duty-cycle reading.
type DutySample struct {
	Duty float64   `json:"duty"`
	At   time.Time `json:"at"`
}

// #endregion samples

// #region snapshot

// Snapshot bundles everything a single guardrail evaluation may consult. A
// feed returns recent samples; freshness filtering happens in the evaluator.
type Snapshot struct {
	Tiles  []TileSample  `json:"tiles"`
	Pulses []GatePulse   `json:"pulses"`
	Pumps  []PumpCommand `json:"pumps"`
	Duty   []DutySample  `json:"duty"`
}

// Clone returns an independent deep copy.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Tiles:  append([]TileSample(nil), s.Tiles...),
		Pulses: append([]GatePulse(nil), s.Pulses...),
		Duty:   append([]DutySample(nil), s.Duty...),
	}
	if s.Pumps != nil {
		out.Pumps = make([]PumpCommand, len(s.Pumps))
		for i, p := range s.Pumps {
			p.Tones = append([]Tone(nil), p.Tones...)
			out.Pumps[i] = p
		}
	}
	return out
}

// #endregion snapshot

// #region feed

// Feed abstracts the telemetry source so the evaluator can be tested without
// a live backend.
type Feed interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// #endregion feed
