package pipeline

import "math"

// #region calibration
// calibrate is the opt-in legacy branch: it back-solves QMechanical so the
// published average power meets the mode's ledger target, and GammaVdB so the
// published exotic mass meets the mass target. It runs as a post-processing
// stage on the caller's (already cloned) state and never alters the raw-mode
// formulas; the raw pipeline stays the authority for physics audits.
func calibrate(s State) State {
	s.Variant = VariantCalibrated
	s = computeRaw(s)

	rawPowerMW := s.PowerAvgMW
	rawMassKg := s.ExoticMassRawKg
	targets := TargetsFor(s.Mode)

	// Power is linear in the mechanical gain; mass is linear in GammaVdB.
	qMech := targets.PowerAvgW / clampPositive(rawPowerMW*1e6)
	vdb := s.GammaVdB * targets.ExoticMassKg / clampPositive(rawMassKg)
	s.QMechanical = qMech
	s.GammaVdB = vdb

	// Recompute with the calibrated amplification so the stress-energy and
	// shift fields track the committed GammaVdB, then restore the raw mass
	// for side-by-side display.
	s = computeRaw(s)
	s.ExoticMassCalKg = s.ExoticMassRawKg
	s.ExoticMassRawKg = rawMassKg

	// The calibrated stored-energy chain carries the mechanical gain.
	s.UQJ = s.UGeoJ * qMech
	s.UDutyJ = s.UQJ * s.DutyEffective
	s.PowerRawW *= qMech
	s.PowerAvgMW *= qMech

	s.OverallStatus = statusOf(s)
	return audit(s)
}

// #endregion calibration

// #region target-ledger
// ValidateTargets cross-checks the published outputs against the design-study
// ledger: exotic mass and average power as order-of-magnitude matches, zeta as
// a hard bound.
func ValidateTargets(s State) TargetChecks {
	mass := s.ExoticMassCalKg
	powerW := s.PowerAvgMW * 1e6

	checks := TargetChecks{
		Mass:  TargetCheck{Name: "exotic_mass_kg", Value: mass, Target: LedgerExoticMassKg, Pass: withinMagnitude(mass, LedgerExoticMassKg)},
		Power: TargetCheck{Name: "power_avg_w", Value: powerW, Target: LedgerPowerAvgW, Pass: withinMagnitude(powerW, LedgerPowerAvgW)},
		Zeta:  TargetCheck{Name: "zeta", Value: s.Zeta, Target: LedgerZetaMax, Pass: s.Zeta < LedgerZetaMax},
	}
	switch {
	case checks.Mass.Pass && checks.Power.Pass && checks.Zeta.Pass:
		checks.OverallStatus = StatusNominal
	case checks.Zeta.Pass:
		checks.OverallStatus = StatusWarning
	default:
		checks.OverallStatus = StatusCritical
	}
	return checks
}

// withinMagnitude reports |log10(value/target)| <= 1 for positive finite
// values.
func withinMagnitude(value, target float64) bool {
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	return math.Abs(math.Log10(value/target)) <= ledgerMagnitudeTol
}

// #endregion target-ledger
