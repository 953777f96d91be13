package pipeline

import "math"

// #region calculate
// Calculate is a pure function that recomputes every derived field from the
// configuration fields and the constant table. It never errors for finite
// positive inputs; degenerate denominators are clamped to Eps.
func Calculate(s State) State {
	if s.Variant == VariantCalibrated {
		return calibrate(s)
	}
	s.Variant = VariantRaw
	s = computeRaw(s)
	return audit(s)
}

// ApplyMode sets the mode and its scheduling knobs, then recomputes.
func ApplyMode(s State, m Mode) State {
	s.Mode = m
	return Calculate(s)
}

// computeRaw runs the fixed-order pipeline without the calibration branch or
// the audit. Callers always follow with audit().
func computeRaw(s State) State {
	// 1. Hull surface area, Knud-Thomsen ellipsoid approximation.
	a := s.HullLxM / 2
	b := s.HullLyM / 2
	c := s.HullLzM / 2
	s.HullAreaM2 = knudThomsenArea(a, b, c)

	// 2. Tile count over stacked radial layers.
	tileArea := clampPositive(s.TileAreaM2)
	footprints := math.Floor(s.HullAreaM2 / tileArea)
	s.TileCount = int64(footprints) * RadialLayers
	if s.TileCount < 1 {
		s.TileCount = 1
	}

	// 3. Static per-tile stored energy, gap^-3 scaling, always negative.
	gapM := clampPositive(s.GapNm * 1e-9)
	s.UStaticJ = -(math.Pi * math.Pi * HBar * LightSpeed) / (720 * gapM * gapM * gapM) * tileArea

	// 4. Geometric amplification.
	s.UGeoJ = s.UStaticJ * s.GammaGeo

	// 5. Raw-physics stored energy carries no implicit mechanical gain.
	s.UQJ = s.UGeoJ

	// 6. Mode knobs come only from the fixed lookup table.
	s.Knobs = ProfileFor(s.Mode)

	// 7. Sector schedule: one live sector of the fixed total.
	s.SectorTotal = SectorCount
	s.SectorsLive = LiveSectors
	sectors := clampPositive(float64(s.SectorTotal))
	s.ActiveFraction = float64(s.SectorsLive) / sectors
	s.TilesPerSector = s.TileCount / int64(SectorCount)
	s.ActiveTiles = s.TilesPerSector

	// 8. Effective duty: local RF burst x global sector rotation.
	s.DutyEffective = LocalBurstDuty * s.ActiveFraction

	// 9. Power.
	omega := 2 * math.Pi * s.ModFreqHz
	pTile := math.Abs(s.UQJ) * omega / QBurst
	s.PowerRawW = pTile * float64(s.TileCount)
	s.PowerAvgMW = s.PowerRawW * s.DutyEffective / 1e6
	s.UDutyJ = s.UQJ * s.DutyEffective

	// 10. Exotic mass.
	geo3 := s.GammaGeo * s.GammaGeo * s.GammaGeo
	eTile := math.Abs(s.UStaticJ) * geo3 * QBurst * s.GammaVdB * s.DutyEffective
	s.ExoticMassRawKg = eTile * float64(s.TileCount) / (LightSpeed * LightSpeed)
	s.ExoticMassCalKg = s.ExoticMassRawKg

	// 11. Time-scale separation: light crossing over modulation period. The
	// longest-dimension ratio is the conservative primary.
	freq := clampPositive(s.ModFreqHz)
	longest := maxDim(s.HullLxM, s.HullLyM, s.HullLzM)
	geoMean := math.Cbrt(s.HullLxM * s.HullLyM * s.HullLzM)
	s.TimeScaleHull = (longest / LightSpeed) * freq
	s.TimeScaleGeoMean = (geoMean / LightSpeed) * freq
	s.TimeScaleRatio = s.TimeScaleHull

	// 12. Ford-Roman proxy.
	s.Zeta = 1 / (clampPositive(s.DutyEffective) * math.Sqrt(QQuantum))
	s.FordRomanCompliance = s.Zeta < 1.0

	// Stress-energy pair (w = -1) and Natario shift, closed form.
	rho0 := -(math.Pi * math.Pi * HBar * LightSpeed) / (720 * gapM * gapM * gapM * gapM)
	s.StressEnergyT00 = rho0 * geo3 * s.GammaVdB
	s.StressEnergyT11 = -s.StressEnergyT00
	rHull := longest / 2
	s.ShiftAmplitude = math.Sqrt(8*math.Pi*GravitationalG*math.Abs(s.StressEnergyT00)/(LightSpeed*LightSpeed)) * rHull / LightSpeed
	s.ShiftAvg = s.ShiftAmplitude * math.Sqrt(s.DutyEffective)
	s.HomogenizationRatio = (LocalBurstDuty / freq) / (longest / LightSpeed)

	// Remaining compliance flags.
	s.NatarioConstraint = s.Solver.Satisfied()
	s.GRValidity = s.TimeScaleRatio >= GRValidityMinRatio && s.HomogenizationRatio < GRValidityMaxHomogAt

	// 13. Overall status.
	s.OverallStatus = statusOf(s)

	return s
}

// #endregion calculate

// #region audit
// audit independently recomputes the published average power and exotic mass
// from the final committed values and overwrites any published value that
// diverges beyond the relative tolerance. Runs as the mandatory last step of
// both variants.
func audit(s State) State {
	gapM := clampPositive(s.GapNm * 1e-9)
	tileArea := clampPositive(s.TileAreaM2)
	uStatic := (math.Pi * math.Pi * HBar * LightSpeed) / (720 * gapM * gapM * gapM) * tileArea
	geo3 := s.GammaGeo * s.GammaGeo * s.GammaGeo
	omega := 2 * math.Pi * s.ModFreqHz

	gain := 1.0
	if s.Variant == VariantCalibrated {
		gain = s.QMechanical
	}

	pTile := uStatic * s.GammaGeo * gain * omega / QBurst
	powerMW := pTile * float64(s.TileCount) * s.DutyEffective / 1e6
	if relDiff(s.PowerAvgMW, powerMW) > AuditRelTol {
		s.PowerAvgMW = powerMW
	}

	eTile := uStatic * geo3 * QBurst * s.GammaVdB * s.DutyEffective
	mass := eTile * float64(s.TileCount) / (LightSpeed * LightSpeed)
	published := s.ExoticMassRawKg
	if s.Variant == VariantCalibrated {
		published = s.ExoticMassCalKg
	}
	if relDiff(published, mass) > AuditRelTol {
		if s.Variant == VariantCalibrated {
			s.ExoticMassCalKg = mass
		} else {
			s.ExoticMassRawKg = mass
			s.ExoticMassCalKg = mass
		}
	}
	return s
}

// relDiff is |a-b| relative to the larger magnitude; absolute near zero.
func relDiff(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.Inf(1)
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < Eps {
		return 0
	}
	return math.Abs(a-b) / scale
}

// #endregion audit

// #region helpers
// knudThomsenArea approximates the ellipsoid surface area from semi-axes.
// Exact for a sphere.
func knudThomsenArea(a, b, c float64) float64 {
	p := KnudThomsenP
	ab := math.Pow(a*b, p)
	ac := math.Pow(a*c, p)
	bc := math.Pow(b*c, p)
	return 4 * math.Pi * math.Pow((ab+ac+bc)/3, 1/p)
}

func maxDim(x, y, z float64) float64 {
	return math.Max(x, math.Max(y, z))
}

// statusOf derives the tri-state condition from the committed flags and
// warning thresholds.
func statusOf(s State) Status {
	if !s.FordRomanCompliance || !s.NatarioConstraint || !s.GRValidity {
		return StatusCritical
	}
	if s.PowerAvgMW > PowerWarnMW || s.Zeta > ZetaWarn {
		return StatusWarning
	}
	return StatusNominal
}

// #endregion helpers
