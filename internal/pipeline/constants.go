package pipeline

import "math"

// #region physical-constants
// Physical constants (SI).
const (
	HBar           = 1.054571817e-34 // reduced Planck constant, J*s
	LightSpeed     = 299792458.0     // m/s
	GravitationalG = 6.67430e-11     // m^3 kg^-1 s^-2
)

// #endregion physical-constants

// #region operational-constants
// Operational constants of the strobed Casimir lattice.
const (
	// RadialLayers counts stacked cavity layers per hull tile footprint.
	RadialLayers = 10

	// SectorCount is the fixed number of hull sectors in the strobe schedule.
	SectorCount = 400

	// LiveSectors is the instantaneous number of driven sectors.
	LiveSectors = 1

	// LocalBurstDuty is the fixed RF burst fraction within one sector activation.
	LocalBurstDuty = 0.01

	// QBurst is the cavity quality factor credited during a burst.
	QBurst = 1e9

	// QQuantum is the quantum-averaging quality factor in the Ford-Roman proxy.
	QQuantum = 1e12

	// KnudThomsenP is the exponent of the Knud-Thomsen ellipsoid area approximation.
	KnudThomsenP = 1.6075

	// PowerWarnMW and ZetaWarn are the WARNING thresholds on published outputs.
	PowerWarnMW = 100.0
	ZetaWarn    = 0.8

	// AuditRelTol is the relative tolerance of the self-consistency audit.
	AuditRelTol = 1e-6

	// Eps clamps denominators (gap, tile area, sector count) before division.
	Eps = 1e-30
)

// GR validity regime: modulation must sit far inside the light-crossing time
// and bursts must look homogeneous to the metric.
const (
	GRValidityMinRatio       = 100.0
	GRValidityMaxHomogAt     = 0.1
	NatarioResidualThreshold = 1e-8
)

// #endregion operational-constants

// #region mode-table
// modeTable maps each operational mode to its scheduling knobs. The knobs are
// display/scheduling metadata; the power and mass formulas use the fixed
// LocalBurstDuty x 1/SectorCount effective duty instead.
var modeTable = map[Mode]ModeProfile{
	ModeStandby:   {DutyCycle: 0.00, SectorStrobing: 0, QSpoilingFactor: 1.0},
	ModeTaxi:      {DutyCycle: 0.05, SectorStrobing: 40, QSpoilingFactor: 4.0},
	ModeNearZero:  {DutyCycle: 0.08, SectorStrobing: 80, QSpoilingFactor: 2.0},
	ModeHover:     {DutyCycle: 0.14, SectorStrobing: 200, QSpoilingFactor: 1.5},
	ModeCruise:    {DutyCycle: 0.22, SectorStrobing: 400, QSpoilingFactor: 1.0},
	ModeEmergency: {DutyCycle: 0.00, SectorStrobing: 0, QSpoilingFactor: 50.0},
}

// ProfileFor returns the scheduling knobs for a mode. Unknown modes fall back
// to the standby profile.
func ProfileFor(m Mode) ModeProfile {
	if p, ok := modeTable[m]; ok {
		return p
	}
	return modeTable[ModeStandby]
}

// #endregion mode-table

// #region legacy-targets
// CalibrationTargets holds the per-mode legacy values the calibration branch
// reproduces: published average power and exotic mass from the hover ledger.
type CalibrationTargets struct {
	PowerAvgW    float64
	ExoticMassKg float64
}

// Hover ledger values from the reference design study.
const (
	hoverPowerTargetW    = 83.3e6
	hoverMassTargetKg    = 1405.0
	hoverDutyCycle       = 0.14
	calibrationDutyFloor = 0.01
)

// TargetsFor scales the hover ledger to a mode by its duty-cycle ratio.
// Zero-duty modes (standby, emergency) use a small floor so the targets stay
// finite and positive.
func TargetsFor(m Mode) CalibrationTargets {
	duty := ProfileFor(m).DutyCycle
	if duty < calibrationDutyFloor {
		duty = calibrationDutyFloor
	}
	factor := duty / hoverDutyCycle
	return CalibrationTargets{
		PowerAvgW:    hoverPowerTargetW * factor,
		ExoticMassKg: hoverMassTargetKg * factor,
	}
}

// #endregion legacy-targets

// #region target-ledger
// Published targets the computed state is cross-checked against.
const (
	LedgerExoticMassKg = 1.4e3
	LedgerPowerAvgW    = 83e6
	LedgerZetaMax      = 1.0

	// Mass and power pass as order-of-magnitude matches.
	ledgerMagnitudeTol = 1.0
)

// #endregion target-ledger

// clampPositive returns v or Eps when v is not a positive finite number.
func clampPositive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < Eps {
		return Eps
	}
	return v
}
