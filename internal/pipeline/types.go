package pipeline

import (
	"fmt"
	"time"
)

// #region mode
// Mode enumerates the operational modes of the platform.
type Mode string

const (
	ModeStandby   Mode = "standby"
	ModeTaxi      Mode = "taxi"
	ModeNearZero  Mode = "nearzero"
	ModeHover     Mode = "hover"
	ModeCruise    Mode = "cruise"
	ModeEmergency Mode = "emergency"
)

// Modes lists every mode in canonical order.
func Modes() []Mode {
	return []Mode{ModeStandby, ModeTaxi, ModeNearZero, ModeHover, ModeCruise, ModeEmergency}
}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if _, ok := modeTable[m]; !ok {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// ModeProfile holds the scheduling knobs derived from the current mode.
type ModeProfile struct {
	DutyCycle       float64 `json:"dutyCycle"`
	SectorStrobing  int     `json:"sectorStrobing"`
	QSpoilingFactor float64 `json:"qSpoilingFactor"`
}

// #endregion mode

// #region status
// Status is the tri-state overall condition of the platform.
type Status string

const (
	StatusNominal  Status = "NOMINAL"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// #endregion status

// #region variant
// Variant selects between the authoritative raw physics model and the
// legacy-calibrated model.
type Variant string

const (
	VariantRaw        Variant = "raw"
	VariantCalibrated Variant = "calibrated"
)

// #endregion variant

// #region constraint-report
// ConstraintReport is the consumed slice of an external initial-data solver
// run: status and residual only, never the algorithm.
type ConstraintReport struct {
	Attached    bool      `json:"attached"`
	Status      string    `json:"status"`
	MaxResidual float64   `json:"maxResidual"`
	Iterations  int       `json:"iterations"`
	CheckedAt   time.Time `json:"checkedAt"`
}

// Satisfied reports whether the attached solver run (if any) holds the
// Natario zero-expansion constraint. With no attachment the constraint is
// satisfied by construction.
func (r ConstraintReport) Satisfied() bool {
	if !r.Attached {
		return true
	}
	return r.Status == "converged" && r.MaxResidual <= NatarioResidualThreshold
}

// #endregion constraint-report

// #region pipeline-state
// State is the single configuration+derived record the whole platform runs
// on. Derived fields are a pure function of the configuration fields and the
// constant table; identical configuration reproduces them bit-for-bit.
type State struct {
	// Configuration
	TileAreaM2   float64          `json:"tileAreaM2"`
	HullLxM      float64          `json:"hullLxM"`
	HullLyM      float64          `json:"hullLyM"`
	HullLzM      float64          `json:"hullLzM"`
	GapNm        float64          `json:"gapNm"`
	WallSagNm    float64          `json:"wallSagNm"`
	CasimirModel string           `json:"casimirModel"`
	TemperatureK float64          `json:"temperatureK"`
	ModFreqHz    float64          `json:"modFreqHz"`
	Mode         Mode             `json:"mode"`
	GammaGeo     float64          `json:"gammaGeo"`
	QMechanical  float64          `json:"qMechanical"`
	QCavity      float64          `json:"qCavity"`
	GammaVdB     float64          `json:"gammaVanDenBroeck"`
	MassTargetKg float64          `json:"exoticMassTargetKg"`
	Variant      Variant          `json:"variant"`
	Knobs        ModeProfile      `json:"knobs"`
	Solver       ConstraintReport `json:"solver"`

	// Derived: geometry and schedule
	HullAreaM2     float64 `json:"hullAreaM2"`
	TileCount      int64   `json:"tileCount"`
	TilesPerSector int64   `json:"tilesPerSector"`
	ActiveTiles    int64   `json:"activeTiles"`
	SectorTotal    int     `json:"sectorCount"`
	SectorsLive    int     `json:"liveSectors"`
	ActiveFraction float64 `json:"activeFraction"`
	DutyEffective  float64 `json:"dutyEffective"`

	// Derived: energies (per tile, joules)
	UStaticJ float64 `json:"uStaticJ"`
	UGeoJ    float64 `json:"uGeoJ"`
	UQJ      float64 `json:"uQJ"`
	UDutyJ   float64 `json:"uDutyJ"`

	// Derived: power and mass
	PowerRawW        float64 `json:"powerRawW"`
	PowerAvgMW       float64 `json:"powerAvgMW"`
	ExoticMassRawKg  float64 `json:"exoticMassRawKg"`
	ExoticMassCalKg  float64 `json:"exoticMassCalibratedKg"`
	TimeScaleRatio   float64 `json:"tsRatioPrimary"`
	TimeScaleHull    float64 `json:"tsRatioHull"`
	TimeScaleGeoMean float64 `json:"tsRatioGeoMean"`
	Zeta             float64 `json:"zeta"`

	// Derived: stress-energy and shift (closed form, w = -1)
	StressEnergyT00     float64 `json:"stressEnergyT00"`
	StressEnergyT11     float64 `json:"stressEnergyT11"`
	ShiftAmplitude      float64 `json:"natarioShiftAmplitude"`
	ShiftAvg            float64 `json:"natarioShiftAvg"`
	HomogenizationRatio float64 `json:"homogenizationRatio"`

	// Derived: compliance
	FordRomanCompliance bool   `json:"fordRomanCompliance"`
	NatarioConstraint   bool   `json:"natarioConstraint"`
	GRValidity          bool   `json:"grValidity"`
	OverallStatus       Status `json:"status"`
}

// Clone returns an independent deep copy. State holds no reference types, so
// a value copy is a full copy; keep mutations on clones away from the shared
// instance.
func (s State) Clone() State {
	return s
}

// DefaultState returns the Needle Hull Mk-1 baseline configuration with
// derived fields unset; callers run Calculate to fill them.
func DefaultState() State {
	return State{
		TileAreaM2:   2.5e-3,
		HullLxM:      82.0,
		HullLyM:      11.0,
		HullLzM:      11.0,
		GapNm:        1.0,
		WallSagNm:    16.0,
		CasimirModel: "ideal_parallel_plate",
		TemperatureK: 4.0,
		ModFreqHz:    15e9,
		Mode:         ModeStandby,
		GammaGeo:     25.0,
		QMechanical:  1.0,
		QCavity:      1e9,
		GammaVdB:     1e11,
		MassTargetKg: 1400.0,
		Variant:      VariantRaw,
	}
}

// #endregion pipeline-state

// #region target-checks
// TargetCheck compares one published quantity against the design-study ledger.
type TargetCheck struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Target float64 `json:"target"`
	Pass   bool    `json:"pass"`
}

// TargetChecks is the full ledger validation record.
type TargetChecks struct {
	Mass          TargetCheck `json:"massTarget"`
	Power         TargetCheck `json:"powerTarget"`
	Zeta          TargetCheck `json:"zetaTarget"`
	OverallStatus Status      `json:"overallStatus"`
}

// #endregion target-checks
