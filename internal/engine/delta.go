package engine

import (
	"errors"
	"fmt"

	"github.com/pestypig/casimirbot/internal/pipeline"
)

// ErrInvalidDelta marks a delta naming an unknown mode or variant.
var ErrInvalidDelta = errors.New("invalid config delta")

// #region config-delta

// ConfigDelta is a partial configuration update. Nil fields keep the current
// value; the binding tags are enforced at the HTTP boundary.
type ConfigDelta struct {
	TileAreaM2   *float64 `json:"tileAreaM2,omitempty" binding:"omitempty,gt=0"`
	HullLxM      *float64 `json:"hullLxM,omitempty" binding:"omitempty,gt=0"`
	HullLyM      *float64 `json:"hullLyM,omitempty" binding:"omitempty,gt=0"`
	HullLzM      *float64 `json:"hullLzM,omitempty" binding:"omitempty,gt=0"`
	GapNm        *float64 `json:"gapNm,omitempty" binding:"omitempty,gte=0"`
	WallSagNm    *float64 `json:"wallSagNm,omitempty" binding:"omitempty,gte=0"`
	CasimirModel *string  `json:"casimirModel,omitempty"`
	TemperatureK *float64 `json:"temperatureK,omitempty" binding:"omitempty,gte=0"`
	ModFreqHz    *float64 `json:"modFreqHz,omitempty" binding:"omitempty,gte=0"`
	Mode         *string  `json:"mode,omitempty"`
	GammaGeo     *float64 `json:"gammaGeo,omitempty" binding:"omitempty,gt=0"`
	QMechanical  *float64 `json:"qMechanical,omitempty" binding:"omitempty,gt=0"`
	QCavity      *float64 `json:"qCavity,omitempty" binding:"omitempty,gt=0"`
	GammaVdB     *float64 `json:"gammaVanDenBroeck,omitempty" binding:"omitempty,gt=0"`
	MassTargetKg *float64 `json:"massTargetKg,omitempty" binding:"omitempty,gt=0"`
	Variant      *string  `json:"variant,omitempty"`

	Solver *pipeline.ConstraintReport `json:"solver,omitempty"`
}

// Apply overlays the delta onto a state copy. Mode and variant strings are
// validated; everything else was bounds-checked at the boundary.
func (d ConfigDelta) Apply(s pipeline.State) (pipeline.State, error) {
	if d.TileAreaM2 != nil {
		s.TileAreaM2 = *d.TileAreaM2
	}
	if d.HullLxM != nil {
		s.HullLxM = *d.HullLxM
	}
	if d.HullLyM != nil {
		s.HullLyM = *d.HullLyM
	}
	if d.HullLzM != nil {
		s.HullLzM = *d.HullLzM
	}
	if d.GapNm != nil {
		s.GapNm = *d.GapNm
	}
	if d.WallSagNm != nil {
		s.WallSagNm = *d.WallSagNm
	}
	if d.CasimirModel != nil {
		s.CasimirModel = *d.CasimirModel
	}
	if d.TemperatureK != nil {
		s.TemperatureK = *d.TemperatureK
	}
	if d.ModFreqHz != nil {
		s.ModFreqHz = *d.ModFreqHz
	}
	if d.Mode != nil {
		m, err := pipeline.ParseMode(*d.Mode)
		if err != nil {
			return pipeline.State{}, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
		}
		s.Mode = m
	}
	if d.GammaGeo != nil {
		s.GammaGeo = *d.GammaGeo
	}
	if d.QMechanical != nil {
		s.QMechanical = *d.QMechanical
	}
	if d.QCavity != nil {
		s.QCavity = *d.QCavity
	}
	if d.GammaVdB != nil {
		s.GammaVdB = *d.GammaVdB
	}
	if d.MassTargetKg != nil {
		s.MassTargetKg = *d.MassTargetKg
	}
	if d.Variant != nil {
		switch pipeline.Variant(*d.Variant) {
		case pipeline.VariantRaw, pipeline.VariantCalibrated:
			s.Variant = pipeline.Variant(*d.Variant)
		default:
			return pipeline.State{}, fmt.Errorf("%w: unknown variant %q", ErrInvalidDelta, *d.Variant)
		}
	}
	if d.Solver != nil {
		s.Solver = *d.Solver
	}
	return s, nil
}

// FullDelta captures every configuration field of a state as an explicit
// delta. Applying it to any state reproduces the captured configuration.
func FullDelta(s pipeline.State) ConfigDelta {
	mode := string(s.Mode)
	variant := string(s.Variant)
	solver := s.Solver
	return ConfigDelta{
		TileAreaM2:   &s.TileAreaM2,
		HullLxM:      &s.HullLxM,
		HullLyM:      &s.HullLyM,
		HullLzM:      &s.HullLzM,
		GapNm:        &s.GapNm,
		WallSagNm:    &s.WallSagNm,
		CasimirModel: &s.CasimirModel,
		TemperatureK: &s.TemperatureK,
		ModFreqHz:    &s.ModFreqHz,
		Mode:         &mode,
		GammaGeo:     &s.GammaGeo,
		QMechanical:  &s.QMechanical,
		QCavity:      &s.QCavity,
		GammaVdB:     &s.GammaVdB,
		MassTargetKg: &s.MassTargetKg,
		Variant:      &variant,
		Solver:       &solver,
	}
}

// #endregion config-delta
