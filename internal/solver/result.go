// Package solver holds the consumed contract of the external
// Lichnerowicz-York initial-data solver: a result record with status and
// constraint residuals. The algorithm itself runs elsewhere.
package solver

import (
	"fmt"
	"time"

	"github.com/pestypig/casimirbot/internal/pipeline"
)

// #region result
// Status values reported by the external solver.
const (
	StatusConverged = "converged"
	StatusDiverged  = "diverged"
	StatusStalled   = "stalled"
)

// Result is one solver run as received from the collaborator.
type Result struct {
	Status              string    `json:"status"`
	HamiltonianResidual float64   `json:"hamiltonianResidual"`
	MomentumResidual    float64   `json:"momentumResidual"`
	Iterations          int       `json:"iterations"`
	CompletedAt         time.Time `json:"completedAt"`
}

// Validate rejects records that cannot be interpreted at all; residual
// magnitude is judged downstream, not here.
func (r Result) Validate() error {
	switch r.Status {
	case StatusConverged, StatusDiverged, StatusStalled:
	default:
		return fmt.Errorf("unknown solver status %q", r.Status)
	}
	if r.Iterations < 0 {
		return fmt.Errorf("negative iteration count %d", r.Iterations)
	}
	return nil
}

// Report converts the wire record into the constraint report the pipeline
// consumes. The max of the two residuals is what the constraint flag judges.
func (r Result) Report() pipeline.ConstraintReport {
	max := r.HamiltonianResidual
	if r.MomentumResidual > max {
		max = r.MomentumResidual
	}
	return pipeline.ConstraintReport{
		Attached:    true,
		Status:      r.Status,
		MaxResidual: max,
		Iterations:  r.Iterations,
		CheckedAt:   r.CompletedAt,
	}
}

// #endregion result
