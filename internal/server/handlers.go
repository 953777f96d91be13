package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pestypig/casimirbot/internal/engine"
	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/sensitivity"
	"github.com/pestypig/casimirbot/internal/solver"
	"github.com/pestypig/casimirbot/internal/transition"
)

// #region wire-types

// ErrorResponse is the wire shape of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StateEnvelope pairs the active state with its version identifier.
type StateEnvelope struct {
	VersionID string         `json:"versionId"`
	State     pipeline.State `json:"state"`
}

// TransitionRequest names the mode to move to.
type TransitionRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// TransitionResponse reports the preflight outcome and the committed state.
type TransitionResponse struct {
	transition.TransitionResult
	State pipeline.State `json:"state"`
}

// EvaluateRequest overrides fields of the standing guardrail context. An
// empty body evaluates with the standing context unchanged.
type EvaluateRequest struct {
	WindowMs      *float64 `json:"windowMs" binding:"omitempty,gt=0"`
	Sampler       string   `json:"sampler" binding:"omitempty,oneof=gaussian lorentzian"`
	PolicyMaxZeta *float64 `json:"policyMaxZeta" binding:"omitempty,gt=0"`
}

// RollbackRequest names the version to restore.
type RollbackRequest struct {
	VersionID string `json:"versionId" binding:"required"`
}

// SweepRequest describes one sensitivity batch.
type SweepRequest struct {
	Seed           int64                       `json:"seed"`
	BaseCases      []sensitivity.BaseCase      `json:"baseCases"`
	SecondaryCases []sensitivity.SecondaryCase `json:"secondaryCases"`
}

// #endregion wire-types

// #region pipeline-handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleState(c *gin.Context) {
	rec := s.eng.CurrentVersion()
	c.JSON(http.StatusOK, StateEnvelope{VersionID: rec.VersionID, State: rec.State})
}

func (s *Server) handleRecompute(c *gin.Context) {
	var delta engine.ConfigDelta
	if err := c.ShouldBindJSON(&delta); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	if _, err := s.eng.ApplyConfig(delta); err != nil {
		if errors.Is(err, engine.ErrInvalidDelta) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
			return
		}
		s.internalError(c, err)
		return
	}

	rec := s.eng.CurrentVersion()
	c.JSON(http.StatusOK, StateEnvelope{VersionID: rec.VersionID, State: rec.State})
}

func (s *Server) handleHistory(c *gin.Context) {
	records, err := s.eng.History(limitQuery(c, 20))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleRollback(c *gin.Context) {
	var req RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	if _, err := s.eng.Rollback(req.VersionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "version not found: " + req.VersionID, Code: "VERSION_NOT_FOUND"})
			return
		}
		s.internalError(c, err)
		return
	}

	rec := s.eng.CurrentVersion()
	c.JSON(http.StatusOK, StateEnvelope{VersionID: rec.VersionID, State: rec.State})
}

// #endregion pipeline-handlers

// #region guardrail-handlers

func (s *Server) handleEvaluate(c *gin.Context) {
	var req EvaluateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
			return
		}
	}

	sum, err := s.eng.Evaluate(c.Request.Context(), req.context(s.eng.GuardContext()))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// context merges the override onto the standing context. A request with no
// overrides returns nil, which keeps the engine's context in force.
func (r EvaluateRequest) context(base guardrail.Context) *guardrail.Context {
	if r.WindowMs == nil && r.Sampler == "" && r.PolicyMaxZeta == nil {
		return nil
	}
	if r.WindowMs != nil {
		base.WindowMs = *r.WindowMs
	}
	if r.Sampler != "" {
		base.Sampler = guardrail.Sampler(r.Sampler)
	}
	if r.PolicyMaxZeta != nil {
		base.PolicyMaxZeta = *r.PolicyMaxZeta
	}
	return &base
}

func (s *Server) handleTargetValidation(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.ValidateTargets())
}

// handleTargetTrial validates a what-if configuration against the target
// ledger without committing anything. The overlay runs on a snapshot clone.
func (s *Server) handleTargetTrial(c *gin.Context) {
	var delta engine.ConfigDelta
	if err := c.ShouldBindJSON(&delta); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	trial, err := delta.Apply(s.eng.Snapshot())
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	c.JSON(http.StatusOK, pipeline.ValidateTargets(pipeline.Calculate(trial)))
}

// #endregion guardrail-handlers

// #region mode-handlers

func (s *Server) handleTransition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	mode, err := pipeline.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "UNKNOWN_MODE"})
		return
	}

	res, applied, err := s.eng.Transition(c.Request.Context(), mode)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, TransitionResponse{TransitionResult: res, State: applied})
}

func (s *Server) handleTransitions(c *gin.Context) {
	entries, err := s.eng.Transitions(limitQuery(c, 20))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// #endregion mode-handlers

// #region sensitivity-handlers

func (s *Server) handleSweep(c *gin.Context) {
	var req SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	res, err := s.eng.Sweep(c.Request.Context(), req.Seed, req.BaseCases, req.SecondaryCases)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleRuns(c *gin.Context) {
	rows, err := s.eng.Runs(limitQuery(c, 20))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleRun(c *gin.Context) {
	res, err := s.eng.RunResult(c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found: " + c.Param("id"), Code: "RUN_NOT_FOUND"})
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// #endregion sensitivity-handlers

// #region solver-handlers

// handleSolverReport ingests an external constraint-solver result and attaches
// it to the state, recomputing the Natario constraint flag.
func (s *Server) handleSolverReport(c *gin.Context) {
	var res solver.Result
	if err := c.ShouldBindJSON(&res); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if err := res.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SOLVER_RESULT"})
		return
	}

	report := res.Report()
	if _, err := s.eng.ApplyConfig(engine.ConfigDelta{Solver: &report}); err != nil {
		s.internalError(c, err)
		return
	}

	rec := s.eng.CurrentVersion()
	c.JSON(http.StatusOK, StateEnvelope{VersionID: rec.VersionID, State: rec.State})
}

// #endregion solver-handlers

// #region helpers

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Errorw("request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "INTERNAL_ERROR"})
}

// limitQuery reads the ?limit= parameter, falling back on bad input.
func limitQuery(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// #endregion helpers
