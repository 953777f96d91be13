// Package engine owns the shared pipeline state. Every mutation — config
// deltas, mode transitions, rollbacks — runs through one serialized
// apply+recompute+commit path; readers only ever see committed snapshots.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/logging"
	"github.com/pestypig/casimirbot/internal/obs"
	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/sensitivity"
	"github.com/pestypig/casimirbot/internal/store"
	"github.com/pestypig/casimirbot/internal/telemetry"
	"github.com/pestypig/casimirbot/internal/transition"
)

// #region engine-struct

// Engine is the top-level coordinator: one mutex serializes all mutations of
// the active state; evaluation and sweeps run on clones outside the lock.
type Engine struct {
	mu      sync.Mutex
	store   *store.Store
	feed    telemetry.Feed
	ctl     *transition.Controller
	ec      guardrail.Context
	met     *obs.Metrics
	log     *zap.SugaredLogger
	now     func() time.Time
	current store.VersionRecord
}

// Config wires the engine's collaborators. Store is required; everything
// else has a working default.
type Config struct {
	Store       *store.Store
	Feed        telemetry.Feed
	EvalContext guardrail.Context
	Metrics     *obs.Metrics
	Logger      *zap.SugaredLogger
	Clock       func() time.Time
}

// #endregion engine-struct

// #region constructor

// New loads the active version from the store, bootstrapping a default state
// on first run, and returns a ready engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics(prometheus.NewRegistry())
	}
	if cfg.EvalContext == (guardrail.Context{}) {
		cfg.EvalContext = guardrail.DefaultContext()
	}

	e := &Engine{
		store: cfg.Store,
		feed:  cfg.Feed,
		ctl:   transition.NewController(transition.DefaultConfig()),
		ec:    cfg.EvalContext,
		met:   cfg.Metrics,
		log:   cfg.Logger,
		now:   cfg.Clock,
	}

	cur, err := cfg.Store.Current()
	switch {
	case err == nil:
		e.current = cur
	case errors.Is(err, sql.ErrNoRows):
		rec, err := cfg.Store.CreateInitial(pipeline.Calculate(pipeline.DefaultState()))
		if err != nil {
			return nil, fmt.Errorf("bootstrap state: %w", err)
		}
		e.current = rec
		e.log.Infow("bootstrapped initial state", "version", rec.VersionID)
	default:
		return nil, fmt.Errorf("load active state: %w", err)
	}

	e.met.ObserveState(e.current.State)
	return e, nil
}

// #endregion constructor

// #region snapshot

// Snapshot returns a copy of the active state.
func (e *Engine) Snapshot() pipeline.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.State.Clone()
}

// CurrentVersion returns the active version record.
func (e *Engine) CurrentVersion() store.VersionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// GuardContext returns the standing guardrail evaluation context.
func (e *Engine) GuardContext() guardrail.Context {
	return e.ec
}

// #endregion snapshot

// #region apply-config

// ApplyConfig overlays a configuration delta, recomputes every derived field,
// and commits the result as a new version. The whole sequence holds the
// mutation lock so no reader observes a half-updated state.
func (e *Engine) ApplyConfig(delta ConfigDelta) (pipeline.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := delta.Apply(e.current.State)
	if err != nil {
		return pipeline.State{}, err
	}
	next = pipeline.Calculate(next)

	rec := store.VersionRecord{
		VersionID: uuid.New().String(),
		ParentID:  e.current.VersionID,
		State:     next,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.Commit(rec); err != nil {
		return pipeline.State{}, fmt.Errorf("commit state: %w", err)
	}
	e.current = rec

	e.met.ObserveState(next)
	e.log.Infow("recompute committed",
		"version", rec.VersionID,
		"mode", next.Mode,
		"status", next.OverallStatus,
		"powerAvgMW", next.PowerAvgMW,
	)
	return next, nil
}

// #endregion apply-config

// #region evaluate

// Evaluate runs the guardrail against the active state and live telemetry.
// A nil override uses the engine's standing context. Telemetry failures
// degrade to an empty snapshot; the evaluator fails closed on it.
func (e *Engine) Evaluate(ctx context.Context, override *guardrail.Context) (guardrail.Summary, error) {
	st := e.Snapshot()
	ec := e.ec
	if override != nil {
		ec = *override
	}

	snap := e.telemetrySnapshot(ctx)
	sum := guardrail.EvaluateSnapshot(st, snap, ec, e.now().UTC())

	e.met.ObserveEvaluation(sum)
	sumJSON, _ := json.Marshal(sum)
	if err := logging.LogEvaluation(e.store.DB(), logging.GuardrailEntry{
		Applicability:  sum.ApplicabilityStatus,
		Classification: string(sum.Classification),
		MarginRatio:    sum.MarginRatio,
		RhoSource:      sum.RhoSource,
		SummaryJSON:    string(sumJSON),
		CreatedAt:      sum.EvaluatedAt,
	}); err != nil {
		e.log.Warnw("guardrail provenance write failed", "error", err)
	}

	e.log.Infow("guardrail evaluated",
		"applicability", sum.ApplicabilityStatus,
		"classification", sum.Classification,
		"marginRatio", sum.MarginRatio,
		"rhoSource", sum.RhoSource,
	)
	return sum, nil
}

// telemetrySnapshot reads the feed, degrading to empty on absence or error.
func (e *Engine) telemetrySnapshot(ctx context.Context) telemetry.Snapshot {
	if e.feed == nil {
		return telemetry.Snapshot{}
	}
	snap, err := e.feed.Snapshot(ctx)
	if err != nil {
		e.log.Warnw("telemetry unavailable, failing toward empty snapshot", "error", err)
		return telemetry.Snapshot{}
	}
	return snap
}

// #endregion evaluate

// #region transition

// Transition requests a mode change. The preflight decision, the commit of
// the resulting state, and the provenance row happen under one lock hold.
func (e *Engine) Transition(ctx context.Context, requested pipeline.Mode) (transition.TransitionResult, pipeline.State, error) {
	snap := e.telemetrySnapshot(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().UTC()
	var verdict *guardrail.Summary
	eval := func(candidate pipeline.State) *guardrail.Summary {
		s := guardrail.EvaluateSnapshot(candidate, snap, e.ec, now)
		verdict = &s
		return &s
	}

	res, applied := e.ctl.Decide(e.current.State, requested, eval)

	rec := store.VersionRecord{
		VersionID: uuid.New().String(),
		ParentID:  e.current.VersionID,
		State:     applied,
		CreatedAt: now,
	}
	if err := e.store.Commit(rec); err != nil {
		return transition.TransitionResult{}, pipeline.State{}, fmt.Errorf("commit transition: %w", err)
	}
	e.current = rec

	var summaryJSON string
	if verdict != nil {
		b, _ := json.Marshal(verdict)
		summaryJSON = string(b)
	}
	if err := logging.LogTransition(e.store.DB(), logging.TransitionEntry{
		VersionID:       rec.VersionID,
		RequestedMode:   string(res.RequestedMode),
		AppliedMode:     string(res.AppliedMode),
		FallbackApplied: res.FallbackApplied,
		FirstFail:       string(res.Preflight.FirstFail),
		SummaryJSON:     summaryJSON,
		CreatedAt:       now,
	}); err != nil {
		e.log.Warnw("transition provenance write failed", "error", err)
	}

	e.met.ObserveTransition(res)
	e.met.ObserveState(applied)
	e.log.Infow("mode transition",
		"requested", res.RequestedMode,
		"applied", res.AppliedMode,
		"fallback", res.FallbackApplied,
		"firstFail", res.Preflight.FirstFail,
	)
	return res, applied, nil
}

// #endregion transition

// #region sweep

// Sweep runs a bounded sensitivity grid against a clone of the active state
// and persists the result. The active state is never touched.
func (e *Engine) Sweep(ctx context.Context, seed int64, bases []sensitivity.BaseCase, secondaries []sensitivity.SecondaryCase) (sensitivity.RunResult, error) {
	st := e.Snapshot()
	snap := e.telemetrySnapshot(ctx)

	res := sensitivity.NewRunner(st, snap).Run(seed, bases, secondaries)
	if err := e.store.SaveRun(res); err != nil {
		return sensitivity.RunResult{}, fmt.Errorf("persist run: %w", err)
	}

	e.met.ObserveSweep(res)
	e.log.Infow("sensitivity run persisted",
		"runId", res.RunID,
		"seed", res.Seed,
		"cases", len(res.Cases),
		"truncated", res.Truncated,
	)
	return res, nil
}

// #endregion sweep

// #region target-validation

// ValidateTargets compares the active state against the design-study ledger.
func (e *Engine) ValidateTargets() pipeline.TargetChecks {
	return pipeline.ValidateTargets(e.Snapshot())
}

// #endregion target-validation

// #region rollback

// Rollback moves the active pointer to an earlier version and reloads it.
func (e *Engine) Rollback(versionID string) (pipeline.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Rollback(versionID); err != nil {
		return pipeline.State{}, err
	}
	rec, err := e.store.Version(versionID)
	if err != nil {
		return pipeline.State{}, err
	}
	e.current = rec

	e.met.ObserveState(rec.State)
	e.log.Infow("rolled back", "version", versionID, "mode", rec.State.Mode)
	return rec.State, nil
}

// #endregion rollback

// #region history

// History lists recent versions, newest first.
func (e *Engine) History(limit int) ([]store.VersionRecord, error) {
	return e.store.ListVersions(limit)
}

// Runs lists recent sensitivity runs, newest first.
func (e *Engine) Runs(limit int) ([]store.RunRow, error) {
	return e.store.ListRuns(limit)
}

// RunResult retrieves one persisted sensitivity run by ID.
func (e *Engine) RunResult(runID string) (sensitivity.RunResult, error) {
	return e.store.Run(runID)
}

// Transitions lists recent mode decisions, newest first.
func (e *Engine) Transitions(limit int) ([]logging.TransitionEntry, error) {
	return logging.ListTransitions(e.store.DB(), limit)
}

// #endregion history
