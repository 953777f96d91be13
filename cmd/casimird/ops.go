package main

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pestypig/casimirbot/internal/engine"
	"github.com/pestypig/casimirbot/internal/obs"
	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/sensitivity"
	"github.com/pestypig/casimirbot/internal/server"
	"github.com/pestypig/casimirbot/internal/store"
	"github.com/pestypig/casimirbot/internal/telemetry"
)

var sweepSeed int64

// deltaValidate enforces the same bounds tags gin applies at the HTTP
// boundary, so offline deltas are checked identically.
var deltaValidate = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}()

// #region commands

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the active pipeline version as JSON",
	RunE:  runState,
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute [delta-json]",
	Short: "Apply a configuration delta and commit the recomputed state",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecompute,
}

var transitionCmd = &cobra.Command{
	Use:   "transition [mode]",
	Short: "Request a mode change through the preflight gate",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransition,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [grid-json]",
	Short: "Run a bounded sensitivity batch and persist the result",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSweep,
}

func runState(cmd *cobra.Command, args []string) error {
	eng, cleanup, _, err := buildEngine(logger.Sugar())
	if err != nil {
		return err
	}
	defer cleanup()

	return printJSON(eng.CurrentVersion())
}

func runRecompute(cmd *cobra.Command, args []string) error {
	var delta engine.ConfigDelta
	if err := json.Unmarshal([]byte(args[0]), &delta); err != nil {
		return fmt.Errorf("parse delta: %w", err)
	}
	if err := deltaValidate.Struct(delta); err != nil {
		return fmt.Errorf("validate delta: %w", err)
	}

	eng, cleanup, _, err := buildEngine(logger.Sugar())
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := eng.ApplyConfig(delta)
	if err != nil {
		return err
	}
	return printJSON(st)
}

func runTransition(cmd *cobra.Command, args []string) error {
	mode, err := pipeline.ParseMode(args[0])
	if err != nil {
		return err
	}

	eng, cleanup, _, err := buildEngine(logger.Sugar())
	if err != nil {
		return err
	}
	defer cleanup()

	res, applied, err := eng.Transition(cmd.Context(), mode)
	if err != nil {
		return err
	}
	return printJSON(server.TransitionResponse{TransitionResult: res, State: applied})
}

func runSweep(cmd *cobra.Command, args []string) error {
	var grid struct {
		BaseCases      []sensitivity.BaseCase      `json:"baseCases"`
		SecondaryCases []sensitivity.SecondaryCase `json:"secondaryCases"`
	}
	if len(args) == 1 {
		if err := json.Unmarshal([]byte(args[0]), &grid); err != nil {
			return fmt.Errorf("parse grid: %w", err)
		}
	}

	eng, cleanup, _, err := buildEngine(logger.Sugar())
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := eng.Sweep(cmd.Context(), sweepSeed, grid.BaseCases, grid.SecondaryCases)
	if err != nil {
		return err
	}

	out, err := res.Serialize()
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// #endregion commands

// #region wiring

// buildEngine opens the store and telemetry feed from the loaded config and
// assembles a ready engine. The cleanup closes everything it opened.
func buildEngine(log *zap.SugaredLogger) (*engine.Engine, func(), *prometheus.Registry, error) {
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	var feed telemetry.Feed
	cleanup := func() { st.Close() }
	if cfg.Telemetry.Enabled {
		influx := telemetry.NewInfluxFeed(cfg.InfluxConfig())
		feed = influx
		cleanup = func() {
			influx.Close()
			st.Close()
		}
	}

	reg := prometheus.NewRegistry()
	eng, err := engine.New(engine.Config{
		Store:       st,
		Feed:        feed,
		EvalContext: cfg.EvalContext(),
		Metrics:     obs.NewMetrics(reg),
		Logger:      log,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return eng, cleanup, reg, nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// #endregion wiring
