// Command fixture-export converts the active version lineage of a pipeline
// database into a replay fixture. Every commit is exported as a full
// configuration step, so mode transitions re-verify as configuration
// replays; preflight verdicts are not re-litigated because the telemetry
// they saw is not persisted.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pestypig/casimirbot/internal/engine"
	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/replay"
	"github.com/pestypig/casimirbot/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to pipeline.db")
	last := flag.Int("last", 0, "export only the most recent N commits (0 = all)")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath string, last int, outPath string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	chain, err := activeLineage(st)
	if err != nil {
		return err
	}

	// Keep the last N links; the state before the first kept link becomes
	// the fixture's start state.
	if last > 0 && len(chain)-1 > last {
		chain = chain[len(chain)-1-last:]
	}
	if len(chain) < 2 {
		return fmt.Errorf("history has no steps to export")
	}

	fmt.Printf("Found %d commits after %s\n", len(chain)-1, shortID(chain[0].VersionID))

	fixture := buildFixture(dbPath, chain)
	return writeFixture(fixture, outPath)
}

// activeLineage walks parent links from the active version back to the root
// and returns the records in chronological order.
func activeLineage(st *store.Store) ([]store.VersionRecord, error) {
	cur, err := st.Current()
	if err != nil {
		return nil, fmt.Errorf("get active version: %w", err)
	}

	chain := []store.VersionRecord{cur}
	for cur.ParentID != "" {
		cur, err = st.Version(cur.ParentID)
		if err != nil {
			return nil, fmt.Errorf("walk lineage: %w", err)
		}
		chain = append(chain, cur)
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// #endregion extract

// #region output

func buildFixture(dbPath string, chain []store.VersionRecord) replay.Fixture {
	steps := make([]replay.Step, len(chain)-1)
	expected := make([]replay.Expected, len(chain)-1)

	for i, rec := range chain[1:] {
		delta := engine.FullDelta(rec.State)
		steps[i] = replay.Step{
			StepID: rec.VersionID,
			Op:     replay.OpRecompute,
			Delta:  &delta,
			At:     rec.CreatedAt,
		}
		expected[i] = replay.Expected{
			StepID:          rec.VersionID,
			Mode:            string(rec.State.Mode),
			Status:          string(rec.State.OverallStatus),
			PowerAvgMW:      rec.State.PowerAvgMW,
			ExoticMassRawKg: rec.State.ExoticMassRawKg,
			Zeta:            rec.State.Zeta,
		}
	}

	return replay.Fixture{
		Description: fmt.Sprintf("Pipeline history export: %d commits from %s", len(steps), dbPath),
		StartState:  chain[0].State,
		Context:     guardrail.DefaultContext(),
		Steps:       steps,
		Expected:    expected,
	}
}

func writeFixture(fixture replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d steps)\n", outPath, len(data), len(fixture.Steps))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
