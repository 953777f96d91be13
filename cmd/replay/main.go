// Command replay re-executes a recorded pipeline history and reports where
// the current calculator diverges from the recorded outcomes. It reads either
// a fixture file or a pipeline database directly.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pestypig/casimirbot/internal/engine"
	"github.com/pestypig/casimirbot/internal/replay"
	"github.com/pestypig/casimirbot/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to pipeline.db (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/pipeline.db")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	results := replay.Replay(f.StartState, f.Steps, f.ReplayConfig())

	if len(f.Expected) == 0 {
		printResults(results)
		return 0
	}
	return printComparison(results, f.Expected)
}

// #endregion fixture-mode

// #region db-mode

func runDBMode(dbPath string) int {
	st, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	chain, err := activeLineage(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	if len(chain) < 2 {
		fmt.Fprintln(os.Stderr, "history has no steps to replay")
		return 2
	}

	// Rebuild every commit as a full configuration step and pin the stored
	// published values as expectations.
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

	results := replay.Replay(chain[0].State, steps, replay.DefaultReplayConfig())
	return printComparison(results, expected)
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

// #endregion db-mode

// #region output

// printResults renders a replay without expectations.
func printResults(results []replay.Result) {
	fmt.Printf("%-10s| %-10s| %-20s| %-14s| %s\n", "Step", "Op", "Mode/Status", "Power MW", "Zeta")
	fmt.Printf("%-10s+%-10s+%-20s+%-14s+%s\n",
		"----------", "----------", "---------------------", "--------------", "--------")

	for _, r := range results {
		fmt.Printf("%-10s| %-10s| %-20s| %-14.6g| %.4g\n",
			shortID(r.StepID), r.Op, renderResult(r), r.PowerAvgMW, r.Zeta)
	}
}

// printComparison outputs an expected-vs-replayed table and returns the exit
// code: 0 when every step matches, 1 on divergence.
func printComparison(results []replay.Result, expected []replay.Expected) int {
	mismatches := replay.Verify(results, expected)

	diverged := make(map[string]bool)
	for _, m := range mismatches {
		diverged[m.StepID] = true
	}

	fmt.Printf("%-10s| %-20s| %-20s| %s\n", "Step", "Expected", "Replayed", "Match")
	fmt.Printf("%-10s+%-20s+%-20s+%s\n",
		"----------", "---------------------", "---------------------", "------")

	total := len(results)
	if len(expected) < total {
		total = len(expected)
	}
	for i := 0; i < total; i++ {
		match := "OK"
		if diverged[expected[i].StepID] {
			match = "DIFF"
		}
		fmt.Printf("%-10s| %-20s| %-20s| %s\n",
			shortID(expected[i].StepID), renderExpected(expected[i]), renderResult(results[i]), match)
	}

	for _, m := range mismatches {
		if m.StepID == "" {
			fmt.Printf("\n%s: want %s, got %s\n", m.Field, m.Want, m.Got)
			continue
		}
		fmt.Printf("  %s: %s want %s, got %s\n", shortID(m.StepID), m.Field, m.Want, m.Got)
	}

	fmt.Printf("\nSummary: %d steps, %d diverge\n", total, len(mismatches))

	if len(mismatches) > 0 {
		return 1
	}
	return 0
}

func renderExpected(e replay.Expected) string {
	return e.Mode + "/" + e.Status
}

func renderResult(r replay.Result) string {
	if r.Err != "" {
		return "error"
	}
	return string(r.Mode) + "/" + string(r.Status)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
