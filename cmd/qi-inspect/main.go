// qi-inspect reads a casimirbot store offline and prints the pipeline
// version history, the mode-transition log, and persisted sweep runs.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pestypig/casimirbot/internal/logging"
	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to casimirbot.db")
	last := flag.Int("last", 20, "show N most recent rows")
	version := flag.String("version", "", "show single version detail")
	transitions := flag.Bool("transitions", false, "show the mode-transition log")
	runs := flag.Bool("runs", false, "show persisted sweep runs")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: qi-inspect --db path/to/casimirbot.db [--last N] [--version id] [--transitions] [--runs] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch {
	case *version != "":
		err = runDetailMode(st, *version, *jsonOut)
	case *transitions:
		err = runTransitionMode(st, *last, *jsonOut)
	case *runs:
		err = runRunsMode(st, *last, *jsonOut)
	default:
		err = runListMode(st, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

func runListMode(st *store.Store, last int, jsonOut bool) error {
	records, err := st.ListVersions(last)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	// Store returns DESC; reverse for chronological display.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	if jsonOut {
		return printJSON(records)
	}

	fmt.Printf("%-10s  %-9s  %-8s  %12s  %12s  %8s  %s\n",
		"Version", "Mode", "Status", "Power MW", "Mass kg", "Zeta", "Time")
	fmt.Printf("%-10s+-%-9s+-%-8s+-%12s+-%12s+-%8s+-%s\n",
		"----------", "---------", "--------", "------------", "------------", "--------", "--------------------")

	for _, rec := range records {
		s := rec.State
		fmt.Printf("%-10s  %-9s  %-8s  %12.3f  %12.4g  %8.4f  %s\n",
			shortID(rec.VersionID), s.Mode, s.OverallStatus,
			s.PowerAvgMW, publishedMass(s), s.Zeta,
			rec.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}

	fmt.Printf("\nCompliance (latest):\n")
	printFlags(records[len(records)-1].State)
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(st *store.Store, versionID string, jsonOut bool) error {
	rec, err := st.Version(versionID)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(rec)
	}

	s := rec.State
	fmt.Printf("Version:  %s\n", rec.VersionID)
	fmt.Printf("Parent:   %s\n", rec.ParentID)
	fmt.Printf("Created:  %s\n", rec.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Mode:     %s (%s)\n", s.Mode, s.Variant)
	fmt.Printf("Status:   %s\n", s.OverallStatus)

	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  %-20s %.4g\n", "gapNm", s.GapNm)
	fmt.Printf("  %-20s %s\n", "casimirModel", s.CasimirModel)
	fmt.Printf("  %-20s %.4g\n", "temperatureK", s.TemperatureK)
	fmt.Printf("  %-20s %.4g\n", "modFreqHz", s.ModFreqHz)
	fmt.Printf("  %-20s %.4g\n", "gammaGeo", s.GammaGeo)
	fmt.Printf("  %-20s %.4g\n", "qMechanical", s.QMechanical)
	fmt.Printf("  %-20s %.4g\n", "qCavity", s.QCavity)
	fmt.Printf("  %-20s %.4g\n", "gammaVanDenBroeck", s.GammaVdB)
	fmt.Printf("  %-20s %.4g\n", "exoticMassTargetKg", s.MassTargetKg)

	fmt.Printf("\nDerived:\n")
	fmt.Printf("  %-20s %.4f\n", "powerAvgMW", s.PowerAvgMW)
	fmt.Printf("  %-20s %.6g\n", "exoticMassRawKg", s.ExoticMassRawKg)
	fmt.Printf("  %-20s %.6g\n", "exoticMassCalKg", s.ExoticMassCalKg)
	fmt.Printf("  %-20s %.4f\n", "zeta", s.Zeta)
	fmt.Printf("  %-20s %.4g\n", "tsRatioPrimary", s.TimeScaleRatio)
	fmt.Printf("  %-20s %.4g\n", "homogenizationRatio", s.HomogenizationRatio)

	fmt.Printf("\nCompliance:\n")
	printFlags(s)

	if s.Solver.Attached {
		fmt.Printf("\nSolver Report:\n")
		fmt.Printf("  %-20s %s\n", "status", s.Solver.Status)
		fmt.Printf("  %-20s %.3g\n", "maxResidual", s.Solver.MaxResidual)
		fmt.Printf("  %-20s %d\n", "iterations", s.Solver.Iterations)
	}
	return nil
}

// #endregion detail-mode

// #region transition-mode

func runTransitionMode(st *store.Store, last int, jsonOut bool) error {
	entries, err := logging.ListTransitions(st.DB(), last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no transitions logged")
		return nil
	}

	if jsonOut {
		return printJSON(entries)
	}

	fmt.Printf("%-10s  %-9s  %-9s  %-8s  %-18s  %s\n",
		"Version", "Requested", "Applied", "Fallback", "First Fail", "Time")
	fmt.Printf("%-10s+-%-9s+-%-9s+-%-8s+-%-18s+-%s\n",
		"----------", "---------", "---------", "--------", "------------------", "--------------------")

	for _, e := range entries {
		fail := "—"
		if e.FirstFail != "" {
			fail = e.FirstFail
		}
		fmt.Printf("%-10s  %-9s  %-9s  %-8v  %-18s  %s\n",
			shortID(e.VersionID), e.RequestedMode, e.AppliedMode,
			e.FallbackApplied, fail, e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion transition-mode

// #region runs-mode

func runRunsMode(st *store.Store, last int, jsonOut bool) error {
	rows, err := st.ListRuns(last)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no sweep runs persisted")
		return nil
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-36s  %12s  %6s  %-9s  %s\n",
		"Run ID", "Seed", "Cases", "Truncated", "Time")
	fmt.Printf("%-36s+-%12s+-%6s+-%-9s+-%s\n",
		"------------------------------------", "------------", "------", "---------", "--------------------")

	for _, r := range rows {
		fmt.Printf("%-36s  %12d  %6d  %-9v  %s\n",
			r.RunID, r.Seed, r.RequestedCases, r.Truncated,
			r.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion runs-mode

// #region output

func publishedMass(s pipeline.State) float64 {
	if s.Variant == pipeline.VariantCalibrated {
		return s.ExoticMassCalKg
	}
	return s.ExoticMassRawKg
}

func printFlags(s pipeline.State) {
	fmt.Printf("  %-22s %v\n", "fordRomanCompliance", s.FordRomanCompliance)
	fmt.Printf("  %-22s %v\n", "natarioConstraint", s.NatarioConstraint)
	fmt.Printf("  %-22s %v\n", "grValidity", s.GRValidity)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
