// casimird is the warp-drive dashboard core daemon: it owns the versioned
// energy-pipeline state, serves the HTTP API, and runs the same operations
// offline against the store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pestypig/casimirbot/internal/config"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

// #region root

var rootCmd = &cobra.Command{
	Use:   "casimird",
	Short: "CasimirBot pipeline daemon and operations CLI",
	Long: `casimird owns the simulated propulsion pipeline: versioned state,
the quantum-inequality guardrail, preflight-gated mode transitions, and
deterministic sensitivity sweeps.

'casimird serve' starts the HTTP API; the other subcommands run the same
operations directly against the store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "casimirbot.yaml", "path to the YAML configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(transitionCmd)
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().Int64Var(&sweepSeed, "seed", 0, "deterministic seed; the same seed and grid reproduce a run byte-for-byte")
}

// #endregion root
