package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "A regime-aware trading decision pipeline",
	Long: `Quant is a trading decision pipeline written in Go.

It provides tools for:
  - Replaying tick datasets through the full decision chain
  - Regime detection with a switching Kalman filter bank
  - Thompson-sampling policy selection over a strategy catalog
  - Kelly-based position sizing with hard risk limits
  - Canary-gated rollout of live sizing
  - Querying the decision and trade journal`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
