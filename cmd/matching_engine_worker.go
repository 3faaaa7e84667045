/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/matching-engine/internal/bootstrap"
	"github.com/spf13/cobra"
)

// matchingEngineWorkerCmd represents the matching engine worker command
var matchingEngineWorkerCmd = &cobra.Command{
	Use:   "matching-engine-worker",
	Short: "Record trades and security state from matching events",
	Long: `Consumes the matching event stream and stores executed trades, last trade
prices and matching state changes in the matching engine database.`,
	Run: bootstrap.StartMatchingEngineWorker,
}

func init() {
	rootCmd.AddCommand(matchingEngineWorkerCmd)
}
