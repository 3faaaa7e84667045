/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/matching-engine/internal/bootstrap"
	"github.com/spf13/cobra"
)

// matchingEngineGatewayCmd represents the matching engine gateway command
var matchingEngineGatewayCmd = &cobra.Command{
	Use:   "matching-engine-gateway",
	Short: "Start the Matching Engine Gateway service",
	Long: `The Matching Engine Gateway leases its instruments, loads their books and
the broker and shareholder ledger, and matches orders received over HTTP,
gRPC and the JetStream request stream. Every outcome is published as a
matching event and depth changes are pushed to websocket subscribers.`,
	Run: bootstrap.StartMatchingEngineGateway,
}

func init() {
	rootCmd.AddCommand(matchingEngineGatewayCmd)
}
