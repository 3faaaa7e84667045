/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/matching-engine/internal/bootstrap"
	"github.com/spf13/cobra"
)

// journalReplayCmd represents the journal replay command
var journalReplayCmd = &cobra.Command{
	Use:   "journal-replay",
	Short: "Replay matching events from the local journal",
	Long: `Reads the pebble event journal from the given sequence and prints each
event as a JSON line, or republishes the events to kafka with --publish.`,
	Run: bootstrap.StartJournalReplay,
}

func init() {
	rootCmd.AddCommand(journalReplayCmd)
	journalReplayCmd.Flags().Uint64("from", 1, "first sequence to replay")
	journalReplayCmd.Flags().Bool("publish", false, "republish events to kafka instead of printing them")
}
