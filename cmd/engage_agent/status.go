package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/engage-agent/internal/dedupe"
	"github.com/jonathan/engage-agent/internal/observability"
)

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show the dedup record store: which accounts completed, and when",
	RunE:  statusCmd,
}

var statusStatePath string

func init() {
	statusCommand.Flags().StringVar(&statusStatePath, "state", "state/dedupe.json", "Dedup record store file")
	rootCmd.AddCommand(statusCommand)
}

func statusCmd(_ *cobra.Command, _ []string) error {
	log := observability.NewLogger(false, false)
	store := dedupe.NewStore(statusStatePath, log)

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintDedupRecords(store.Records())
	return nil
}
