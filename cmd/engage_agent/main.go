// Package main provides the entry point for the engage agent CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "engage_agent",
	Short: "Batch sign-in and feed engagement automation",
	Long:  "Engage Agent processes a list of accounts: requests a passwordless sign-in email, retrieves it via webmail, follows the sign-in link, and performs a bounded like sweep over the content feed.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
