// Package main provides the entry point for the sponsor lead bot.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "leadbot",
	Short: "UK sponsor and Companies House lead generator",
	Long: `leadbot watches the Home Office register of licensed sponsors and new
Companies House incorporations, keeps only records it has never seen before,
scores them for overseas-expansion and sponsorship signals, and emits a ranked
list of leads with verified websites and public contacts.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
