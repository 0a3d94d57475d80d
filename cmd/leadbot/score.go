package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/sponsor-leads/internal/observability"
	"github.com/jonathan/sponsor-leads/internal/scoring"
	"github.com/jonathan/sponsor-leads/internal/types"
)

var scoreCommand = &cobra.Command{
	Use:   "score <records.json>",
	Short: "Score registry records from a JSON file and print the signals",
	Args:  cobra.ExactArgs(1),
	RunE:  runScoreCmd,
}

var scoreAsOf string

func init() {
	scoreCommand.Flags().StringVar(&scoreAsOf, "as-of", "", "Reference date (YYYY-MM-DD) for incorporation age rules (default today)")
	rootCmd.AddCommand(scoreCommand)
}

func runScoreCmd(_ *cobra.Command, args []string) error {
	asOf := time.Now().UTC()
	if scoreAsOf != "" {
		t, err := time.Parse(time.DateOnly, scoreAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
		asOf = t
	}

	leads, err := scoreFile(args[0], asOf)
	if err != nil {
		return err
	}
	printer := observability.NewPrinter(os.Stdout)
	for _, l := range leads {
		printer.PrintSignals(l)
	}
	return nil
}

// scoreFile reads one RegistryRecord or an array of them and scores each.
func scoreFile(path string, asOf time.Time) ([]types.ScoredLead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var records []types.RegistryRecord
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to parse records: %w", err)
		}
	} else {
		var rec types.RegistryRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record: %w", err)
		}
		records = append(records, rec)
	}

	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return scoring.New(asOf).ScoreAll(records), nil
}
