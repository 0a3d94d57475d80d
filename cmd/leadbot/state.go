package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/sponsor-leads/internal/observability"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
)

var stateCommand = &cobra.Command{
	Use:   "state",
	Short: "Inspect the seen-record store",
}

var stateHasCommand = &cobra.Command{
	Use:   "has <key>",
	Short: "Report whether a key such as CH::12345678 has been seen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store state.Store) error {
			return printHas(ctx, os.Stdout, store, types.SeenKey(args[0]))
		})
	},
}

var stateStatsCommand = &cobra.Command{
	Use:   "stats",
	Short: "Print seen-key and run counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, store state.Store) error {
			return printStats(ctx, os.Stdout, store, time.Now())
		})
	},
}

var stateFlags storeFlags

func init() {
	stateFlags.register(stateHasCommand)
	stateFlags.register(stateStatsCommand)
	stateCommand.AddCommand(stateHasCommand, stateStatsCommand)
	rootCmd.AddCommand(stateCommand)
}

func withStore(cmd *cobra.Command, fn func(context.Context, state.Store) error) error {
	ctx := context.Background()
	cfg, err := commandConfig(cmd, &stateFlags)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()
	return fn(ctx, store)
}

//nolint:errcheck // console output
func printHas(ctx context.Context, w io.Writer, store state.Reader, key types.SeenKey) error {
	seen, err := store.Has(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		fmt.Fprintf(w, "%s: seen\n", key)
	} else {
		fmt.Fprintf(w, "%s: not seen\n", key)
	}
	return nil
}

func printStats(ctx context.Context, w io.Writer, store state.Store, now time.Time) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fields := []observability.Field{
		{Label: "Seen keys", Value: strconv.Itoa(stats.SeenKeys)},
		{Label: "Cached companies", Value: strconv.Itoa(stats.Companies)},
		{Label: "Runs", Value: strconv.Itoa(stats.Runs)},
		{Label: "Last run", Value: formatAge(stats.LastRun, now)},
	}
	if v, ok, err := store.Meta(ctx, state.MetaSponsorBaselined); err != nil {
		return err
	} else if ok {
		fields = append(fields, observability.Field{Label: "Sponsor baseline", Value: v})
	}
	observability.NewPrinter(w).PrintSummary("STATE", fields)
	return nil
}

// formatAge renders t as whole days before now.
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return strconv.Itoa(int(now.Sub(t).Hours()/24)) + "d ago"
}
