package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/fineprint/internal/observability"
)

var errMinConfidence = errors.New("--min-confidence must be between 0 and 1")

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store statistics",
	RunE:  runStats,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all stored queries, documents and results",
	RunE:  runReset,
}

var resetConfirmed bool

func init() {
	resetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "Confirm deletion")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := newApp(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintStats(stats)
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !resetConfirmed {
		return fmt.Errorf("reset deletes all stored data; pass --yes to confirm")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := newApp(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Reset(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Store reset.")
	return nil
}
