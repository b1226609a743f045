package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jonathan/fineprint/internal/observability"
	"github.com/jonathan/fineprint/internal/types"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored results",
	RunE:  runResults,
}

var (
	resultsMinConfidence float64
	resultsJSON          bool
)

func init() {
	resultsCmd.Flags().Float64Var(&resultsMinConfidence, "min-confidence", 0, "Only show results at or above this confidence")
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, _ []string) error {
	if resultsMinConfidence < 0 || resultsMinConfidence > 1 {
		return errMinConfidence
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

	results, err := a.store.Results(ctx, resultsMinConfidence)
	if err != nil {
		return err
	}
	if results == nil {
		results = []types.Result{}
	}

	if resultsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintResults(results)
	return nil
}
