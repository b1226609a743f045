package main

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/fineprint/internal/fetch"
	"github.com/jonathan/fineprint/internal/ingestion"
	"github.com/jonathan/fineprint/internal/observability"
	"github.com/jonathan/fineprint/internal/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|url>",
	Short: "Score a single document",
	Long:  "Scores one local file (plain text or HTML) or one URL and prints its matches. Nothing is stored.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var (
	analyzeJSON    bool
	analyzeContext bool
)

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print matches as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeContext, "context", false, "Print the context window of every match")
	rootCmd.AddCommand(analyzeCmd)
}

func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	// analyze never touches the store, so the app is assembled without one.
	a := &app{
		cfg:     cfg,
		logger:  observability.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose),
		metrics: observability.NewMetrics(),
	}
	defer a.Close()

	engine, err := a.engine(ctx)
	if err != nil {
		return err
	}

	target := args[0]
	var text string
	var meta *ingestion.Metadata
	if isURL(target) {
		text, meta, err = ingestion.FromURL(ctx, a.coordinator(false), target)
	} else {
		text, meta, err = ingestion.FromFile(target, fetch.NewReadabilityExtractor())
	}
	if err != nil {
		return err
	}
	a.logger.Debug("document loaded", "source", meta.Source(), "chars", meta.Chars, "hash", meta.Hash)

	matches, err := engine.Score(ctx, text)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	results := make([]types.Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, m.ToResult(meta.Source(), now))
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	printer := observability.NewPrinter(out)
	printer.PrintResults(results)
	if analyzeContext {
		for _, r := range results {
			printer.PrintContext(r)
		}
	}
	return nil
}
