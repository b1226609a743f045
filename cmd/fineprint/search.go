package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/fineprint/internal/observability"
	"github.com/jonathan/fineprint/internal/pipeline"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Discover, fetch and score legal documents",
	Long: "Runs discovery queries across the configured providers, fetches every new candidate " +
		"and prints matches as they are found. Press Ctrl+C to cancel; the run can be resumed later.",
	RunE: runSearch,
}

var (
	searchQueries      []string
	searchSeeds        []string
	searchMaxDocuments int
	searchExhaustive   bool
	searchRescore      bool
	searchUseBrowser   bool
	searchDatabase     string
)

func init() {
	searchCmd.Flags().StringSliceVarP(&searchQueries, "query", "q", nil, "Discovery query (repeatable, replaces the defaults)")
	searchCmd.Flags().StringSliceVar(&searchSeeds, "seed", nil, "Seed domain to probe for legal pages (repeatable)")
	searchCmd.Flags().IntVar(&searchMaxDocuments, "max-documents", 0, "Maximum documents to fetch in this run (0 = no cap)")
	searchCmd.Flags().BoolVar(&searchExhaustive, "exhaustive", false, "Run every provider for every query")
	searchCmd.Flags().BoolVar(&searchRescore, "rescore", false, "Re-analyze every stored document")
	searchCmd.Flags().BoolVar(&searchUseBrowser, "browser", false, "Render short or script-only pages in headless Chrome")
	searchCmd.Flags().StringVar(&searchDatabase, "db", "", "SQLite database path (overrides config)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("query") {
		cfg.Queries = searchQueries
	}
	if flags.Changed("seed") {
		cfg.SeedDomains = searchSeeds
	}
	if flags.Changed("max-documents") {
		cfg.MaxDocuments = searchMaxDocuments
	}
	if flags.Changed("exhaustive") {
		cfg.ExhaustiveDiscovery = searchExhaustive
	}
	if flags.Changed("browser") {
		cfg.UseBrowser = searchUseBrowser
	}
	if flags.Changed("db") {
		cfg.DatabasePath = searchDatabase
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(ctx)
	if err != nil {
		return err
	}

	opts := a.runOptions()
	opts.Rescore = searchRescore
	run, err := orch.Start(ctx, opts)
	if err != nil {
		return err
	}
	a.logger.Info("search started", "run_id", run.ID, "queries", len(opts.Queries), "seeds", len(opts.SeedDomains))

	summary := printEvents(cmd.OutOrStdout(), run.Events())
	if summary == nil {
		s := run.Wait()
		summary = &s
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintSummary(string(summary.State), run.Progress(), summary.DroppedEvents, summary.Duration, summary.Error)

	if summary.State == pipeline.StateFailed {
		return fmt.Errorf("search failed: %s", summary.Error)
	}
	return nil
}

// printEvents writes one line per event until the stream closes and returns
// the summary carried by the complete event.
func printEvents(w io.Writer, events <-chan pipeline.Event) *pipeline.Summary {
	var summary *pipeline.Summary
	var lastPhase, lastURL string
	for e := range events {
		switch e.Type {
		case pipeline.EventProgress:
			p := e.Progress
			if p == nil {
				continue
			}
			if string(p.Phase) != lastPhase {
				lastPhase = string(p.Phase)
				_, _ = fmt.Fprintf(w, "== %s\n", lastPhase)
			}
			if p.CurrentURL != "" && p.CurrentURL != lastURL {
				lastURL = p.CurrentURL
				_, _ = fmt.Fprintf(w, "[%d/%d] %s\n", p.DocumentsScanned, p.DocumentsTotalEstimate, p.CurrentURL)
			}
		case pipeline.EventResult:
			r := e.Result
			_, _ = fmt.Fprintf(w, "** %s %.2f %s: %q\n", r.TierLabel, r.Confidence, r.DocumentURL, r.MatchedText)
		case pipeline.EventProviderError:
			pe := e.ProviderError
			_, _ = fmt.Fprintf(w, "!! %s failed for %q: %s\n", pe.Provider, pe.Query, pe.Message)
		case pipeline.EventComplete:
			summary = e.Summary
		}
	}
	return summary
}
