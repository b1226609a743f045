// Package observability provides logging, metrics and formatted CLI output.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/fineprint/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		line = truncate(line, boxWidth-4)
		// %-*s pads by bytes; pad by runes instead.
		pad := boxWidth - 4 - utf8.RuneCountInString(line)
		fmt.Fprintf(p.out, "│ %s%s │\n", line, strings.Repeat(" ", max(pad, 0)))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintResults outputs the highest-confidence results.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintResults(results []types.Result) {
	if len(results) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO RESULTS FOUND")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results:\n\n", len(results)))

	count := min(len(results), maxItemsToShow)
	for i := 0; i < count; i++ {
		r := results[i]
		sb.WriteString(fmt.Sprintf("#%d  [%s %.2f] %s\n", i+1, r.TierLabel, r.Confidence, r.DocumentURL))
		sb.WriteString(fmt.Sprintf("    %q\n", truncate(r.MatchedText, 60)))
		if len(r.PatternIDs) > 0 {
			sb.WriteString(fmt.Sprintf("    Patterns: %s\n", strings.Join(r.PatternIDs, ", ")))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(results) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more results", len(results)-maxItemsToShow))
	}

	p.printBox("RESULTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintContext outputs the full context of one result.
func (p *Printer) PrintContext(r types.Result) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("URL:        %s\n", r.DocumentURL))
	sb.WriteString(fmt.Sprintf("Confidence: %.4f (%s)\n", r.Confidence, r.TierLabel))
	sb.WriteString(fmt.Sprintf("Span:       %d-%d\n\n", r.SpanStart, r.SpanEnd))
	sb.WriteString(wrap(r.Context, boxWidth-4))
	p.printBox("MATCH CONTEXT", sb.String())
}

// PrintStats outputs store statistics.
func (p *Printer) PrintStats(stats types.Stats) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Documents scanned:  %d\n", stats.DocumentsScanned))
	sb.WriteString(fmt.Sprintf("Fetch failures:     %d\n", stats.FetchFailures))
	sb.WriteString(fmt.Sprintf("Pending candidates: %d\n", stats.PendingCandidates))
	sb.WriteString(fmt.Sprintf("Queries run:        %d\n", stats.QueriesRun))
	sb.WriteString(fmt.Sprintf("Results found:      %d", stats.ResultsFound))
	p.printBox("STORE STATISTICS", sb.String())
}

// PrintSummary outputs the end-of-run summary.
func (p *Printer) PrintSummary(state string, progress types.SearchProgress, droppedEvents int, duration time.Duration, errText string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("State:              %s\n", state))
	sb.WriteString(fmt.Sprintf("Documents scanned:  %d\n", progress.DocumentsScanned))
	sb.WriteString(fmt.Sprintf("Documents analyzed: %d\n", progress.DocumentsAnalyzed))
	sb.WriteString(fmt.Sprintf("Fetch failures:     %d\n", progress.FetchFailures))
	sb.WriteString(fmt.Sprintf("Results found:      %d\n", progress.ResultsFound))
	sb.WriteString(fmt.Sprintf("Duration:           %s", duration.Round(time.Millisecond)))
	if droppedEvents > 0 {
		sb.WriteString(fmt.Sprintf("\nDropped events:     %d", droppedEvents))
	}
	if errText != "" {
		sb.WriteString(fmt.Sprintf("\nError:              %s", errText))
	}
	p.printBox("RUN SUMMARY", sb.String())
}

// wrap breaks text into lines of at most width runes on word boundaries.
func wrap(text string, width int) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && utf8.RuneCountInString(line.String())+1+utf8.RuneCountInString(word) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
