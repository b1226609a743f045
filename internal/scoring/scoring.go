// Package scoring combines pattern hits and an optional NLP adjustment into
// confidence values for candidate spans of a document.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jonathan/fineprint/internal/patterns"
	"github.com/jonathan/fineprint/internal/types"
)

// DefaultReportingFloor is the minimum confidence for a candidate to be reported.
const DefaultReportingFloor = 0.1

// MaxAdjustment bounds the NLP adjustment in either direction.
const MaxAdjustment = 0.2

// sentenceSearch is how far into a context window we look for a sentence boundary.
const sentenceSearch = 100

// NlpScorer returns a bounded confidence adjustment for a context passage.
// Implementations may call remote services; they must honour ctx.
type NlpScorer interface {
	Adjust(ctx context.Context, contextText string) (float64, error)
}

// NlpError wraps a failed adjustment. Scoring falls back to the pattern-only value.
type NlpError struct {
	Cause error
}

func (e *NlpError) Error() string {
	return fmt.Sprintf("nlp adjustment failed: %v", e.Cause)
}

func (e *NlpError) Unwrap() error {
	return e.Cause
}

// Match is one scored candidate span.
type Match struct {
	Confidence   float64
	PatternScore float64
	Adjustment   float64
	Label        types.TierLabel
	MatchedText  string
	Context      string
	PatternIDs   []string
	Span         patterns.Span
	firstHit     int
}

// ToResult converts m into a persistable Result for documentURL.
func (m Match) ToResult(documentURL string, now time.Time) types.Result {
	return types.Result{
		ID:          uuid.NewString(),
		DocumentURL: documentURL,
		MatchedText: m.MatchedText,
		Context:     m.Context,
		Confidence:  m.Confidence,
		TierLabel:   m.Label,
		PatternIDs:  append([]string(nil), m.PatternIDs...),
		SpanStart:   m.Span.Start,
		SpanEnd:     m.Span.End,
		CreatedAt:   now,
	}
}

// Engine scores document text. An Engine is safe for concurrent use.
type Engine struct {
	set    *patterns.Set
	nlp    NlpScorer
	floor  float64
	window int
	logger *slog.Logger
	onNlp  func(err error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithNlpScorer enables the adjustment stage.
func WithNlpScorer(s NlpScorer) Option { return func(e *Engine) { e.nlp = s } }

// WithReportingFloor sets the minimum reported confidence.
func WithReportingFloor(f float64) Option { return func(e *Engine) { e.floor = f } }

// WithContextWindow sets the number of characters kept on each side of a hit.
func WithContextWindow(n int) Option { return func(e *Engine) { e.window = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithNlpObserver registers a callback invoked after each adjustment call.
// err is nil on success.
func WithNlpObserver(fn func(err error)) Option { return func(e *Engine) { e.onNlp = fn } }

// New creates an Engine over set. A nil set uses patterns.Default().
func New(set *patterns.Set, opts ...Option) *Engine {
	if set == nil {
		set = patterns.Default()
	}
	e := &Engine{
		set:    set,
		floor:  DefaultReportingFloor,
		window: patterns.DefaultContextWindow,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// candidate is a group of positive hits whose context windows intersect.
type candidate struct {
	hits   []patterns.Hit
	window patterns.Span
	first  int
}

// penalty is the document-wide negative evidence. Each negative pattern counts
// once no matter how often or where it matches.
type penalty struct {
	weight float64
	ids    []string
}

// Score returns the matches in text at or above the reporting floor, ordered by
// confidence descending. Equal confidences keep the order of first occurrence.
func (e *Engine) Score(ctx context.Context, text string) ([]Match, error) {
	groups, neg := e.group(text)

	var matches []Match
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m, ok := e.scoreCandidate(ctx, text, g, neg)
		if !ok {
			continue
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].firstHit < matches[j].firstHit
	})

	return matches, nil
}

// group clusters positive hits by overlapping context windows and collects
// negative hits separately.
func (e *Engine) group(text string) ([]candidate, penalty) {
	var groups []candidate
	var neg penalty
	i := 0
	for h := range e.set.Hits(text, e.window) {
		if h.Tier == patterns.TierNegative {
			if !slices.Contains(neg.ids, h.PatternID) {
				neg.ids = append(neg.ids, h.PatternID)
				neg.weight += h.BaseWeight
			}
			continue
		}
		n := len(groups)
		if n > 0 && groups[n-1].window.Overlaps(h.ContextWindow) {
			g := &groups[n-1]
			g.hits = append(g.hits, h)
			g.window.End = max(g.window.End, h.ContextWindow.End)
		} else {
			groups = append(groups, candidate{
				hits:   []patterns.Hit{h},
				window: h.ContextWindow,
				first:  i,
			})
		}
		i++
	}
	return groups, neg
}

func (e *Engine) scoreCandidate(ctx context.Context, text string, g candidate, neg penalty) (Match, bool) {
	if len(g.hits) == 0 {
		return Match{}, false
	}

	var sum float64
	var best *patterns.Hit
	var ids []string
	span := g.hits[0].MatchedSpan

	for i := range g.hits {
		h := &g.hits[i]
		sum += h.BaseWeight
		if !slices.Contains(ids, h.PatternID) {
			ids = append(ids, h.PatternID)
		}
		span.Start = min(span.Start, h.MatchedSpan.Start)
		span.End = max(span.End, h.MatchedSpan.End)
		if best == nil || h.BaseWeight > best.BaseWeight {
			best = h
		}
	}
	ids = append(ids, neg.ids...)

	patternScore := clamp(sum+neg.weight, 0, 1)
	contextText := extractContext(text, span, e.window)

	confidence := patternScore
	var adjustment float64
	if e.nlp != nil {
		adj, err := e.nlp.Adjust(ctx, contextText)
		if e.onNlp != nil {
			e.onNlp(err)
		}
		if err != nil {
			e.logger.Debug("nlp adjustment unavailable, using pattern score",
				"error", &NlpError{Cause: err})
		} else {
			adjustment = clamp(adj, -MaxAdjustment, MaxAdjustment)
			confidence = clamp(patternScore+adjustment, 0, 1)
		}
	}

	confidence = round4(confidence)
	if confidence < e.floor {
		return Match{}, false
	}

	return Match{
		Confidence:   confidence,
		PatternScore: round4(patternScore),
		Adjustment:   adjustment,
		Label:        types.LabelFor(confidence),
		MatchedText:  best.MatchedText,
		Context:      contextText,
		PatternIDs:   ids,
		Span:         span,
		firstHit:     g.first,
	}, true
}

// extractContext returns up to window characters around span, starting at the
// first sentence boundary when one appears early in the leading context.
func extractContext(text string, span patterns.Span, window int) string {
	start := max(0, span.Start-window)
	end := min(len(text), span.End+window)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	ctx := text[start:end]

	if start > 0 {
		lead := ctx[:min(len(ctx), sentenceSearch)]
		if idx := strings.Index(lead, ". "); idx >= 0 && start+idx+2 <= span.Start {
			ctx = ctx[idx+2:]
		}
	}

	return strings.TrimSpace(strings.Join(strings.Fields(ctx), " "))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
