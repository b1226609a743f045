// Package patterns provides the tiered regular expressions that detect hidden prize language.
package patterns

import (
	"fmt"
	"iter"
	"regexp"
	"sort"
)

// Tier groups patterns by how strongly they indicate a hidden prize.
type Tier string

const (
	TierStrong   Tier = "strong"
	TierMedium   Tier = "medium"
	TierWeak     Tier = "weak"
	TierNegative Tier = "negative"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierStrong, TierMedium, TierWeak, TierNegative:
		return true
	}
	return false
}

// Definition describes one pattern before compilation.
type Definition struct {
	ID     string  `json:"id"`
	Tier   Tier    `json:"tier"`
	Expr   string  `json:"pattern"`
	Weight float64 `json:"weight"`
}

// Span is a half-open byte range [Start, End) into the scanned text.
type Span struct {
	Start int
	End   int
}

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Hit is a single pattern match.
type Hit struct {
	PatternID     string
	Tier          Tier
	BaseWeight    float64
	MatchedSpan   Span
	MatchedText   string
	ContextWindow Span
}

type pattern struct {
	def   Definition
	re    *regexp.Regexp
	order int
}

// Set is an immutable, ordered collection of compiled patterns.
// A Set is safe for concurrent use.
type Set struct {
	patterns []pattern
}

// ConfigError reports a malformed pattern definition. It is fatal for a run.
type ConfigError struct {
	PatternID string
	Message   string
	Cause     error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pattern config error for %q: %s: %v", e.PatternID, e.Message, e.Cause)
	}
	return fmt.Sprintf("pattern config error for %q: %s", e.PatternID, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// New validates and compiles defs into a Set. Definition order is preserved.
func New(defs []Definition) (*Set, error) {
	if len(defs) == 0 {
		return nil, &ConfigError{Message: "pattern set is empty"}
	}

	seen := make(map[string]bool, len(defs))
	compiled := make([]pattern, 0, len(defs))
	for i, d := range defs {
		if err := validateDefinition(d); err != nil {
			return nil, err
		}
		if seen[d.ID] {
			return nil, &ConfigError{PatternID: d.ID, Message: "duplicate pattern id"}
		}
		seen[d.ID] = true

		re, err := regexp.Compile(d.Expr)
		if err != nil {
			return nil, &ConfigError{PatternID: d.ID, Message: "invalid regular expression", Cause: err}
		}
		compiled = append(compiled, pattern{def: d, re: re, order: i})
	}

	return &Set{patterns: compiled}, nil
}

// MustNew is like New but panics on error. Intended for package-level defaults.
func MustNew(defs []Definition) *Set {
	s, err := New(defs)
	if err != nil {
		panic(err)
	}
	return s
}

func validateDefinition(d Definition) error {
	if d.ID == "" {
		return &ConfigError{Message: "pattern id is required"}
	}
	if !d.Tier.Valid() {
		return &ConfigError{PatternID: d.ID, Message: fmt.Sprintf("unknown tier %q", d.Tier)}
	}
	if d.Expr == "" {
		return &ConfigError{PatternID: d.ID, Message: "pattern expression is required"}
	}
	if d.Weight == 0 || d.Weight > 1 || d.Weight < -1 {
		return &ConfigError{PatternID: d.ID, Message: fmt.Sprintf("weight %.2f out of range", d.Weight)}
	}
	if d.Tier == TierNegative && d.Weight > 0 {
		return &ConfigError{PatternID: d.ID, Message: "negative tier requires a negative weight"}
	}
	if d.Tier != TierNegative && d.Weight < 0 {
		return &ConfigError{PatternID: d.ID, Message: "positive tier requires a positive weight"}
	}
	return nil
}

// Len returns the number of patterns in the set.
func (s *Set) Len() int {
	return len(s.patterns)
}

// Definitions returns a copy of the definitions in their original order.
func (s *Set) Definitions() []Definition {
	defs := make([]Definition, len(s.patterns))
	for i, p := range s.patterns {
		defs[i] = p.def
	}
	return defs
}

// Hits returns every match of every pattern in text, ordered by start offset and
// then by definition order. window is the number of bytes of context captured on
// each side of a match. The sequence can be iterated more than once.
func (s *Set) Hits(text string, window int) iter.Seq[Hit] {
	return func(yield func(Hit) bool) {
		if text == "" {
			return
		}
		for _, h := range s.collect(text, window) {
			if !yield(h) {
				return
			}
		}
	}
}

type orderedHit struct {
	hit   Hit
	order int
}

func (s *Set) collect(text string, window int) []Hit {
	var found []orderedHit
	for _, p := range s.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			span := Span{Start: loc[0], End: loc[1]}
			found = append(found, orderedHit{
				hit: Hit{
					PatternID:     p.def.ID,
					Tier:          p.def.Tier,
					BaseWeight:    p.def.Weight,
					MatchedSpan:   span,
					MatchedText:   text[span.Start:span.End],
					ContextWindow: contextWindow(span, window, len(text)),
				},
				order: p.order,
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].hit.MatchedSpan.Start != found[j].hit.MatchedSpan.Start {
			return found[i].hit.MatchedSpan.Start < found[j].hit.MatchedSpan.Start
		}
		return found[i].order < found[j].order
	})

	hits := make([]Hit, len(found))
	for i, f := range found {
		hits[i] = f.hit
	}
	return hits
}

func contextWindow(span Span, window, textLen int) Span {
	if window < 0 {
		window = 0
	}
	return Span{
		Start: max(0, span.Start-window),
		End:   min(textLen, span.End+window),
	}
}
