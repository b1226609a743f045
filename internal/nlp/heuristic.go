// Package nlp provides NlpScorer implementations that refine pattern-based
// confidence using the wording around a match.
package nlp

import (
	"context"
	"regexp"
	"strings"
)

var legalIndicators = map[string]bool{
	"hereby": true, "whereas": true, "notwithstanding": true, "herein": true,
	"pursuant": true, "indemnify": true, "liability": true, "arbitration": true,
	"jurisdiction": true, "governing": true, "warranties": true, "disclaimers": true,
	"severability": true, "termination": true, "confidentiality": true, "intellectual": true,
}

var actionWords = map[string]bool{
	"email": true, "call": true, "contact": true, "visit": true,
	"send": true, "write": true, "reply": true,
}

var promoIndicators = map[string]bool{
	"sweepstakes": true, "entrants": true, "entry": true, "entries": true,
	"eligibility": true, "odds": true, "sponsor": true, "sponsored": true,
}

var (
	wordRe  = regexp.MustCompile(`[a-z]+`)
	moneyRe = regexp.MustCompile(`\$\s?\d[\d,]*(\.\d{2})?|\b\d[\d,]*\s?(dollars|usd)\b`)
)

// Heuristic weights.
const (
	legalBonus   = 0.1
	actionBonus  = 0.05
	ifYouBonus   = 0.05
	moneyBonus   = 0.05
	promoPenalty = -0.1
	maxBonus     = 0.2
)

// Heuristic scores a passage with fixed lexical rules. It makes no network calls
// and never fails.
type Heuristic struct{}

// NewHeuristic returns a Heuristic scorer.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Adjust returns a value in [-0.2, 0.2].
//
// Legal vocabulary confirms the passage sits in a legal document, instructions
// ("email us") and conditionals ("if you") are typical of hidden offers, money
// amounts suggest a concrete prize, and sweepstakes vocabulary points to
// ordinary promotional rules.
func (h *Heuristic) Adjust(ctx context.Context, contextText string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	lower := strings.ToLower(contextText)
	words := wordRe.FindAllString(lower, -1)

	legal, promo := 0, 0
	action := false
	for _, w := range words {
		if legalIndicators[w] {
			legal++
		}
		if promoIndicators[w] {
			promo++
		}
		if actionWords[w] {
			action = true
		}
	}

	score := 0.0
	if legal >= 3 {
		score += legalBonus
	}
	if action {
		score += actionBonus
	}
	if strings.Contains(lower, "if you") {
		score += ifYouBonus
	}
	if moneyRe.MatchString(lower) {
		score += moneyBonus
	}
	score = min(score, maxBonus)
	if promo >= 2 {
		score += promoPenalty
	}

	return max(-maxBonus, min(maxBonus, score)), nil
}
