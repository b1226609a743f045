package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/fineprint/internal/patterns"
	"github.com/jonathan/fineprint/internal/types"
)

const tosWithPrize = "Terms of Service - ACME Corporation\n" +
	"Last updated: January 1, 2024\n\n" +
	"1. ACCEPTANCE OF TERMS\n" +
	"By accessing or using our services, you agree to be bound by these Terms " +
	"of Service. If you do not agree, do not use our services.\n\n" +
	"2. USER ACCOUNTS\n" +
	"You must provide accurate information when creating an account. You are " +
	"responsible for maintaining the security of your account.\n\n" +
	"47. GENERAL PROVISIONS\n" +
	"If you've read this far, you are one of the very few people who actually " +
	"reads our terms of service. As a reward, email us at prize@acme.com with " +
	"the subject line 'I read the TOS' and we will send you a $500 gift card. " +
	"This offer is limited to the first 10 people who contact us.\n\n" +
	"48. GOVERNING LAW\n" +
	"These Terms shall be governed by the laws of the State of Delaware.\n"

const normalTOS = "Terms of Service - Normal Corp\n" +
	"Last updated: March 15, 2024\n\n" +
	"By using this website, you agree to these terms. We reserve the right to " +
	"modify these terms at any time. Your continued use constitutes acceptance.\n\n" +
	"LIMITATION OF LIABILITY\n" +
	"In no event shall Normal Corp be liable for any indirect, incidental, " +
	"special, consequential or punitive damages.\n\n" +
	"GOVERNING LAW\n" +
	"These terms are governed by the laws of California.\n"

const sweepstakesRules = "OFFICIAL SWEEPSTAKES RULES\n" +
	"NO PURCHASE NECESSARY TO ENTER OR WIN.\n\n" +
	"The contest is open to legal residents of the United States who are 18 " +
	"years of age or older. Void where prohibited by law.\n\n" +
	"PRIZE: One winner will receive a $1,000 gift card. Odds of winning depend " +
	"on the number of eligible entries received.\n\n" +
	"By entering, you agree to the official rules and the decisions of the " +
	"judges, which are final.\n"

type stubNlp struct {
	adj   float64
	err   error
	calls int
}

func (s *stubNlp) Adjust(_ context.Context, _ string) (float64, error) {
	s.calls++
	return s.adj, s.err
}

func TestScore_HiddenPrizeDocument(t *testing.T) {
	matches, err := New(nil).Score(context.Background(), tosWithPrize)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	top := matches[0]
	assert.GreaterOrEqual(t, top.Confidence, 0.5)
	assert.Contains(t, top.PatternIDs, "read_this_far")
	assert.Equal(t, types.LabelHigh, top.Label)
	assert.Contains(t, top.Context, "read this far")
}

func TestScore_NormalTermsNotFlagged(t *testing.T) {
	matches, err := New(nil).Score(context.Background(), normalTOS)
	require.NoError(t, err)

	for _, m := range matches {
		assert.Less(t, m.Confidence, 0.3)
	}
}

func TestScore_SweepstakesRulesPenalized(t *testing.T) {
	matches, err := New(nil).Score(context.Background(), sweepstakesRules)
	require.NoError(t, err)

	for _, m := range matches {
		assert.Less(t, m.Confidence, 0.5)
	}
}

func TestScore_StrongSignalHighConfidence(t *testing.T) {
	text := "Terms of Service\n\n" +
		"1. General Terms\n" +
		"These terms govern your use of our service.\n\n" +
		"2. Hidden Section\n" +
		"If you've read this far, you are one of the very few customers " +
		"who actually reads the fine print. Congratulations! " +
		"Email us at secret@company.com to claim your $5,000 cash prize. " +
		"This offer is limited to the first person to contact us.\n\n" +
		"3. Governing Law\n" +
		"These terms are governed by the laws of Delaware.\n"

	matches, err := New(nil).Score(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.GreaterOrEqual(t, matches[0].Confidence, 0.7)
	assert.GreaterOrEqual(t, len(matches[0].PatternIDs), 2)
}

func fixtureSet(t *testing.T) *patterns.Set {
	t.Helper()
	s, err := patterns.New([]patterns.Definition{
		{ID: "win_dollars", Tier: patterns.TierStrong, Expr: `(?i)win\s+\$[\d,]+`, Weight: 0.75},
		{ID: "hidden_prize", Tier: patterns.TierStrong, Expr: `(?i)hidden\s+prize`, Weight: 0.75},
		{ID: "official_rules_medium", Tier: patterns.TierMedium, Expr: `(?i)official\s+rules`, Weight: 0.25},
	})
	require.NoError(t, err)
	return s
}

func TestScore_SweepstakesSentenceScenario(t *testing.T) {
	text := "By entering this sweepstakes you could win $10,000. See official rules for eligibility."

	matches, err := New(fixtureSet(t)).Score(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.Equal(t, 1.0, matches[0].Confidence)
	assert.Equal(t, types.LabelHigh, matches[0].Label)
	assert.Equal(t, []string{"win_dollars", "official_rules_medium"}, matches[0].PatternIDs)
	assert.Equal(t, "win $10,000", matches[0].MatchedText)
}

func TestScore_NegativePatternSuppresses(t *testing.T) {
	set, err := patterns.New([]patterns.Definition{
		{ID: "hidden_prize", Tier: patterns.TierStrong, Expr: `(?i)hidden\s+prize`, Weight: 0.75},
		{ID: "official_rules", Tier: patterns.TierNegative, Expr: `(?i)official\s+rules`, Weight: -0.35},
	})
	require.NoError(t, err)
	engine := New(set)

	without, err := engine.Score(context.Background(), "Somewhere in this agreement is a hidden prize.")
	require.NoError(t, err)
	require.Len(t, without, 1)

	with, err := engine.Score(context.Background(), "Somewhere in this agreement is a hidden prize. See the official rules.")
	require.NoError(t, err)
	require.Len(t, with, 1)

	assert.Equal(t, 0.75, without[0].Confidence)
	assert.Equal(t, 0.4, with[0].Confidence)
	assert.Less(t, with[0].Confidence, without[0].Confidence)
	assert.Equal(t, types.LabelMedium, with[0].Label)
}

func TestScore_NegativeAppliesDocumentWide(t *testing.T) {
	set, err := patterns.New([]patterns.Definition{
		{ID: "hidden_prize", Tier: patterns.TierStrong, Expr: `(?i)hidden\s+prize`, Weight: 0.75},
		{ID: "official_rules", Tier: patterns.TierNegative, Expr: `(?i)official\s+rules`, Weight: -0.35},
	})
	require.NoError(t, err)
	engine := New(set)

	filler := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	text := "OFFICIAL RULES\n" + filler + "Somewhere in this agreement is a hidden prize."
	require.Greater(t, strings.Index(text, "hidden prize"), 2*patterns.DefaultContextWindow)

	matches, err := engine.Score(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.Equal(t, 0.4, matches[0].Confidence)
	assert.Equal(t, []string{"hidden_prize", "official_rules"}, matches[0].PatternIDs)
	assert.Equal(t, "hidden prize", matches[0].MatchedText)
}

func TestScore_NegativeCountedOncePerPattern(t *testing.T) {
	set, err := patterns.New([]patterns.Definition{
		{ID: "hidden_prize", Tier: patterns.TierStrong, Expr: `(?i)hidden\s+prize`, Weight: 0.75},
		{ID: "official_rules", Tier: patterns.TierNegative, Expr: `(?i)official\s+rules`, Weight: -0.35},
	})
	require.NoError(t, err)

	text := "See the official rules. A hidden prize awaits. Official rules apply. Read the official rules."
	matches, err := New(set).Score(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0.4, matches[0].Confidence)
}

func TestScore_NegativeOnlyCandidateDiscarded(t *testing.T) {
	matches, err := New(nil).Score(context.Background(), "NO PURCHASE NECESSARY. Void where prohibited.")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestScore_Deterministic(t *testing.T) {
	engine := New(nil)
	first, err := engine.Score(context.Background(), tosWithPrize)
	require.NoError(t, err)

	for range 5 {
		again, err := engine.Score(context.Background(), tosWithPrize)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScore_IndependentCandidatesOrdering(t *testing.T) {
	filler := strings.Repeat("lorem ipsum ", 20)
	text := "a hidden prize " + filler + "you could win $50 " + filler + "another hidden prize"

	matches, err := New(fixtureSet(t), WithContextWindow(20)).Score(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	for _, m := range matches {
		assert.Equal(t, 0.75, m.Confidence)
	}
	assert.Less(t, matches[0].Span.Start, matches[1].Span.Start)
	assert.Less(t, matches[1].Span.Start, matches[2].Span.Start)
	assert.Equal(t, []string{"win_dollars"}, matches[1].PatternIDs)
}

func TestScore_ConfidenceOrdering(t *testing.T) {
	filler := strings.Repeat("lorem ipsum ", 20)
	text := "see official rules " + filler + "a hidden prize awaits, see official rules"

	matches, err := New(fixtureSet(t), WithContextWindow(20)).Score(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, 1.0, matches[0].Confidence)
	assert.Equal(t, 0.25, matches[1].Confidence)
	assert.Equal(t, types.LabelLow, matches[1].Label)
}

func TestScore_ReportingFloor(t *testing.T) {
	text := "There is an easter egg buried in here."

	matches, err := New(nil).Score(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	matches, err = New(nil, WithReportingFloor(0.5)).Score(context.Background(), text)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestScore_NlpAdjustment(t *testing.T) {
	text := "Somewhere here is a hidden prize."

	tests := []struct {
		name     string
		nlp      *stubNlp
		expected float64
	}{
		{"positive adjustment", &stubNlp{adj: 0.1}, 0.85},
		{"clamped positive", &stubNlp{adj: 0.9}, 0.95},
		{"clamped negative", &stubNlp{adj: -0.9}, 0.55},
		{"failure falls back", &stubNlp{err: errors.New("model unavailable")}, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var observed []error
			engine := New(fixtureSet(t),
				WithNlpScorer(tt.nlp),
				WithNlpObserver(func(err error) { observed = append(observed, err) }))

			matches, err := engine.Score(context.Background(), text)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, tt.expected, matches[0].Confidence)
			assert.Equal(t, 1, tt.nlp.calls)
			require.Len(t, observed, 1)
			assert.Equal(t, tt.nlp.err, observed[0])
		})
	}
}

func TestScore_NlpClampsToUnitInterval(t *testing.T) {
	text := "By entering you could win $10,000. See official rules."
	engine := New(fixtureSet(t), WithNlpScorer(&stubNlp{adj: 0.2}))

	matches, err := engine.Score(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1.0, matches[0].Confidence)
	assert.Equal(t, 1.0, matches[0].PatternScore)
}

func TestScore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Score(ctx, tosWithPrize)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractContext(t *testing.T) {
	text := strings.Repeat("A", 500) + "HIDDEN PRIZE HERE" + strings.Repeat("B", 500)

	ctx := extractContext(text, patterns.Span{Start: 500, End: 517}, 50)
	assert.Contains(t, ctx, "HIDDEN PRIZE HERE")
	assert.Less(t, len(ctx), 200)
}

func TestExtractContext_StartsAtSentence(t *testing.T) {
	text := "Some earlier words here. The hidden prize is real."
	start := strings.Index(text, "hidden")

	ctx := extractContext(text, patterns.Span{Start: start, End: start + len("hidden prize")}, 20)
	assert.True(t, strings.HasPrefix(ctx, "The hidden prize"), ctx)
}

func TestMatch_ToResult(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := Match{
		Confidence:  0.8,
		Label:       types.LabelHigh,
		MatchedText: "hidden prize",
		Context:     "a hidden prize",
		PatternIDs:  []string{"hidden_reward"},
		Span:        patterns.Span{Start: 2, End: 14},
	}

	r := m.ToResult("https://example.com/terms", now)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "https://example.com/terms", r.DocumentURL)
	assert.Equal(t, 2, r.SpanStart)
	assert.Equal(t, 14, r.SpanEnd)
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, types.LabelHigh, r.TierLabel)
}
