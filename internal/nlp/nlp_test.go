package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/fineprint/internal/llm"
	"github.com/jonathan/fineprint/internal/scoring"
)

var (
	_ scoring.NlpScorer = (*Heuristic)(nil)
	_ scoring.NlpScorer = (*LLMScorer)(nil)
)

func TestHeuristic_Adjust(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
	}{
		{
			name:     "plain text",
			text:     "The weather is nice today.",
			expected: 0,
		},
		{
			name:     "instruction and conditional",
			text:     "If you read this, email us at prize@example.com.",
			expected: 0.1,
		},
		{
			name:     "money amount",
			text:     "You will get $500.",
			expected: 0.05,
		},
		{
			name: "legal context with instruction, conditional and money",
			text: "Notwithstanding the arbitration and liability clauses herein, if you " +
				"email us we will send $1,000.",
			expected: 0.2,
		},
		{
			name:     "sweepstakes rules",
			text:     "Sweepstakes odds depend on the number of eligible entries. Sponsor decisions are final.",
			expected: -0.1,
		},
	}

	h := NewHeuristic()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adj, err := h.Adjust(context.Background(), tt.text)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, adj, 1e-9)
			assert.GreaterOrEqual(t, adj, -scoring.MaxAdjustment)
			assert.LessOrEqual(t, adj, scoring.MaxAdjustment)
		})
	}
}

func TestHeuristic_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHeuristic().Adjust(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeClient struct {
	response string
	err      error
	prompt   string
	tier     llm.ModelTier
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	f.prompt = prompt
	f.tier = tier
	return f.response, f.err
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake" }

func (f *fakeClient) Close() error { return nil }

func TestLLMScorer_Adjust(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected float64
	}{
		{"positive", `{"adjustment": 0.15, "reason": "genuine offer"}`, 0.15},
		{"clamped high", `{"adjustment": 0.9}`, 0.2},
		{"clamped low", "```json\n{\"adjustment\": -1}\n```", -0.2},
		{"zero", `Sure: {"adjustment": 0}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{response: tt.response}
			adj, err := NewLLMScorer(client).Adjust(context.Background(), "a hidden prize")
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, adj, 1e-9)
			assert.Equal(t, llm.TierLite, client.tier)
			assert.Contains(t, client.prompt, "a hidden prize")
		})
	}
}

func TestLLMScorer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		client  *fakeClient
		wantMsg string
	}{
		{"client failure", &fakeClient{err: errors.New("quota exceeded")}, "failed to generate adjustment"},
		{"not json", &fakeClient{response: "no idea"}, "failed to parse adjustment response"},
		{"missing field", &fakeClient{response: `{"reason": "unsure"}`}, "adjustment missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMScorer(tt.client).Adjust(context.Background(), "text")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
