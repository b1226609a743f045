package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jonathan/fineprint/internal/llm"
)

// maxPassage bounds the text sent to the model.
const maxPassage = 4000

// LLMScorer asks a language model to judge a passage.
type LLMScorer struct {
	client llm.Client
	tier   llm.ModelTier
}

// NewLLMScorer creates a scorer backed by client.
func NewLLMScorer(client llm.Client) *LLMScorer {
	return &LLMScorer{client: client, tier: llm.TierLite}
}

type adjustmentResponse struct {
	Adjustment *float64 `json:"adjustment"`
	Reason     string   `json:"reason"`
}

// Adjust returns the model's adjustment clamped to [-0.2, 0.2].
func (s *LLMScorer) Adjust(ctx context.Context, contextText string) (float64, error) {
	passage := contextText
	if len(passage) > maxPassage {
		passage = passage[:maxPassage]
	}

	prompt := llm.BuildExtractionPrompt(llm.ContextAdjustmentSchema(), passage)
	raw, err := s.client.GenerateJSON(ctx, prompt, s.tier)
	if err != nil {
		return 0, fmt.Errorf("failed to generate adjustment: %w", err)
	}

	var resp adjustmentResponse
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &resp); err != nil {
		return 0, fmt.Errorf("failed to parse adjustment response: %w", err)
	}
	if resp.Adjustment == nil || math.IsNaN(*resp.Adjustment) {
		return 0, fmt.Errorf("adjustment missing from response")
	}

	return max(-maxBonus, min(maxBonus, *resp.Adjustment)), nil
}
