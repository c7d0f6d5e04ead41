package scenario

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightloom/adcast/internal/llm"
)

type fakeLLMClient struct {
	content string
	err     error
}

func (f fakeLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

func TestValidateScenarioPassesOnGoodVerdict(t *testing.T) {
	client := fakeLLMClient{content: `{"score": 8, "pass": true, "issues": [], "reason": "ok"}`}
	v := ValidateScenario(context.Background(), client, "잘 쓰여진 시나리오입니다.")
	require.True(t, v.Pass)
	require.Equal(t, 8.0, v.Score)
}

func TestValidateScenarioDefaultsToPassOnUnparseableJSON(t *testing.T) {
	client := fakeLLMClient{content: "I'm not sure how to score this."}
	v := ValidateScenario(context.Background(), client, "text")
	require.True(t, v.Pass)
}

func TestValidateScenarioDefaultsToPassOnLLMError(t *testing.T) {
	client := fakeLLMClient{err: errors.New("upstream unavailable")}
	v := ValidateScenario(context.Background(), client, "text")
	require.True(t, v.Pass)
}

func TestValidateDialogueShortCircuitsOnEmptyCandidate(t *testing.T) {
	client := fakeLLMClient{err: errors.New("should not be called")}
	v := ValidateDialogue(context.Background(), client, DialogueValidatorInput{Candidate: "  "})
	require.True(t, v.Pass)
	require.Equal(t, 10.0, v.Score)
}

func TestValidateDialogueUsesRecentDialoguesWindow(t *testing.T) {
	client := fakeLLMClient{content: `{"score": 4, "pass": false, "issues": ["near-duplicate"], "reason": "too similar"}`}
	v := ValidateDialogue(context.Background(), client, DialogueValidatorInput{
		Candidate:        "기분이 좋네요",
		SceneDescription: "제품을 사용하는 장면",
		RecentDialogues:  []string{"향이 좋네요", "색감이 좋네요"},
	})
	require.False(t, v.Pass)
	require.Equal(t, 4.0, v.Score)
}

func TestLastNReturnsMostRecentWindow(t *testing.T) {
	dialogues := []string{"a", "b", "c", "d", "e"}
	require.Equal(t, []string{"c", "d", "e"}, LastN(dialogues, 3))
	require.Equal(t, dialogues, LastN(dialogues, 10))
}
