package matcher

import (
	"context"
	"errors"
	"testing"

	"recruit-agent-go/internal/llm"
	"recruit-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validLLMResponse = "```json\n" + `{
  "match_score": 88,
  "strengths": [
    {"facet": "skills", "claim": "精通Go与SQL，完全覆盖核心技能要求"}
  ],
  "weaknesses": [
    {"facet": "qualifications", "claim": "未见岗位要求的云计算认证"}
  ],
  "gaps": [
    {"description": "缺少AWS认证", "type": "qualifications", "severity": "medium"}
  ],
  "one_solution": "考取AWS认证以补齐资质差距"
}` + "\n```"

func TestLLMEvaluateParsesResponse(t *testing.T) {
	mockModel := llm.NewMockChatModel(llm.MockResponse{Content: validLLMResponse})
	evaluator, err := NewLLMEvaluator(mockModel, 0.1)
	require.NoError(t, err)

	result, err := evaluator.Evaluate(context.Background(), strongMatchInput())
	require.NoError(t, err)

	assert.Equal(t, 88, result.MatchScore)
	require.Len(t, result.Strengths, 1)
	assert.Equal(t, "skills", result.Strengths[0].Facet)
	require.Len(t, result.Gaps, 1)
	assert.Equal(t, "medium", result.Gaps[0].Severity)
	assert.NotEmpty(t, result.OneSolution)

	// Prompt中应包含需求与画像的结构化内容
	require.Equal(t, 1, mockModel.CallCount())
	messages := mockModel.ReceivedMessages[0]
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, "Senior Go Developer")
}

func TestLLMEvaluateNormalizesResult(t *testing.T) {
	// 越界分数收敛到上限，未知严重程度回落到medium
	response := `{
  "match_score": 150,
  "strengths": [{"facet": "skills", "claim": "x"}],
  "weaknesses": [{"facet": "overall", "claim": "y"}],
  "gaps": [{"description": "z", "type": "skills", "severity": "CRITICAL"}],
  "one_solution": "do z"
}`
	mockModel := llm.NewMockChatModel(llm.MockResponse{Content: response})
	evaluator, err := NewLLMEvaluator(mockModel, 0.1)
	require.NoError(t, err)

	result, err := evaluator.Evaluate(context.Background(), strongMatchInput())
	require.NoError(t, err)
	assert.Equal(t, 100, result.MatchScore)
	assert.Equal(t, "medium", result.Gaps[0].Severity)
}

func TestLLMEvaluateRejectsInvalidResult(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{
			name:     "非JSON响应",
			response: "抱歉，我无法评估这份画像。",
		},
		{
			name: "缺少strengths",
			response: `{
  "match_score": 70,
  "strengths": [],
  "weaknesses": [{"facet": "overall", "claim": "y"}],
  "gaps": [{"description": "z", "type": "skills", "severity": "low"}],
  "one_solution": "do z"
}`,
		},
		{
			name: "缺少one_solution",
			response: `{
  "match_score": 70,
  "strengths": [{"facet": "skills", "claim": "x"}],
  "weaknesses": [{"facet": "overall", "claim": "y"}],
  "gaps": [{"description": "z", "type": "skills", "severity": "low"}],
  "one_solution": ""
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockModel := llm.NewMockChatModel(llm.MockResponse{Content: tt.response})
			evaluator, err := NewLLMEvaluator(mockModel, 0.1)
			require.NoError(t, err)

			_, err = evaluator.Evaluate(context.Background(), strongMatchInput())
			assert.ErrorIs(t, err, ErrInvalidResult)
		})
	}
}

func TestLLMEvaluateModelError(t *testing.T) {
	mockModel := llm.NewMockChatModel(llm.MockResponse{Error: errors.New("upstream unavailable")})
	evaluator, err := NewLLMEvaluator(mockModel, 0.1)
	require.NoError(t, err)

	_, err = evaluator.Evaluate(context.Background(), strongMatchInput())
	assert.ErrorIs(t, err, ErrEvaluationFailed)
}

func TestLLMEvaluateIncompleteProfileSkipsModelCall(t *testing.T) {
	mockModel := llm.NewMockChatModel(llm.MockResponse{Content: validLLMResponse})
	evaluator, err := NewLLMEvaluator(mockModel, 0.1)
	require.NoError(t, err)

	input := strongMatchInput()
	input.Profile = types.ProfileFacets{}
	_, err = evaluator.Evaluate(context.Background(), input)

	assert.ErrorIs(t, err, ErrIncompleteProfile)
	// 低质量画像在调用LLM之前就被拒绝
	assert.Equal(t, 0, mockModel.CallCount())
}
