package matcher

import (
	"context"

	"recruit-agent-go/internal/types"
)

// MatchInput 一次匹配评估的完整输入
type MatchInput struct {
	ProfileID       string
	RequirementID   string
	Requirement     types.CompiledRequirement
	Profile         types.ProfileFacets
	ParseConfidence float64 // 画像解析置信度 [0,1]
}

// Evaluator 匹配评估后端。成功返回的结果满足：分数在[0,100]内，
// Strengths / Weaknesses / Gaps 非空，OneSolution 非空。
type Evaluator interface {
	Evaluate(ctx context.Context, input *MatchInput) (*types.AnalysisResult, error)
}

// validateResult 校验评估产出是否满足结果约束，本地与LLM后端共用
func validateResult(input *MatchInput, result *types.AnalysisResult) error {
	if result.MatchScore < 0 || result.MatchScore > 100 {
		return NewInvalidResultError(input.ProfileID, input.RequirementID,
			"match_score 越界")
	}
	if len(result.Strengths) == 0 || len(result.Weaknesses) == 0 || len(result.Gaps) == 0 {
		return NewInvalidResultError(input.ProfileID, input.RequirementID,
			"strengths/weaknesses/gaps 不允许为空")
	}
	if result.OneSolution == "" {
		return NewInvalidResultError(input.ProfileID, input.RequirementID,
			"one_solution 不允许为空")
	}
	return nil
}
