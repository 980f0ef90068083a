package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"recruit-agent-go/internal/constants"
	"recruit-agent-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// llmPromptTemplate 匹配评估的Prompt模板，要求严格JSON输出
const llmPromptTemplate = `你是一位资深的AI招聘专家。基于下面的【结构化岗位需求】和【候选人画像】，给出匹配度评估。

请严格按照以下JSON格式输出：
1. "match_score": 整数 (0-100)，整体匹配度。
2. "strengths": 对象数组（至少1项），每项形如 {"facet": "...", "claim": "..."}，facet 取值限定为 skills / seniority / qualifications / overall。
3. "weaknesses": 对象数组（至少1项），格式同上。
4. "gaps": 对象数组（至少1项），每项形如 {"description": "...", "type": "...", "severity": "..."}，type 取值同facet，severity 取值限定为 low / medium / high。
5. "one_solution": 字符串，针对最严重差距的一条可执行建议。

**JSON格式要求：**
- 输出必须是标准JSON，字段名使用双引号，字符串内部的双引号用反斜杠转义。
- 不要在JSON之外添加任何文本。
- 即使匹配度很高，gaps 也至少给出一条（可以是 severity 为 low 的轻微差距）。

【结构化岗位需求】:
"""
%s
"""

【候选人画像】:
"""
%s
"""

请仔细评估并输出纯JSON。`

// LLMEvaluator 基于LLM的匹配评估后端
type LLMEvaluator struct {
	llmModel        model.ChatModel
	promptTemplate  string
	confidenceFloor float64
}

// 确保LLMEvaluator实现了Evaluator接口
var _ Evaluator = (*LLMEvaluator)(nil)

// LLMEvaluatorOption LLM评估器的配置选项
type LLMEvaluatorOption func(*LLMEvaluator)

// WithPromptTemplate 设置自定义提示词模板
func WithPromptTemplate(template string) LLMEvaluatorOption {
	return func(e *LLMEvaluator) {
		e.promptTemplate = template
	}
}

// NewLLMEvaluator 创建LLM评估器。confidenceFloor 与本地后端语义一致：
// 低置信度画像在调用LLM之前就被拒绝。
func NewLLMEvaluator(llmModel model.ChatModel, confidenceFloor float64, options ...LLMEvaluatorOption) (*LLMEvaluator, error) {
	if llmModel == nil {
		return nil, fmt.Errorf("llmModel不能为空")
	}
	evaluator := &LLMEvaluator{
		llmModel:        llmModel,
		promptTemplate:  llmPromptTemplate,
		confidenceFloor: confidenceFloor,
	}
	for _, opt := range options {
		opt(evaluator)
	}
	return evaluator, nil
}

// Evaluate 调用LLM执行匹配评估
func (e *LLMEvaluator) Evaluate(ctx context.Context, input *MatchInput) (*types.AnalysisResult, error) {
	if input == nil {
		return nil, fmt.Errorf("匹配输入不能为空")
	}
	if input.ParseConfidence < e.confidenceFloor || input.Profile.IsEmpty() {
		return nil, NewIncompleteProfileError(input.ProfileID, input.RequirementID, input.ParseConfidence)
	}

	requirementJSON, err := json.MarshalIndent(input.Requirement, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化需求失败: %w", err)
	}
	profileJSON, err := json.MarshalIndent(input.Profile, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化画像失败: %w", err)
	}

	prompt := fmt.Sprintf(e.promptTemplate, string(requirementJSON), string(profileJSON))
	messages := []*einoschema.Message{
		einoschema.SystemMessage("你是一位资深的AI招聘助手，专注于岗位需求与候选人画像的匹配度分析。"),
		einoschema.UserMessage(prompt),
	}

	response, err := e.llmModel.Generate(ctx, messages)
	if err != nil {
		return nil, NewEvaluationError(input.ProfileID, input.RequirementID, err)
	}
	if response == nil || response.Content == "" {
		return nil, NewEvaluationError(input.ProfileID, input.RequirementID,
			fmt.Errorf("LLM返回了空响应"))
	}

	jsonStr := extractJSON(response.Content)
	if jsonStr == "" {
		return nil, NewInvalidResultError(input.ProfileID, input.RequirementID,
			"LLM响应中未找到JSON")
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, NewInvalidResultError(input.ProfileID, input.RequirementID,
			fmt.Sprintf("反序列化LLM JSON失败: %v", err))
	}

	normalizeLLMResult(&result)
	if err := validateResult(input, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// normalizeLLMResult 收敛LLM输出中轻微越界的字段，结构性缺失仍交给validateResult拒绝
func normalizeLLMResult(result *types.AnalysisResult) {
	if result.MatchScore < 0 {
		result.MatchScore = 0
	}
	if result.MatchScore > 100 {
		result.MatchScore = 100
	}
	for i := range result.Gaps {
		switch strings.ToLower(result.Gaps[i].Severity) {
		case constants.SeverityLow, constants.SeverityMedium, constants.SeverityHigh:
			result.Gaps[i].Severity = strings.ToLower(result.Gaps[i].Severity)
		default:
			result.Gaps[i].Severity = constants.SeverityMedium
		}
	}
}

// extractJSON 用花括号配平从文本中提取第一个完整的JSON对象
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
