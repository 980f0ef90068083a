package matcher

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrIncompleteProfile = errors.New("画像结构化信息不足，无法给出可靠的匹配结果")
	ErrEvaluationFailed  = errors.New("匹配评估执行失败")
	ErrInvalidResult     = errors.New("评估产出不符合结果约束")
)

// MatchError 携带画像与需求上下文的匹配错误
type MatchError struct {
	ProfileID     string
	RequirementID string
	BaseErr       error
	Detail        string
}

func (e *MatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (画像:%s, 需求:%s): %s", e.BaseErr, e.ProfileID, e.RequirementID, e.Detail)
	}
	return fmt.Sprintf("%s (画像:%s, 需求:%s)", e.BaseErr, e.ProfileID, e.RequirementID)
}

func (e *MatchError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *MatchError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// NewIncompleteProfileError 画像置信度低于下限或没有任何结构化侧面时返回
func NewIncompleteProfileError(profileID, requirementID string, confidence float64) error {
	return &MatchError{
		ProfileID:     profileID,
		RequirementID: requirementID,
		BaseErr:       ErrIncompleteProfile,
		Detail:        fmt.Sprintf("解析置信度 %.2f", confidence),
	}
}

// NewEvaluationError 评估后端执行失败时返回
func NewEvaluationError(profileID, requirementID string, cause error) error {
	return &MatchError{
		ProfileID:     profileID,
		RequirementID: requirementID,
		BaseErr:       ErrEvaluationFailed,
		Detail:        cause.Error(),
	}
}

// NewInvalidResultError 评估产出违反结果约束（分数越界、必填列表为空等）时返回
func NewInvalidResultError(profileID, requirementID, detail string) error {
	return &MatchError{
		ProfileID:     profileID,
		RequirementID: requirementID,
		BaseErr:       ErrInvalidResult,
		Detail:        detail,
	}
}
