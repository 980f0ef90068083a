package elicitation

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrRequirementNotFound = errors.New("需求会话不存在")
	ErrAlreadyComplete     = errors.New("需求会话已结束")
	ErrEmptyAnswer         = errors.New("回答内容为空")
	ErrEmptyOwnerID        = errors.New("ownerID不能为空")
	ErrNoPendingQuestion   = errors.New("当前没有待回答的问题")
	ErrConversationCorrupt = errors.New("会话轮序列状态异常")
)

// ElicitationError 包含详细错误信息的自定义错误
type ElicitationError struct {
	RequirementID string
	Op            string
	BaseErr       error
	Detail        string
}

func (e *ElicitationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 需求:%s): %s", e.BaseErr, e.Op, e.RequirementID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 需求:%s)", e.BaseErr, e.Op, e.RequirementID)
}

func (e *ElicitationError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *ElicitationError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewNotFoundError(requirementID string) error {
	return &ElicitationError{
		RequirementID: requirementID,
		Op:            "lookup",
		BaseErr:       ErrRequirementNotFound,
	}
}

func NewAlreadyCompleteError(requirementID string) error {
	return &ElicitationError{
		RequirementID: requirementID,
		Op:            "submit_answer",
		BaseErr:       ErrAlreadyComplete,
	}
}

func NewEmptyAnswerError(requirementID string) error {
	return &ElicitationError{
		RequirementID: requirementID,
		Op:            "submit_answer",
		BaseErr:       ErrEmptyAnswer,
	}
}

func NewNoPendingQuestionError(requirementID string) error {
	return &ElicitationError{
		RequirementID: requirementID,
		Op:            "submit_answer",
		BaseErr:       ErrNoPendingQuestion,
	}
}

func NewCorruptError(requirementID, detail string) error {
	return &ElicitationError{
		RequirementID: requirementID,
		Op:            "submit_answer",
		BaseErr:       ErrConversationCorrupt,
		Detail:        detail,
	}
}
