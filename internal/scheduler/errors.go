package scheduler

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrProfileNotFound        = errors.New("候选人画像不存在")
	ErrRequirementNotFound    = errors.New("岗位需求不存在")
	ErrRequirementNotComplete = errors.New("岗位需求尚未完成，无法调度分析任务")
	ErrJobNotFound            = errors.New("分析任务不存在")
)

// 任务超时的落库错误文案。区分超时与其他失败便于排障与测试。
const TimeoutErrorMessage = "timeout"

// SchedulerError 携带任务上下文的调度错误
type SchedulerError struct {
	JobID         string
	ProfileID     string
	RequirementID string
	BaseErr       error
	Detail        string
}

func (e *SchedulerError) Error() string {
	msg := fmt.Sprintf("%s (任务:%s, 画像:%s, 需求:%s)", e.BaseErr, e.JobID, e.ProfileID, e.RequirementID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *SchedulerError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *SchedulerError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}
