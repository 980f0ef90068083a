package scheduler

import (
	"context"
	"time"

	"recruit-agent-go/internal/storage/models"

	"gorm.io/datatypes"
)

// JobStore 调度器依赖的任务持久化操作
type JobStore interface {
	InsertAnalysisJobIfAbsent(ctx context.Context, job *models.AnalysisJob) (bool, error)
	GetOpenJobForPair(ctx context.Context, profileID, requirementID string) (*models.AnalysisJob, error)
	GetAnalysisJob(ctx context.Context, jobID string) (*models.AnalysisJob, error)
	MarkJobRunning(ctx context.Context, jobID string, startedAt time.Time) error
	CompleteJobSuccess(ctx context.Context, jobID string, result datatypes.JSON, finishedAt time.Time) error
	CompleteJobFailure(ctx context.Context, jobID string, errMsg string, finishedAt time.Time) error
	ListStaleQueuedJobs(ctx context.Context, before time.Time) ([]models.AnalysisJob, error)
	ListStaleRunningJobs(ctx context.Context, before time.Time) ([]models.AnalysisJob, error)
}

// ProfileStore 画像读取
type ProfileStore interface {
	GetProfile(ctx context.Context, profileID string) (*models.CandidateProfile, error)
	ListProfilesByOwner(ctx context.Context, ownerID string) ([]models.CandidateProfile, error)
}

// RequirementReader 需求读取
type RequirementReader interface {
	GetRequirement(ctx context.Context, requirementID string) (*models.JobRequirement, error)
	ListCompleteRequirementsByOwner(ctx context.Context, ownerID string) ([]models.JobRequirement, error)
}

// Dispatcher 任务派发消息的发布端
type Dispatcher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
}

// CompiledSource 编译需求JSON的缓存读取端，可选依赖。
// 未命中或缓存故障时工作端回退到数据库读取。
type CompiledSource interface {
	GetCompiledRequirement(ctx context.Context, requirementID string) (string, error)
}

// PairCache 未终结任务对的快速去重标记与快照失效，可选依赖。
// 权威约束始终是数据库的唯一索引，这里只是快速路径。
type PairCache interface {
	MarkPairOpen(ctx context.Context, profileID, requirementID, jobID string) (bool, error)
	ClearPairOpen(ctx context.Context, profileID, requirementID string) error
	InvalidateAnalysisSnapshot(ctx context.Context, requirementID string) error
}
