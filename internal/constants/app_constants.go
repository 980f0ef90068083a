package constants

import "time"

// 需求会话状态
const (
	RequirementStatusInProgress = "IN_PROGRESS" // 对话进行中，compiled 为空
	RequirementStatusComplete   = "COMPLETE"    // 对话已结束，compiled 已落库
)

// 分析任务状态
const (
	JobStatusQueued    = "QUEUED"  // 已入队，等待工作协程领取
	JobStatusRunning   = "RUNNING" // 正在执行匹配计算
	JobStatusSucceeded = "SUCCESS" // 终态：结果已写入
	JobStatusFailed    = "FAILED"  // 终态：error 字段记录失败原因
)

// 需求侧面（facet）标识，匹配结果中的 strengths/weaknesses/gaps 都会回指到这些标识
const (
	FacetTitle         = "title"
	FacetSkills        = "skills"
	FacetSeniority     = "seniority"
	FacetQualification = "qualifications"
	FacetNiceToHave    = "nice_to_haves"
	FacetOverall       = "overall"
)

// Gap 严重程度
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// 缓存过期时间
const (
	CompiledCacheDuration = 24 * time.Hour   // 已编译需求的Redis缓存
	SnapshotCacheDuration = 3 * time.Second  // 轮询快照的短缓存，客户端以最终一致性读取
	OpenPairMarkDuration  = 10 * time.Minute // 未终结任务对的快速去重标记
)
