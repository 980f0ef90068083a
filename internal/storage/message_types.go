package storage

import "time"

// AnalysisJobMessage 任务派发消息，发布到分析事件交换机
type AnalysisJobMessage struct {
	JobID         string    `json:"job_id"`
	ProfileID     string    `json:"profile_id"`
	RequirementID string    `json:"requirement_id"`
	Attempt       int       `json:"attempt"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// ProfileCreatedMessage 画像创建事件，外部解析器（或本服务的画像接入接口）发布，
// 调度器消费后对该所有者下所有已完成需求做扇入
type ProfileCreatedMessage struct {
	ProfileID string    `json:"profile_id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}
