package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobRequirement 岗位需求主表，由引导对话逐轮构建
type JobRequirement struct {
	RequirementID string         `gorm:"type:char(36);primaryKey"`
	OwnerID       string         `gorm:"type:char(36);not null;index:idx_jr_owner_id"`
	Status        string         `gorm:"type:varchar(50);default:'IN_PROGRESS';index:idx_jr_status"`
	TurnsJSON     datatypes.JSON `gorm:"type:json;not null"` // 有序问答轮，只追加不修改
	TurnCount     int            `gorm:"not null;default:0"` // 已回答轮数，冗余存储便于查询
	CompiledJSON  datatypes.JSON `gorm:"type:json"`          // 仅在 COMPLETE 时非空
	CreatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobRequirement) TableName() string {
	return "job_requirements"
}

// CandidateProfile 候选人画像表。画像由外部解析器产出后写入，这里只消费。
type CandidateProfile struct {
	ProfileID       string         `gorm:"type:char(36);primaryKey"`
	OwnerID         string         `gorm:"type:char(36);not null;index:idx_cp_owner_id"`
	DisplayName     string         `gorm:"type:varchar(255)"`
	FacetsJSON      datatypes.JSON `gorm:"type:json"` // 结构化画像侧面
	ParseConfidence float64        `gorm:"type:double;not null;default:0"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (CandidateProfile) TableName() string {
	return "candidate_profiles"
}

// AnalysisJob 分析任务表。任务历史只追加：重试会新建一条记录而不是原地改写。
// OpenPairKey 是"每个(画像,需求)对至多一个未终结任务"不变式的落地：
// 非终态任务持有 "{profileID}:{requirementID}"，进入终态时清空。
// MySQL唯一索引允许多个NULL，因此同一对可以积累任意多条终态历史。
type AnalysisJob struct {
	JobID         string         `gorm:"type:char(36);primaryKey"`
	ProfileID     string         `gorm:"type:char(36);not null;index:idx_aj_pair,priority:1"`
	RequirementID string         `gorm:"type:char(36);not null;index:idx_aj_pair,priority:2;index:idx_aj_requirement_id"`
	OpenPairKey   *string        `gorm:"type:varchar(80);uniqueIndex:idx_aj_open_pair_key"`
	Status        string         `gorm:"type:varchar(50);not null;default:'QUEUED';index:idx_aj_status"`
	Attempt       int            `gorm:"not null;default:0"` // 第几次尝试，重试任务继承 prev+1
	Error         string         `gorm:"type:text"`          // 仅在 FAILED 时非空
	ResultJSON    datatypes.JSON `gorm:"type:json"`          // 仅在 SUCCESS 时非空，与状态变更同事务写入
	CreatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_aj_created_at"`
	StartedAt     *time.Time     `gorm:"type:datetime(6)"`
	FinishedAt    *time.Time     `gorm:"type:datetime(6)"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

// PairKey 构造 OpenPairKey 的取值
func PairKey(profileID, requirementID string) string {
	return profileID + ":" + requirementID
}
