package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/constants"
	"recruit-agent-go/internal/storage/models"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrRecordNotFound 对外暴露的未找到错误，屏蔽GORM细节
var ErrRecordNotFound = gorm.ErrRecordNotFound

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，附带超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	// 配置GORM日志级别
	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	if err := m.autoMigrateSchema(); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	return m.db.AutoMigrate(
		&models.JobRequirement{},
		&models.CandidateProfile{},
		&models.AnalysisJob{},
	)
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// ---- 需求会话 ----

// CreateRequirement 新建一条需求会话记录
func (m *MySQL) CreateRequirement(ctx context.Context, req *models.JobRequirement) error {
	return m.db.WithContext(ctx).Create(req).Error
}

// GetRequirement 按ID读取需求会话
func (m *MySQL) GetRequirement(ctx context.Context, requirementID string) (*models.JobRequirement, error) {
	var req models.JobRequirement
	err := m.db.WithContext(ctx).First(&req, "requirement_id = ?", requirementID).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateRequirementTurns 覆盖写入问答轮（引导引擎保证轮序列只追加）
func (m *MySQL) UpdateRequirementTurns(ctx context.Context, requirementID string, turns datatypes.JSON, turnCount int) error {
	result := m.db.WithContext(ctx).Model(&models.JobRequirement{}).
		Where("requirement_id = ? AND status = ?", requirementID, constants.RequirementStatusInProgress).
		Updates(map[string]interface{}{
			"turns_json": turns,
			"turn_count": turnCount,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// CompleteRequirement 将需求置为COMPLETE并写入编译结果。
// 状态、轮序列、编译结果在同一条UPDATE中落库，保证不变式 "compiled非空 当且仅当 COMPLETE"。
func (m *MySQL) CompleteRequirement(ctx context.Context, requirementID string, turns datatypes.JSON, turnCount int, compiled datatypes.JSON) error {
	result := m.db.WithContext(ctx).Model(&models.JobRequirement{}).
		Where("requirement_id = ? AND status = ?", requirementID, constants.RequirementStatusInProgress).
		Updates(map[string]interface{}{
			"turns_json":    turns,
			"turn_count":    turnCount,
			"compiled_json": compiled,
			"status":        constants.RequirementStatusComplete,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListCompleteRequirementsByOwner 列出某所有者下所有已完成的需求（扇入用）
func (m *MySQL) ListCompleteRequirementsByOwner(ctx context.Context, ownerID string) ([]models.JobRequirement, error) {
	var reqs []models.JobRequirement
	err := m.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, constants.RequirementStatusComplete).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

// ---- 候选人画像 ----

// CreateProfile 写入一条候选人画像
func (m *MySQL) CreateProfile(ctx context.Context, profile *models.CandidateProfile) error {
	return m.db.WithContext(ctx).Create(profile).Error
}

// GetProfile 按ID读取画像
func (m *MySQL) GetProfile(ctx context.Context, profileID string) (*models.CandidateProfile, error) {
	var profile models.CandidateProfile
	err := m.db.WithContext(ctx).First(&profile, "profile_id = ?", profileID).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListProfilesByOwner 列出某所有者下的全部画像（扇出用）
func (m *MySQL) ListProfilesByOwner(ctx context.Context, ownerID string) ([]models.CandidateProfile, error) {
	var profiles []models.CandidateProfile
	err := m.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&profiles).Error
	return profiles, err
}

// ---- 分析任务 ----

// InsertAnalysisJobIfAbsent 原子地插入任务：open_pair_key 上的唯一索引配合
// ON CONFLICT DO NOTHING 实现 insert-if-absent，并发触发下至多一条记录胜出。
// 返回 created=false 表示该对已有未终结任务。
func (m *MySQL) InsertAnalysisJobIfAbsent(ctx context.Context, job *models.AnalysisJob) (bool, error) {
	result := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(job)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetOpenJobForPair 返回某(画像,需求)对当前未终结的任务
func (m *MySQL) GetOpenJobForPair(ctx context.Context, profileID, requirementID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	err := m.db.WithContext(ctx).
		First(&job, "open_pair_key = ?", models.PairKey(profileID, requirementID)).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetAnalysisJob 按ID读取任务
func (m *MySQL) GetAnalysisJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	err := m.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkJobRunning 将任务从QUEUED置为RUNNING并记录开始时间。
// WHERE条件同时充当状态守卫：重复投递的消息在这里会落空。
func (m *MySQL) MarkJobRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	result := m.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("job_id = ? AND status = ?", jobID, constants.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":     constants.JobStatusRunning,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// CompleteJobSuccess 结果写入与状态跃迁在同一条UPDATE中完成，外部永远不会
// 观察到"有结果但不是SUCCESS"或反之的中间态。open_pair_key同时清空以释放该对。
func (m *MySQL) CompleteJobSuccess(ctx context.Context, jobID string, result datatypes.JSON, finishedAt time.Time) error {
	res := m.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("job_id = ? AND status = ?", jobID, constants.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":        constants.JobStatusSucceeded,
			"result_json":   result,
			"finished_at":   finishedAt,
			"open_pair_key": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// CompleteJobFailure 任务失败落库：记录错误信息并释放该对
func (m *MySQL) CompleteJobFailure(ctx context.Context, jobID string, errMsg string, finishedAt time.Time) error {
	res := m.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("job_id = ? AND status IN ?", jobID, []string{constants.JobStatusQueued, constants.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":        constants.JobStatusFailed,
			"error":         errMsg,
			"finished_at":   finishedAt,
			"open_pair_key": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListJobsForRequirement 返回某需求下的全部任务，按创建时间倒序。
// 调用方取每个画像的第一条即为最新任务。
func (m *MySQL) ListJobsForRequirement(ctx context.Context, requirementID string) ([]models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	err := m.db.WithContext(ctx).
		Where("requirement_id = ?", requirementID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

// ListStaleQueuedJobs 返回创建时间早于给定时刻仍停留在QUEUED的任务。
// 派发消息丢失时由兜底扫描重新投递，保证任务不会饿死。
func (m *MySQL) ListStaleQueuedJobs(ctx context.Context, before time.Time) ([]models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	err := m.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", constants.JobStatusQueued, before).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// ListStaleRunningJobs 返回开始时间早于给定时刻仍停留在RUNNING的任务。
// 进程崩溃会留下永远不会终结的RUNNING行，由兜底扫描收割成FAILED。
func (m *MySQL) ListStaleRunningJobs(ctx context.Context, before time.Time) ([]models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	err := m.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", constants.JobStatusRunning, before).
		Order("started_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// IsNotFound 判断是否为记录不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
