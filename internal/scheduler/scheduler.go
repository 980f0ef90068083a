package scheduler

import (
	"context"
	"fmt"
	"time"

	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/constants"
	"recruit-agent-go/internal/logger"
	"recruit-agent-go/internal/matcher"
	"recruit-agent-go/internal/storage"
	"recruit-agent-go/internal/storage/models"

	"github.com/gofrs/uuid/v5"
)

// Scheduler 分析任务调度器：负责任务入队（含去重）、扇出/扇入与重试派生。
// 任务执行由 Worker 驱动。
type Scheduler struct {
	jobs         JobStore
	profiles     ProfileStore
	requirements RequirementReader
	dispatcher   Dispatcher     // 可为nil，派发依赖兜底扫描
	cache        PairCache      // 可为nil
	compiled     CompiledSource // 可为nil，命中时省去一次需求行读取
	evaluator    matcher.Evaluator

	exchange   string
	routingKey string

	maxRetries   int
	retryBackoff time.Duration
	jobTimeout   time.Duration
}

// NewScheduler 创建调度器
func NewScheduler(
	jobs JobStore,
	profiles ProfileStore,
	requirements RequirementReader,
	evaluator matcher.Evaluator,
	cfg *config.Config,
	opts ...SchedulerOption,
) (*Scheduler, error) {
	if jobs == nil || profiles == nil || requirements == nil {
		return nil, fmt.Errorf("调度器的存储依赖不能为空")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("匹配评估后端不能为空")
	}
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Scheduler{
		jobs:         jobs,
		profiles:     profiles,
		requirements: requirements,
		evaluator:    evaluator,
		exchange:     cfg.RabbitMQ.AnalysisEventsExchange,
		routingKey:   cfg.RabbitMQ.AnalysisNeededRoutingKey,
		maxRetries:   cfg.Scheduler.MaxRetries,
		retryBackoff: config.GetDuration(cfg.Scheduler.RetryBackoff, 3*time.Second),
		jobTimeout:   config.GetDuration(cfg.Scheduler.JobTimeout, 30*time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SchedulerOption 调度器的功能选项
type SchedulerOption func(*Scheduler)

// WithDispatcher 设置消息派发端
func WithDispatcher(dispatcher Dispatcher) SchedulerOption {
	return func(s *Scheduler) {
		s.dispatcher = dispatcher
	}
}

// WithPairCache 设置去重标记缓存
func WithPairCache(cache PairCache) SchedulerOption {
	return func(s *Scheduler) {
		s.cache = cache
	}
}

// WithCompiledCache 设置编译需求缓存的读取端
func WithCompiledCache(compiled CompiledSource) SchedulerOption {
	return func(s *Scheduler) {
		s.compiled = compiled
	}
}

// EnqueueResult 入队结果
type EnqueueResult struct {
	Job     *models.AnalysisJob
	Created bool // false 表示该对已有未终结任务，返回的是既有任务
}

// Enqueue 为一个(画像,需求)对调度分析任务。同一对已有未终结任务时幂等返回既有任务。
// 去重的权威路径是 open_pair_key 唯一索引上的 insert-if-absent，并发调用至多一条胜出。
func (s *Scheduler) Enqueue(ctx context.Context, profileID, requirementID string) (*EnqueueResult, error) {
	profile, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, &SchedulerError{ProfileID: profileID, RequirementID: requirementID, BaseErr: ErrProfileNotFound}
		}
		return nil, fmt.Errorf("读取画像失败: %w", err)
	}

	req, err := s.requirements.GetRequirement(ctx, requirementID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, &SchedulerError{ProfileID: profileID, RequirementID: requirementID, BaseErr: ErrRequirementNotFound}
		}
		return nil, fmt.Errorf("读取需求失败: %w", err)
	}
	if req.Status != constants.RequirementStatusComplete {
		return nil, &SchedulerError{ProfileID: profileID, RequirementID: requirementID, BaseErr: ErrRequirementNotComplete}
	}

	// insert-if-absent 与读取既有任务之间存在既有任务恰好终结的窗口，重试一轮即可收敛
	for attempt := 0; attempt < 2; attempt++ {
		jobID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("生成任务ID失败: %w", err)
		}

		pairKey := models.PairKey(profile.ProfileID, requirementID)
		job := &models.AnalysisJob{
			JobID:         jobID.String(),
			ProfileID:     profile.ProfileID,
			RequirementID: requirementID,
			OpenPairKey:   &pairKey,
			Status:        constants.JobStatusQueued,
			Attempt:       0,
		}

		created, err := s.jobs.InsertAnalysisJobIfAbsent(ctx, job)
		if err != nil {
			return nil, fmt.Errorf("插入分析任务失败: %w", err)
		}
		if created {
			s.afterCreate(ctx, job)
			return &EnqueueResult{Job: job, Created: true}, nil
		}

		existing, err := s.jobs.GetOpenJobForPair(ctx, profile.ProfileID, requirementID)
		if err == nil {
			return &EnqueueResult{Job: existing, Created: false}, nil
		}
		if !storage.IsNotFound(err) {
			return nil, fmt.Errorf("读取既有任务失败: %w", err)
		}
	}
	return nil, fmt.Errorf("调度分析任务失败: 画像 %s 需求 %s 的插入与读取持续冲突", profileID, requirementID)
}

// afterCreate 新任务落库后的派发与标记，均为尽力而为：
// 消息丢失由兜底扫描补派发，标记丢失只影响快速路径。
func (s *Scheduler) afterCreate(ctx context.Context, job *models.AnalysisJob) {
	if s.cache != nil {
		if _, err := s.cache.MarkPairOpen(ctx, job.ProfileID, job.RequirementID, job.JobID); err != nil {
			logger.Warn().Err(err).Str("job_id", job.JobID).Msg("写入任务对标记失败")
		}
	}
	s.dispatch(ctx, job)
}

// dispatch 发布任务派发消息
func (s *Scheduler) dispatch(ctx context.Context, job *models.AnalysisJob) {
	if s.dispatcher == nil {
		return
	}
	msg := storage.AnalysisJobMessage{
		JobID:         job.JobID,
		ProfileID:     job.ProfileID,
		RequirementID: job.RequirementID,
		Attempt:       job.Attempt,
		EnqueuedAt:    time.Now(),
	}
	if err := s.dispatcher.PublishJSON(ctx, s.exchange, s.routingKey, msg, true); err != nil {
		logger.Warn().
			Err(err).
			Str("job_id", job.JobID).
			Msg("发布任务派发消息失败，等待兜底扫描补派发")
	}
}

// EnqueueForRequirement 需求完成后的扇出：对所有者名下的每个画像调度一次分析。
// 单个画像的失败不阻断其余画像，返回新建任务数。
func (s *Scheduler) EnqueueForRequirement(ctx context.Context, requirementID, ownerID string) (int, error) {
	profiles, err := s.profiles.ListProfilesByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("列出所有者画像失败: %w", err)
	}

	created := 0
	for _, profile := range profiles {
		result, err := s.Enqueue(ctx, profile.ProfileID, requirementID)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("profile_id", profile.ProfileID).
				Str("requirement_id", requirementID).
				Msg("扇出调度失败")
			continue
		}
		if result.Created {
			created++
		}
	}
	return created, nil
}

// EnqueueForProfile 画像创建后的扇入：对所有者名下每个已完成需求调度一次分析
func (s *Scheduler) EnqueueForProfile(ctx context.Context, profileID string) (int, error) {
	profile, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, &SchedulerError{ProfileID: profileID, BaseErr: ErrProfileNotFound}
		}
		return 0, fmt.Errorf("读取画像失败: %w", err)
	}

	requirements, err := s.requirements.ListCompleteRequirementsByOwner(ctx, profile.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("列出已完成需求失败: %w", err)
	}

	created := 0
	for _, req := range requirements {
		result, err := s.Enqueue(ctx, profileID, req.RequirementID)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("profile_id", profileID).
				Str("requirement_id", req.RequirementID).
				Msg("扇入调度失败")
			continue
		}
		if result.Created {
			created++
		}
	}
	return created, nil
}

// RequirementCompleted 实现引导引擎的完成回调，触发画像扇出
func (s *Scheduler) RequirementCompleted(ctx context.Context, requirementID, ownerID string) {
	created, err := s.EnqueueForRequirement(ctx, requirementID, ownerID)
	if err != nil {
		logger.Error().
			Err(err).
			Str("requirement_id", requirementID).
			Msg("需求完成后的扇出调度失败")
		return
	}
	logger.Info().
		Str("requirement_id", requirementID).
		Int("jobs_created", created).
		Msg("需求完成，已扇出分析任务")
}

// enqueueRetry 失败任务退避后派生重试任务：新建一条 attempt+1 的记录而不是复用原记录，
// 任务历史因此保持只追加。该对已有新任务时放弃重试。
func (s *Scheduler) enqueueRetry(ctx context.Context, failed *models.AnalysisJob) {
	jobID, err := uuid.NewV7()
	if err != nil {
		logger.Error().Err(err).Msg("生成重试任务ID失败")
		return
	}

	pairKey := models.PairKey(failed.ProfileID, failed.RequirementID)
	retry := &models.AnalysisJob{
		JobID:         jobID.String(),
		ProfileID:     failed.ProfileID,
		RequirementID: failed.RequirementID,
		OpenPairKey:   &pairKey,
		Status:        constants.JobStatusQueued,
		Attempt:       failed.Attempt + 1,
	}

	created, err := s.jobs.InsertAnalysisJobIfAbsent(ctx, retry)
	if err != nil {
		logger.Error().
			Err(err).
			Str("failed_job_id", failed.JobID).
			Msg("插入重试任务失败")
		return
	}
	if !created {
		logger.Info().
			Str("failed_job_id", failed.JobID).
			Msg("该对已有未终结任务，放弃重试派生")
		return
	}

	logger.Info().
		Str("job_id", retry.JobID).
		Str("failed_job_id", failed.JobID).
		Int("attempt", retry.Attempt).
		Msg("已派生重试任务")
	s.afterCreate(ctx, retry)
}
