package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/constants"
	"recruit-agent-go/internal/logger"
	"recruit-agent-go/internal/matcher"
	"recruit-agent-go/internal/storage"
	"recruit-agent-go/internal/storage/models"
	"recruit-agent-go/internal/types"

	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"
)

// Consumer 工作端依赖的消息队列能力，*storage.RabbitMQ 满足该接口
type Consumer interface {
	EnsureExchange(exchangeName, exchangeType string, durable bool) error
	EnsureQueue(queueName string, durable bool) error
	BindQueue(queueName, exchangeName, routingKey string) error
	StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan<- struct{}, error)
}

// Worker 消费任务派发与画像创建消息并执行匹配计算。
// 并发度由加权信号量限制：消息到达快于处理能力时消费端产生背压。
type Worker struct {
	scheduler *Scheduler
	consumer  Consumer

	analysisExchange   string
	analysisRoutingKey string
	analysisQueue      string
	profileExchange    string
	profileRoutingKey  string
	profileQueue       string
	prefetchCount      int

	sweepInterval time.Duration
	staleJobAge   time.Duration

	sem       *semaphore.Weighted
	rootCtx   context.Context
	cancel    context.CancelFunc
	stopChans []chan<- struct{}
	sweepStop chan struct{}
	wg        sync.WaitGroup
	started   bool
	mu        sync.Mutex
}

// NewWorker 创建任务工作端
func NewWorker(s *Scheduler, consumer Consumer, cfg *config.Config) (*Worker, error) {
	if s == nil {
		return nil, fmt.Errorf("调度器不能为空")
	}
	if consumer == nil {
		return nil, fmt.Errorf("消息消费端不能为空")
	}
	if cfg.Scheduler.WorkerCount <= 0 {
		return nil, fmt.Errorf("worker_count 必须为正数")
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	return &Worker{
		scheduler:          s,
		consumer:           consumer,
		analysisExchange:   cfg.RabbitMQ.AnalysisEventsExchange,
		analysisRoutingKey: cfg.RabbitMQ.AnalysisNeededRoutingKey,
		analysisQueue:      cfg.RabbitMQ.AnalysisJobQueue,
		profileExchange:    cfg.RabbitMQ.ProfileEventsExchange,
		profileRoutingKey:  cfg.RabbitMQ.ProfileCreatedRoutingKey,
		profileQueue:       cfg.RabbitMQ.ProfileCreatedQueue,
		prefetchCount:      cfg.RabbitMQ.PrefetchCount,
		sweepInterval:      config.GetDuration(cfg.Scheduler.SweepInterval, 60*time.Second),
		staleJobAge:        config.GetDuration(cfg.Scheduler.StaleJobAge, 120*time.Second),
		sem:                semaphore.NewWeighted(int64(cfg.Scheduler.WorkerCount)),
		rootCtx:            rootCtx,
		cancel:             cancel,
		sweepStop:          make(chan struct{}),
	}, nil
}

// Start 声明拓扑并启动消费者与兜底扫描
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("worker已启动")
	}

	if err := w.ensureTopology(); err != nil {
		return err
	}

	jobStop, err := w.consumer.StartConsumer(w.analysisQueue, w.prefetchCount, w.handleJobMessage)
	if err != nil {
		return fmt.Errorf("启动任务消费者失败: %w", err)
	}
	w.stopChans = append(w.stopChans, jobStop)

	profileStop, err := w.consumer.StartConsumer(w.profileQueue, w.prefetchCount, w.handleProfileMessage)
	if err != nil {
		return fmt.Errorf("启动画像事件消费者失败: %w", err)
	}
	w.stopChans = append(w.stopChans, profileStop)

	w.wg.Add(1)
	go w.sweepLoop()

	w.started = true
	logger.Info().
		Str("analysis_queue", w.analysisQueue).
		Str("profile_queue", w.profileQueue).
		Msg("分析任务工作端已启动")
	return nil
}

// ensureTopology 幂等地声明交换机、队列与绑定
func (w *Worker) ensureTopology() error {
	if err := w.consumer.EnsureExchange(w.analysisExchange, "direct", true); err != nil {
		return fmt.Errorf("声明分析事件交换机失败: %w", err)
	}
	if err := w.consumer.EnsureQueue(w.analysisQueue, true); err != nil {
		return fmt.Errorf("声明任务队列失败: %w", err)
	}
	if err := w.consumer.BindQueue(w.analysisQueue, w.analysisExchange, w.analysisRoutingKey); err != nil {
		return fmt.Errorf("绑定任务队列失败: %w", err)
	}

	if err := w.consumer.EnsureExchange(w.profileExchange, "direct", true); err != nil {
		return fmt.Errorf("声明画像事件交换机失败: %w", err)
	}
	if err := w.consumer.EnsureQueue(w.profileQueue, true); err != nil {
		return fmt.Errorf("声明画像事件队列失败: %w", err)
	}
	if err := w.consumer.BindQueue(w.profileQueue, w.profileExchange, w.profileRoutingKey); err != nil {
		return fmt.Errorf("绑定画像事件队列失败: %w", err)
	}
	return nil
}

// Stop 停止消费并等待在途任务收尾
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}

	for _, stopCh := range w.stopChans {
		stopCh <- struct{}{}
	}
	w.stopChans = nil
	close(w.sweepStop)
	w.cancel()
	w.wg.Wait()
	w.started = false
	logger.Info().Msg("分析任务工作端已停止")
}

// handleJobMessage 任务派发消息的处理入口。信号量获取成功后立即ack并异步执行：
// 任务的权威状态在数据库里，消息丢失由兜底扫描兜住。
func (w *Worker) handleJobMessage(body []byte) bool {
	var msg storage.AnalysisJobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Error().Err(err).Msg("任务派发消息格式非法，丢弃")
		return true
	}

	if err := w.sem.Acquire(w.rootCtx, 1); err != nil {
		// 正在停机，重新入队交给下一个实例
		return false
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		w.processJob(msg)
	}()
	return true
}

// handleProfileMessage 画像创建事件：对该所有者的已完成需求做扇入
func (w *Worker) handleProfileMessage(body []byte) bool {
	var msg storage.ProfileCreatedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Error().Err(err).Msg("画像创建消息格式非法，丢弃")
		return true
	}

	created, err := w.scheduler.EnqueueForProfile(w.rootCtx, msg.ProfileID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			// 画像已被删除，无需重投
			return true
		}
		logger.Warn().Err(err).Str("profile_id", msg.ProfileID).Msg("画像扇入调度失败，消息重新入队")
		return false
	}

	logger.Info().
		Str("profile_id", msg.ProfileID).
		Int("jobs_created", created).
		Msg("画像创建事件已处理")
	return true
}

// processJob 执行单个分析任务的完整生命周期
func (w *Worker) processJob(msg storage.AnalysisJobMessage) {
	ctx := w.rootCtx
	s := w.scheduler

	job, err := s.jobs.GetAnalysisJob(ctx, msg.JobID)
	if err != nil {
		if storage.IsNotFound(err) {
			logger.Warn().Str("job_id", msg.JobID).Msg("任务记录不存在，丢弃消息")
			return
		}
		logger.Error().Err(err).Str("job_id", msg.JobID).Msg("读取任务失败")
		return
	}
	if job.Status != constants.JobStatusQueued {
		// 重复投递或兜底扫描与消息同时到达
		logger.Debug().Str("job_id", job.JobID).Str("status", job.Status).Msg("任务已不在QUEUED状态，跳过")
		return
	}

	if err := s.jobs.MarkJobRunning(ctx, job.JobID, time.Now()); err != nil {
		if storage.IsNotFound(err) {
			// 状态守卫落空：另一个消费者已领取
			return
		}
		logger.Error().Err(err).Str("job_id", job.JobID).Msg("标记任务运行失败")
		return
	}

	input, err := w.loadMatchInput(ctx, job)
	if err != nil {
		w.finishFailure(ctx, job, err)
		return
	}

	evalCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	result, err := s.evaluator.Evaluate(evalCtx, input)
	if err != nil {
		if evalCtx.Err() != nil {
			err = fmt.Errorf("%s: %w", TimeoutErrorMessage, evalCtx.Err())
		}
		w.finishFailure(ctx, job, err)
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		w.finishFailure(ctx, job, fmt.Errorf("序列化匹配结果失败: %w", err))
		return
	}

	if err := s.jobs.CompleteJobSuccess(ctx, job.JobID, datatypes.JSON(resultJSON), time.Now()); err != nil {
		logger.Error().Err(err).Str("job_id", job.JobID).Msg("写入任务成功状态失败")
		return
	}
	w.releasePair(ctx, job)

	logger.Info().
		Str("job_id", job.JobID).
		Int("match_score", result.MatchScore).
		Msg("分析任务完成")
}

// loadMatchInput 加载并反序列化任务的需求与画像
func (w *Worker) loadMatchInput(ctx context.Context, job *models.AnalysisJob) (*matcher.MatchInput, error) {
	compiledJSON, err := w.loadCompiledJSON(ctx, job.RequirementID)
	if err != nil {
		return nil, err
	}
	var compiled types.CompiledRequirement
	if err := json.Unmarshal(compiledJSON, &compiled); err != nil {
		return nil, fmt.Errorf("反序列化编译需求失败: %w", err)
	}

	profile, err := w.scheduler.profiles.GetProfile(ctx, job.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("读取画像失败: %w", err)
	}
	var facets types.ProfileFacets
	if len(profile.FacetsJSON) > 0 {
		if err := json.Unmarshal(profile.FacetsJSON, &facets); err != nil {
			return nil, fmt.Errorf("反序列化画像侧面失败: %w", err)
		}
	}

	return &matcher.MatchInput{
		ProfileID:       job.ProfileID,
		RequirementID:   job.RequirementID,
		Requirement:     compiled,
		Profile:         facets,
		ParseConfidence: profile.ParseConfidence,
	}, nil
}

// loadCompiledJSON 读取编译需求JSON：优先走缓存，未命中或缓存故障回退数据库
func (w *Worker) loadCompiledJSON(ctx context.Context, requirementID string) ([]byte, error) {
	s := w.scheduler
	if s.compiled != nil {
		cached, err := s.compiled.GetCompiledRequirement(ctx, requirementID)
		if err == nil && cached != "" {
			return []byte(cached), nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Err(err).Str("requirement_id", requirementID).Msg("读取编译需求缓存失败，回退数据库")
		}
	}

	req, err := s.requirements.GetRequirement(ctx, requirementID)
	if err != nil {
		return nil, fmt.Errorf("读取需求失败: %w", err)
	}
	if len(req.CompiledJSON) == 0 {
		return nil, fmt.Errorf("需求 %s 缺少编译结果", requirementID)
	}
	return req.CompiledJSON, nil
}

// finishFailure 任务失败落库并按统一重试策略派生重试，
// 画像不完整也走同样的重试路径，耗尽后永久停留在FAILED。
func (w *Worker) finishFailure(ctx context.Context, job *models.AnalysisJob, cause error) {
	s := w.scheduler

	errMsg := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		errMsg = TimeoutErrorMessage
	}

	if err := s.jobs.CompleteJobFailure(ctx, job.JobID, errMsg, time.Now()); err != nil {
		logger.Error().Err(err).Str("job_id", job.JobID).Msg("写入任务失败状态失败")
		return
	}
	w.releasePair(ctx, job)

	logger.Warn().
		Str("job_id", job.JobID).
		Int("attempt", job.Attempt).
		Str("error", errMsg).
		Msg("分析任务失败")

	if job.Attempt >= s.maxRetries {
		return
	}

	// 退避后派生重试，停机时放弃（任务已是终态，不会丢失历史）
	failed := *job
	time.AfterFunc(s.retryBackoff, func() {
		select {
		case <-w.rootCtx.Done():
			return
		default:
		}
		s.enqueueRetry(w.rootCtx, &failed)
	})
}

// releasePair 任务终结后清除快速路径标记并失效轮询快照
func (w *Worker) releasePair(ctx context.Context, job *models.AnalysisJob) {
	if w.scheduler.cache == nil {
		return
	}
	if err := w.scheduler.cache.ClearPairOpen(ctx, job.ProfileID, job.RequirementID); err != nil {
		logger.Warn().Err(err).Str("job_id", job.JobID).Msg("清除任务对标记失败")
	}
	if err := w.scheduler.cache.InvalidateAnalysisSnapshot(ctx, job.RequirementID); err != nil {
		logger.Warn().Err(err).Str("job_id", job.JobID).Msg("失效轮询快照失败")
	}
}

// sweepLoop 兜底扫描：重新派发滞留在QUEUED的任务，收割滞留在RUNNING的任务，
// 防止派发消息丢失或进程崩溃导致任务饿死
func (w *Worker) sweepLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.sweepStop:
			return
		case <-ticker.C:
			w.sweepOnce()
		}
	}
}

// sweepOnce 扫描一轮滞留任务
func (w *Worker) sweepOnce() {
	s := w.scheduler
	now := time.Now()

	stale, err := s.jobs.ListStaleQueuedJobs(w.rootCtx, now.Add(-w.staleJobAge))
	if err != nil {
		logger.Error().Err(err).Msg("扫描滞留任务失败")
	} else if len(stale) > 0 {
		logger.Info().Int("count", len(stale)).Msg("发现滞留任务，补派发")
		for i := range stale {
			s.dispatch(w.rootCtx, &stale[i])
		}
	}

	// RUNNING行超过 任务超时+滞留阈值 仍未终结，只能来自崩溃的进程：
	// 在途任务最迟在jobTimeout处失败落库，不会被误收割
	orphaned, err := s.jobs.ListStaleRunningJobs(w.rootCtx, now.Add(-(s.jobTimeout + w.staleJobAge)))
	if err != nil {
		logger.Error().Err(err).Msg("扫描孤儿运行任务失败")
		return
	}
	if len(orphaned) == 0 {
		return
	}

	logger.Warn().Int("count", len(orphaned)).Msg("发现孤儿运行任务，收割为失败")
	for i := range orphaned {
		w.finishFailure(w.rootCtx, &orphaned[i], fmt.Errorf("%s: %w", TimeoutErrorMessage, context.DeadlineExceeded))
	}
}
