package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recruit-agent-go/internal/elicitation"
	"recruit-agent-go/internal/logger"
	"recruit-agent-go/internal/storage"
	"recruit-agent-go/internal/storage/models"
	"recruit-agent-go/internal/types"
)

// AnalysisReader 分析结果查询依赖的存储读取
type AnalysisReader interface {
	GetRequirement(ctx context.Context, requirementID string) (*models.JobRequirement, error)
	ListProfilesByOwner(ctx context.Context, ownerID string) ([]models.CandidateProfile, error)
	ListJobsForRequirement(ctx context.Context, requirementID string) ([]models.AnalysisJob, error)
}

// SnapshotCache 轮询快照的短TTL缓存，可选依赖
type SnapshotCache interface {
	GetAnalysisSnapshot(ctx context.Context, requirementID string) (string, error)
	CacheAnalysisSnapshot(ctx context.Context, requirementID string, snapshotJSON string) error
}

// AnalysisHandler 分析结果轮询的HTTP处理器
type AnalysisHandler struct {
	reader AnalysisReader
	cache  SnapshotCache // 可为nil
}

// NewAnalysisHandler 创建分析查询处理器
func NewAnalysisHandler(reader AnalysisReader, cache SnapshotCache) *AnalysisHandler {
	return &AnalysisHandler{reader: reader, cache: cache}
}

// JobView 单个分析任务的对外视图
type JobView struct {
	JobID      string                `json:"jobId"`
	Status     string                `json:"status"`
	Attempt    int                   `json:"attempt"`
	Result     *types.AnalysisResult `json:"result,omitempty"` // 仅SUCCESS时非空
	Error      string                `json:"error,omitempty"`  // 仅FAILED时非空
	CreatedAt  time.Time             `json:"createdAt"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

// AnalysisEntry 某画像相对该需求的分析状态。
// AnalysisJob 为 null 表示该画像还没有任何分析任务（与QUEUED是不同状态）。
type AnalysisEntry struct {
	ProfileID   string   `json:"profileId"`
	DisplayName string   `json:"displayName"`
	AnalysisJob *JobView `json:"analysisJob"`
}

// AnalysisListResponse 分析结果轮询响应
type AnalysisListResponse struct {
	RequirementID string          `json:"requirementId"`
	Status        string          `json:"status"` // 需求状态
	Entries       []AnalysisEntry `json:"entries"`
}

// HandleList 返回某需求下所有者画像的最新分析状态。
// 热轮询由短TTL快照缓存挡掉，客户端以最终一致性读取。
func (h *AnalysisHandler) HandleList(ctx context.Context, requirementID string) (*AnalysisListResponse, error) {
	if h.cache != nil {
		if cached, err := h.cache.GetAnalysisSnapshot(ctx, requirementID); err == nil {
			var resp AnalysisListResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &resp); unmarshalErr == nil {
				return &resp, nil
			}
		}
	}

	req, err := h.reader.GetRequirement(ctx, requirementID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, elicitation.NewNotFoundError(requirementID)
		}
		return nil, fmt.Errorf("读取需求失败: %w", err)
	}

	profiles, err := h.reader.ListProfilesByOwner(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("列出所有者画像失败: %w", err)
	}

	jobs, err := h.reader.ListJobsForRequirement(ctx, requirementID)
	if err != nil {
		return nil, fmt.Errorf("列出分析任务失败: %w", err)
	}

	// 任务按创建时间倒序，每个画像第一条即最新任务
	latest := make(map[string]*models.AnalysisJob, len(profiles))
	for i := range jobs {
		job := &jobs[i]
		if _, seen := latest[job.ProfileID]; !seen {
			latest[job.ProfileID] = job
		}
	}

	resp := &AnalysisListResponse{
		RequirementID: requirementID,
		Status:        req.Status,
		Entries:       make([]AnalysisEntry, 0, len(profiles)),
	}
	for _, profile := range profiles {
		entry := AnalysisEntry{
			ProfileID:   profile.ProfileID,
			DisplayName: profile.DisplayName,
		}
		if job, ok := latest[profile.ProfileID]; ok {
			view, err := buildJobView(job)
			if err != nil {
				return nil, err
			}
			entry.AnalysisJob = view
		}
		resp.Entries = append(resp.Entries, entry)
	}

	h.cacheSnapshot(ctx, requirementID, resp)
	return resp, nil
}

// HandleGetJob 按ID查询单个分析任务
func (h *AnalysisHandler) HandleGetJob(ctx context.Context, requirementID, jobID string) (*JobView, error) {
	jobs, err := h.reader.ListJobsForRequirement(ctx, requirementID)
	if err != nil {
		return nil, fmt.Errorf("列出分析任务失败: %w", err)
	}
	for i := range jobs {
		if jobs[i].JobID == jobID {
			return buildJobView(&jobs[i])
		}
	}
	return nil, storage.ErrRecordNotFound
}

// buildJobView 把任务记录转换为对外视图
func buildJobView(job *models.AnalysisJob) (*JobView, error) {
	view := &JobView{
		JobID:      job.JobID,
		Status:     job.Status,
		Attempt:    job.Attempt,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if len(job.ResultJSON) > 0 {
		var result types.AnalysisResult
		if err := json.Unmarshal(job.ResultJSON, &result); err != nil {
			return nil, fmt.Errorf("反序列化任务 %s 的匹配结果失败: %w", job.JobID, err)
		}
		view.Result = &result
	}
	return view, nil
}

// cacheSnapshot 写入轮询快照缓存，失败只记录不影响响应
func (h *AnalysisHandler) cacheSnapshot(ctx context.Context, requirementID string, resp *AnalysisListResponse) {
	if h.cache == nil {
		return
	}
	snapshotJSON, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := h.cache.CacheAnalysisSnapshot(ctx, requirementID, string(snapshotJSON)); err != nil {
		logger.Warn().Err(err).Str("requirement_id", requirementID).Msg("写入轮询快照缓存失败")
	}
}
