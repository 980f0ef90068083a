package router

import (
	"context"
	"errors"

	"recruit-agent-go/internal/api/handler"
	"recruit-agent-go/internal/elicitation"
	"recruit-agent-go/internal/scheduler"
	"recruit-agent-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(
	h *server.Hertz,
	requirementHandler *handler.RequirementHandler,
	analysisHandler *handler.AnalysisHandler,
	profileHandler *handler.ProfileHandler,
	jobScheduler *scheduler.Scheduler,
) {
	api := h.Group("/api/v1")

	// 开启需求引导会话
	api.POST("/requirements", func(c context.Context, ctx *app.RequestContext) {
		var req handler.StartRequirementRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}
		resp, err := requirementHandler.HandleStart(c, &req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusCreated, resp)
	})

	// 提交当前问题的回答
	api.POST("/requirements/:requirementId/answers", func(c context.Context, ctx *app.RequestContext) {
		var req handler.SubmitAnswerRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}
		resp, err := requirementHandler.HandleAnswer(c, ctx.Param("requirementId"), &req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 查询需求会话状态
	api.GET("/requirements/:requirementId", func(c context.Context, ctx *app.RequestContext) {
		resp, err := requirementHandler.HandleGet(c, ctx.Param("requirementId"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 轮询某需求下的分析结果
	api.GET("/requirements/:requirementId/analyses", func(c context.Context, ctx *app.RequestContext) {
		resp, err := analysisHandler.HandleList(c, ctx.Param("requirementId"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 查询单个分析任务的详情
	api.GET("/requirements/:requirementId/analyses/:jobId", func(c context.Context, ctx *app.RequestContext) {
		resp, err := analysisHandler.HandleGetJob(c, ctx.Param("requirementId"), ctx.Param("jobId"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 手动为一个(画像,需求)对调度分析任务
	api.POST("/analyses", func(c context.Context, ctx *app.RequestContext) {
		var req struct {
			ProfileID     string `json:"profileId"`
			RequirementID string `json:"requirementId"`
		}
		if err := ctx.BindJSON(&req); err != nil || req.ProfileID == "" || req.RequirementID == "" {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "profileId与requirementId不能为空"})
			return
		}
		result, err := jobScheduler.Enqueue(c, req.ProfileID, req.RequirementID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		status := consts.StatusCreated
		if !result.Created {
			// 幂等命中既有任务
			status = consts.StatusOK
		}
		ctx.JSON(status, utils.H{
			"jobId":   result.Job.JobID,
			"status":  result.Job.Status,
			"created": result.Created,
		})
	})

	// 接入解析完成的候选人画像
	api.POST("/profiles", func(c context.Context, ctx *app.RequestContext) {
		var req handler.CreateProfileRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}
		resp, err := profileHandler.HandleCreate(c, &req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusCreated, resp)
	})

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

// writeError 把领域错误映射为HTTP状态码
func writeError(ctx *app.RequestContext, err error) {
	ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
}

// statusForError 错误到状态码的映射：未知错误一律500
func statusForError(err error) int {
	switch {
	case errors.Is(err, elicitation.ErrRequirementNotFound),
		errors.Is(err, scheduler.ErrRequirementNotFound),
		errors.Is(err, scheduler.ErrProfileNotFound),
		errors.Is(err, scheduler.ErrJobNotFound),
		errors.Is(err, storage.ErrRecordNotFound):
		return consts.StatusNotFound
	case errors.Is(err, elicitation.ErrEmptyAnswer),
		errors.Is(err, elicitation.ErrEmptyOwnerID),
		errors.Is(err, handler.ErrInvalidRequest):
		return consts.StatusBadRequest
	case errors.Is(err, elicitation.ErrAlreadyComplete),
		errors.Is(err, elicitation.ErrNoPendingQuestion),
		errors.Is(err, scheduler.ErrRequirementNotComplete):
		return consts.StatusConflict
	default:
		return consts.StatusInternalServerError
	}
}
