package handler

import (
	"context"
	"fmt"

	"recruit-agent-go/internal/elicitation"

	"github.com/go-playground/validator/v10"
)

// validate 请求体校验器，所有handler共用
var validate = validator.New()

// RequirementHandler 需求引导对话的HTTP处理器
type RequirementHandler struct {
	engine *elicitation.Engine
}

// NewRequirementHandler 创建需求对话处理器
func NewRequirementHandler(engine *elicitation.Engine) *RequirementHandler {
	return &RequirementHandler{engine: engine}
}

// StartRequirementRequest 开启需求会话的请求体
type StartRequirementRequest struct {
	OwnerID string `json:"ownerId" validate:"required,max=64"`
}

// SubmitAnswerRequest 提交回答的请求体
type SubmitAnswerRequest struct {
	Answer string `json:"answer" validate:"required,max=4000"`
}

// HandleStart 开启一个新的需求引导会话
func (h *RequirementHandler) HandleStart(ctx context.Context, req *StartRequirementRequest) (*elicitation.StartResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", elicitation.ErrEmptyOwnerID, err.Error())
	}
	return h.engine.Start(ctx, req.OwnerID)
}

// HandleAnswer 提交当前问题的回答
func (h *RequirementHandler) HandleAnswer(ctx context.Context, requirementID string, req *SubmitAnswerRequest) (*elicitation.AnswerResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, elicitation.NewEmptyAnswerError(requirementID)
	}
	return h.engine.SubmitAnswer(ctx, requirementID, req.Answer)
}

// HandleGet 查询需求会话当前状态
func (h *RequirementHandler) HandleGet(ctx context.Context, requirementID string) (*elicitation.Snapshot, error) {
	return h.engine.GetSnapshot(ctx, requirementID)
}
