package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/logger"
	"recruit-agent-go/internal/storage"
	"recruit-agent-go/internal/storage/models"
	"recruit-agent-go/internal/types"

	"github.com/gofrs/uuid/v5"
)

// ProfileWriter 画像持久化
type ProfileWriter interface {
	CreateProfile(ctx context.Context, profile *models.CandidateProfile) error
}

// EventPublisher 画像创建事件发布端
type EventPublisher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
}

// ProfileFanIn 消息队列不可用时的同进程扇入兜底
type ProfileFanIn interface {
	EnqueueForProfile(ctx context.Context, profileID string) (int, error)
}

// ProfileHandler 候选人画像接入的HTTP处理器。画像的结构化解析由外部解析器完成，
// 这里只接收解析产物、落库并广播创建事件。
type ProfileHandler struct {
	cfg       *config.Config
	store     ProfileWriter
	publisher EventPublisher // 可为nil
	fanIn     ProfileFanIn   // 可为nil
}

// NewProfileHandler 创建画像处理器
func NewProfileHandler(cfg *config.Config, store ProfileWriter, publisher EventPublisher, fanIn ProfileFanIn) *ProfileHandler {
	return &ProfileHandler{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		fanIn:     fanIn,
	}
}

// CreateProfileRequest 画像接入请求体
type CreateProfileRequest struct {
	OwnerID         string              `json:"ownerId" validate:"required,max=64"`
	DisplayName     string              `json:"displayName" validate:"max=255"`
	Facets          types.ProfileFacets `json:"facets"`
	ParseConfidence float64             `json:"parseConfidence" validate:"gte=0,lte=1"`
}

// CreateProfileResponse 画像接入响应
type CreateProfileResponse struct {
	ProfileID string `json:"profileId"`
}

// HandleCreate 接收一份解析完成的候选人画像
func (h *ProfileHandler) HandleCreate(ctx context.Context, req *CreateProfileRequest) (*CreateProfileResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	profileID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成画像ID失败: %w", err)
	}

	facetsJSON, err := json.Marshal(req.Facets)
	if err != nil {
		return nil, fmt.Errorf("序列化画像侧面失败: %w", err)
	}

	profile := &models.CandidateProfile{
		ProfileID:       profileID.String(),
		OwnerID:         req.OwnerID,
		DisplayName:     req.DisplayName,
		FacetsJSON:      facetsJSON,
		ParseConfidence: req.ParseConfidence,
	}
	if err := h.store.CreateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("写入画像失败: %w", err)
	}

	h.broadcastCreated(ctx, profile)

	logger.Info().
		Str("profile_id", profile.ProfileID).
		Str("owner_id", profile.OwnerID).
		Msg("候选人画像已接入")
	return &CreateProfileResponse{ProfileID: profile.ProfileID}, nil
}

// broadcastCreated 广播画像创建事件。优先走消息队列，不可用时回退到同进程扇入；
// 两条路径都失败只记录告警，画像本身已成功落库。
func (h *ProfileHandler) broadcastCreated(ctx context.Context, profile *models.CandidateProfile) {
	if h.publisher != nil {
		msg := storage.ProfileCreatedMessage{
			ProfileID: profile.ProfileID,
			OwnerID:   profile.OwnerID,
			CreatedAt: time.Now(),
		}
		err := h.publisher.PublishJSON(ctx,
			h.cfg.RabbitMQ.ProfileEventsExchange,
			h.cfg.RabbitMQ.ProfileCreatedRoutingKey,
			msg, true)
		if err == nil {
			return
		}
		logger.Warn().Err(err).Str("profile_id", profile.ProfileID).Msg("发布画像创建事件失败，回退到同进程扇入")
	}

	if h.fanIn != nil {
		if _, err := h.fanIn.EnqueueForProfile(ctx, profile.ProfileID); err != nil {
			logger.Warn().Err(err).Str("profile_id", profile.ProfileID).Msg("画像扇入兜底失败")
		}
	}
}
