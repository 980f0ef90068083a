package elicitation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/constants"
	"recruit-agent-go/internal/logger"
	"recruit-agent-go/internal/storage"
	"recruit-agent-go/internal/storage/models"
	"recruit-agent-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"gorm.io/datatypes"
)

// RequirementStore 引导引擎依赖的持久化操作子集
type RequirementStore interface {
	CreateRequirement(ctx context.Context, req *models.JobRequirement) error
	GetRequirement(ctx context.Context, requirementID string) (*models.JobRequirement, error)
	UpdateRequirementTurns(ctx context.Context, requirementID string, turns datatypes.JSON, turnCount int) error
	CompleteRequirement(ctx context.Context, requirementID string, turns datatypes.JSON, turnCount int, compiled datatypes.JSON) error
}

// CompiledCache 编译需求的缓存写入，可选依赖
type CompiledCache interface {
	CacheCompiledRequirement(ctx context.Context, requirementID string, compiledJSON string) error
}

// CompletionNotifier 需求完成后的回调，调度器用它触发画像扇出。
// 回调在完成落库之后执行，失败由实现方自行记录，不回滚完成状态。
type CompletionNotifier interface {
	RequirementCompleted(ctx context.Context, requirementID, ownerID string)
}

// Engine 需求引导对话引擎。问题序列对同一组回答完全确定：
// 草稿由轮序列重放重建，下一问只取决于草稿缺口和固定优先级。
type Engine struct {
	store    RequirementStore
	cache    CompiledCache      // 可为nil
	notifier CompletionNotifier // 可为nil
	minTurns int
	maxTurns int
	locks    keyedMutex
}

// Option Engine的功能选项
type Option func(*Engine)

// WithCompiledCache 设置编译需求缓存
func WithCompiledCache(cache CompiledCache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithCompletionNotifier 设置完成回调
func WithCompletionNotifier(notifier CompletionNotifier) Option {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

// NewEngine 创建引导引擎
func NewEngine(store RequirementStore, cfg *config.ElicitationConfig, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("RequirementStore不能为空")
	}
	if cfg == nil {
		return nil, fmt.Errorf("Elicitation配置不能为空")
	}
	if cfg.MinTurns <= 0 || cfg.MaxTurns < cfg.MinTurns {
		return nil, fmt.Errorf("非法的轮数配置: min=%d max=%d", cfg.MinTurns, cfg.MaxTurns)
	}

	engine := &Engine{
		store:    store,
		minTurns: cfg.MinTurns,
		maxTurns: cfg.MaxTurns,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// StartResult 新会话的返回内容
type StartResult struct {
	RequirementID string `json:"requirementId"`
	Question      string `json:"question"`
}

// AnswerResult 提交回答后的返回内容。Complete为true时Compiled非空且Question为空，反之亦然。
type AnswerResult struct {
	Complete bool                       `json:"complete"`
	Question string                     `json:"question,omitempty"`
	Compiled *types.CompiledRequirement `json:"compiled,omitempty"`
}

// Snapshot 会话当前状态，供查询接口使用
type Snapshot struct {
	RequirementID string                     `json:"requirementId"`
	OwnerID       string                     `json:"ownerId"`
	Status        string                     `json:"status"`
	Turns         []types.ConversationTurn   `json:"turns"`
	Compiled      *types.CompiledRequirement `json:"compiled,omitempty"`
}

// Start 创建新的需求会话，首问固定为开场问题
func (e *Engine) Start(ctx context.Context, ownerID string) (*StartResult, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwnerID
	}

	requirementID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成需求ID失败: %w", err)
	}

	turns := []types.ConversationTurn{{Question: OpeningQuestion}}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("序列化问答轮失败: %w", err)
	}

	req := &models.JobRequirement{
		RequirementID: requirementID.String(),
		OwnerID:       ownerID,
		Status:        constants.RequirementStatusInProgress,
		TurnsJSON:     datatypes.JSON(turnsJSON),
		TurnCount:     0,
	}
	if err := e.store.CreateRequirement(ctx, req); err != nil {
		return nil, fmt.Errorf("创建需求会话失败: %w", err)
	}

	logger.Info().
		Str("requirement_id", requirementID.String()).
		Str("owner_id", ownerID).
		Msg("需求会话已创建")
	return &StartResult{
		RequirementID: requirementID.String(),
		Question:      OpeningQuestion,
	}, nil
}

// SubmitAnswer 提交当前待回答问题的回答。同一会话的并发提交被按键互斥锁串行化，
// 轮序列因此只会追加，不会分叉。
func (e *Engine) SubmitAnswer(ctx context.Context, requirementID, answer string) (*AnswerResult, error) {
	unlock := e.locks.lock(requirementID)
	defer unlock()

	req, err := e.store.GetRequirement(ctx, requirementID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, NewNotFoundError(requirementID)
		}
		return nil, fmt.Errorf("读取需求会话失败: %w", err)
	}
	if req.Status == constants.RequirementStatusComplete {
		return nil, NewAlreadyCompleteError(requirementID)
	}

	trimmed := trimAnswer(answer)
	if trimmed == "" {
		// 空回答不消耗轮次，轮序列保持原样
		return nil, NewEmptyAnswerError(requirementID)
	}

	var turns []types.ConversationTurn
	if err := json.Unmarshal(req.TurnsJSON, &turns); err != nil {
		return nil, NewCorruptError(requirementID, fmt.Sprintf("反序列化问答轮失败: %v", err))
	}
	if len(turns) == 0 {
		return nil, NewCorruptError(requirementID, "轮序列为空")
	}
	last := len(turns) - 1
	if turns[last].Answered() {
		// 并发重复提交会走到这里：前一个提交已消耗了当前问题
		return nil, NewNoPendingQuestionError(requirementID)
	}

	turns[last].Answer = &trimmed
	answered := len(turns) // 此刻所有轮都已回答

	draft := replayTurns(turns)

	// 停止策略：核心侧面齐备且达到最少轮数，或到达硬上限
	done := (answered >= e.minTurns && draft.coreFacetsFilled()) || answered >= e.maxTurns
	if done {
		return e.complete(ctx, req, turns, answered, draft)
	}

	nextQ := e.nextQuestion(draft, turns, answered)
	turns = append(turns, types.ConversationTurn{Question: nextQ})

	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("序列化问答轮失败: %w", err)
	}
	if err := e.store.UpdateRequirementTurns(ctx, requirementID, datatypes.JSON(turnsJSON), answered); err != nil {
		if storage.IsNotFound(err) {
			// 状态守卫落空：另一条路径已把会话置为COMPLETE
			return nil, NewAlreadyCompleteError(requirementID)
		}
		return nil, fmt.Errorf("写入问答轮失败: %w", err)
	}

	return &AnswerResult{Complete: false, Question: nextQ}, nil
}

// complete 编译草稿并把会话置为COMPLETE，随后执行缓存与回调（均为尽力而为）
func (e *Engine) complete(ctx context.Context, req *models.JobRequirement, turns []types.ConversationTurn, answered int, draft *requirementDraft) (*AnswerResult, error) {
	compiled := draft.compile()

	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("序列化问答轮失败: %w", err)
	}
	compiledJSON, err := json.Marshal(compiled)
	if err != nil {
		return nil, fmt.Errorf("序列化编译需求失败: %w", err)
	}

	if err := e.store.CompleteRequirement(ctx, req.RequirementID, datatypes.JSON(turnsJSON), answered, datatypes.JSON(compiledJSON)); err != nil {
		if storage.IsNotFound(err) {
			return nil, NewAlreadyCompleteError(req.RequirementID)
		}
		return nil, fmt.Errorf("完成需求会话失败: %w", err)
	}

	logger.Info().
		Str("requirement_id", req.RequirementID).
		Int("turns", answered).
		Str("title", compiled.Title).
		Msg("需求会话已完成")

	if e.cache != nil {
		if cacheErr := e.cache.CacheCompiledRequirement(ctx, req.RequirementID, string(compiledJSON)); cacheErr != nil {
			logger.Warn().
				Str("requirement_id", req.RequirementID).
				Err(cacheErr).
				Msg("缓存编译需求失败")
		}
	}
	if e.notifier != nil {
		e.notifier.RequirementCompleted(ctx, req.RequirementID, req.OwnerID)
	}

	return &AnswerResult{Complete: true, Compiled: compiled}, nil
}

// nextQuestion 选取下一问：先按固定优先级补缺失侧面（跳过已问过的，防止重复提问），
// 侧面都覆盖后进入补充问题循环，按已回答轮数取模选取。
func (e *Engine) nextQuestion(draft *requirementDraft, turns []types.ConversationTurn, answered int) string {
	asked := make(map[string]bool, len(turns))
	for _, turn := range turns {
		asked[turn.Question] = true
	}

	for _, facet := range facetOrder {
		if draft.facetFilled(facet) {
			continue
		}
		if q := facetQuestions[facet]; !asked[q] {
			return q
		}
	}
	return refinementQuestions[answered%len(refinementQuestions)]
}

// GetSnapshot 返回会话当前状态
func (e *Engine) GetSnapshot(ctx context.Context, requirementID string) (*Snapshot, error) {
	req, err := e.store.GetRequirement(ctx, requirementID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, NewNotFoundError(requirementID)
		}
		return nil, fmt.Errorf("读取需求会话失败: %w", err)
	}

	var turns []types.ConversationTurn
	if err := json.Unmarshal(req.TurnsJSON, &turns); err != nil {
		return nil, NewCorruptError(requirementID, fmt.Sprintf("反序列化问答轮失败: %v", err))
	}

	snapshot := &Snapshot{
		RequirementID: req.RequirementID,
		OwnerID:       req.OwnerID,
		Status:        req.Status,
		Turns:         turns,
	}
	if len(req.CompiledJSON) > 0 {
		var compiled types.CompiledRequirement
		if err := json.Unmarshal(req.CompiledJSON, &compiled); err != nil {
			return nil, NewCorruptError(requirementID, fmt.Sprintf("反序列化编译需求失败: %v", err))
		}
		snapshot.Compiled = &compiled
	}
	return snapshot, nil
}

// trimAnswer 去除首尾空白，全空白视为空回答
func trimAnswer(answer string) string {
	return strings.TrimSpace(answer)
}

// keyedMutex 按键互斥锁，串行化同一需求的并发提交。
// 锁条目带引用计数，最后一个持有者释放时回收。
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// lock 锁住指定键，返回解锁函数
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*entryLock)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &entryLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
