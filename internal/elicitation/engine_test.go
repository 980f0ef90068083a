package elicitation

import (
	"context"
	"sync"
	"testing"

	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/constants"
	"recruit-agent-go/internal/storage"
	"recruit-agent-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// fakeRequirementStore 内存版需求存储，复刻MySQL实现的状态守卫语义
type fakeRequirementStore struct {
	mu   sync.Mutex
	reqs map[string]*models.JobRequirement
}

func newFakeRequirementStore() *fakeRequirementStore {
	return &fakeRequirementStore{reqs: make(map[string]*models.JobRequirement)}
}

func (f *fakeRequirementStore) CreateRequirement(_ context.Context, req *models.JobRequirement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *req
	f.reqs[req.RequirementID] = &copied
	return nil
}

func (f *fakeRequirementStore) GetRequirement(_ context.Context, requirementID string) (*models.JobRequirement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[requirementID]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	copied := *req
	return &copied, nil
}

func (f *fakeRequirementStore) UpdateRequirementTurns(_ context.Context, requirementID string, turns datatypes.JSON, turnCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[requirementID]
	if !ok || req.Status != constants.RequirementStatusInProgress {
		return storage.ErrRecordNotFound
	}
	req.TurnsJSON = turns
	req.TurnCount = turnCount
	return nil
}

func (f *fakeRequirementStore) CompleteRequirement(_ context.Context, requirementID string, turns datatypes.JSON, turnCount int, compiled datatypes.JSON) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[requirementID]
	if !ok || req.Status != constants.RequirementStatusInProgress {
		return storage.ErrRecordNotFound
	}
	req.TurnsJSON = turns
	req.TurnCount = turnCount
	req.CompiledJSON = compiled
	req.Status = constants.RequirementStatusComplete
	return nil
}

// recordingNotifier 记录完成回调
type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
}

func (r *recordingNotifier) RequirementCompleted(_ context.Context, requirementID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, requirementID)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeRequirementStore) {
	t.Helper()
	store := newFakeRequirementStore()
	engine, err := NewEngine(store, &config.ElicitationConfig{MinTurns: 5, MaxTurns: 10}, opts...)
	require.NoError(t, err)
	return engine, store
}

func TestStartCreatesOpeningTurn(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Start(ctx, "owner-1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.RequirementID)
	assert.Equal(t, OpeningQuestion, result.Question)

	snapshot, err := engine.GetSnapshot(ctx, result.RequirementID)
	require.NoError(t, err)
	assert.Equal(t, constants.RequirementStatusInProgress, snapshot.Status)
	require.Len(t, snapshot.Turns, 1)
	assert.Equal(t, OpeningQuestion, snapshot.Turns[0].Question)
	assert.False(t, snapshot.Turns[0].Answered())

	req, err := store.GetRequirement(ctx, result.RequirementID)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", req.OwnerID)
}

func TestStartRejectsEmptyOwner(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Start(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyOwnerID)
}

func TestSubmitAnswerHappyPath(t *testing.T) {
	notifier := &recordingNotifier{}
	engine, _ := newTestEngine(t, WithCompletionNotifier(notifier))
	ctx := context.Background()

	started, err := engine.Start(ctx, "owner-1")
	require.NoError(t, err)
	requirementID := started.RequirementID

	// 职位名带级别词，seniority被顺带填充，对应问题不会再问
	answers := []string{
		"Senior Go Developer",
		"Go, SQL and Kubernetes",
		"Bachelor degree in CS",
		"GraphQL experience would be nice",
	}
	expectedQuestions := []string{
		facetQuestions[constants.FacetSkills],
		facetQuestions[constants.FacetQualification],
		facetQuestions[constants.FacetNiceToHave],
		// 所有侧面已覆盖但未达最少轮数，进入补充问题
		refinementQuestions[4%len(refinementQuestions)],
	}

	for i, answer := range answers {
		result, err := engine.SubmitAnswer(ctx, requirementID, answer)
		require.NoError(t, err)
		assert.False(t, result.Complete)
		assert.Equal(t, expectedQuestions[i], result.Question, "第%d轮的下一问", i+1)
	}

	// 第5轮回答后达到最少轮数且核心侧面齐备，对话结束
	final, err := engine.SubmitAnswer(ctx, requirementID, "AWS certification")
	require.NoError(t, err)
	assert.True(t, final.Complete)
	require.NotNil(t, final.Compiled)
	assert.Equal(t, "Senior Go Developer", final.Compiled.Title)
	assert.Equal(t, []string{"Go", "SQL", "Kubernetes"}, final.Compiled.Skills)
	assert.Equal(t, "senior", final.Compiled.Seniority)
	assert.Contains(t, final.Compiled.MustHaves, "Bachelor degree in CS")
	assert.Contains(t, final.Compiled.MustHaves, "AWS certification")
	assert.Equal(t, []string{"GraphQL experience would be nice"}, final.Compiled.NiceToHaves)

	// 完成回调已触发
	assert.Equal(t, []string{requirementID}, notifier.completed)

	// 快照反映终态
	snapshot, err := engine.GetSnapshot(ctx, requirementID)
	require.NoError(t, err)
	assert.Equal(t, constants.RequirementStatusComplete, snapshot.Status)
	require.NotNil(t, snapshot.Compiled)
	assert.Len(t, snapshot.Turns, 5)
}

func TestQuestionSequenceDeterministic(t *testing.T) {
	answers := []string{
		"Backend Engineer",
		"Go, Redis",
		"5 years",
		"none",
		"nothing else",
	}

	run := func() ([]string, *AnswerResult) {
		engine, _ := newTestEngine(t)
		ctx := context.Background()
		started, err := engine.Start(ctx, "owner-1")
		require.NoError(t, err)

		var questions []string
		var last *AnswerResult
		questions = append(questions, started.Question)
		for _, answer := range answers {
			result, err := engine.SubmitAnswer(ctx, started.RequirementID, answer)
			require.NoError(t, err)
			last = result
			if !result.Complete {
				questions = append(questions, result.Question)
			}
		}
		return questions, last
	}

	firstQuestions, firstResult := run()
	secondQuestions, secondResult := run()

	// 同一组回答必须产出完全一致的问题序列和编译结果
	assert.Equal(t, firstQuestions, secondQuestions)
	require.True(t, firstResult.Complete)
	require.True(t, secondResult.Complete)
	assert.Equal(t, firstResult.Compiled, secondResult.Compiled)
}

func TestSubmitEmptyAnswerLeavesTurnsUnchanged(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	started, err := engine.Start(ctx, "owner-1")
	require.NoError(t, err)

	_, err = engine.SubmitAnswer(ctx, started.RequirementID, "   \n\t ")
	assert.ErrorIs(t, err, ErrEmptyAnswer)

	// 轮序列保持原样：仍是一轮未回答的开场问题
	snapshot, err := engine.GetSnapshot(ctx, started.RequirementID)
	require.NoError(t, err)
	require.Len(t, snapshot.Turns, 1)
	assert.False(t, snapshot.Turns[0].Answered())
}

func TestSubmitAnswerNotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.SubmitAnswer(context.Background(), "no-such-id", "hello")
	assert.ErrorIs(t, err, ErrRequirementNotFound)
}

func TestSubmitAnswerAfterComplete(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	started, err := engine.Start(ctx, "owner-1")
	require.NoError(t, err)

	answers := []string{
		"Senior Go Developer",
		"Go, SQL",
		"Bachelor degree",
		"none",
		"nothing else",
	}
	var final *AnswerResult
	for _, answer := range answers {
		final, err = engine.SubmitAnswer(ctx, started.RequirementID, answer)
		require.NoError(t, err)
	}
	require.True(t, final.Complete)

	_, err = engine.SubmitAnswer(ctx, started.RequirementID, "one more thing")
	assert.ErrorIs(t, err, ErrAlreadyComplete)
}

func TestMaxTurnsForcesCompletion(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	started, err := engine.Start(ctx, "owner-1")
	require.NoError(t, err)

	// 技能侧面始终回答"没有"，核心侧面永远无法齐备，对话应在硬上限处无条件结束
	var final *AnswerResult
	for i := 0; i < 10; i++ {
		answer := "none"
		if i == 0 {
			answer = "Backend Engineer"
		}
		final, err = engine.SubmitAnswer(ctx, started.RequirementID, answer)
		require.NoError(t, err)
	}

	require.NotNil(t, final)
	assert.True(t, final.Complete)
	require.NotNil(t, final.Compiled)
	assert.Equal(t, "Backend Engineer", final.Compiled.Title)
	// 技能列表为空但非nil
	assert.NotNil(t, final.Compiled.Skills)
	assert.Empty(t, final.Compiled.Skills)

	snapshot, err := engine.GetSnapshot(ctx, started.RequirementID)
	require.NoError(t, err)
	assert.Equal(t, constants.RequirementStatusComplete, snapshot.Status)
	assert.Len(t, snapshot.Turns, 10)
}

func TestConcurrentSubmitsSerialized(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	started, err := engine.Start(ctx, "owner-1")
	require.NoError(t, err)

	// 并发提交被按键互斥锁串行化：每个成功的提交回答一个问题并追加下一问，
	// 对话在第5轮（最少轮数且核心侧面齐备）结束，之后的提交收到已结束错误
	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, rejected int
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, submitErr := engine.SubmitAnswer(ctx, started.RequirementID, "Backend Engineer")
			mu.Lock()
			defer mu.Unlock()
			if submitErr == nil {
				succeeded++
			} else if assert.ErrorIs(t, submitErr, ErrAlreadyComplete) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 3, rejected)

	snapshot, err := engine.GetSnapshot(ctx, started.RequirementID)
	require.NoError(t, err)
	// 轮序列未分叉，每轮恰好被回答一次
	assert.Equal(t, constants.RequirementStatusComplete, snapshot.Status)
	assert.Len(t, snapshot.Turns, 5)
}
