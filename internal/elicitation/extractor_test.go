package elicitation

import (
	"testing"

	"recruit-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   []string
	}{
		{
			name:   "逗号分隔",
			answer: "Go, SQL, Kubernetes",
			want:   []string{"Go", "SQL", "Kubernetes"},
		},
		{
			name:   "and连接词归一化",
			answer: "Go and SQL and Kubernetes",
			want:   []string{"Go", "SQL", "Kubernetes"},
		},
		{
			name:   "混合分隔符",
			answer: "Go; SQL/Kubernetes\nDocker",
			want:   []string{"Go", "SQL", "Kubernetes", "Docker"},
		},
		{
			name:   "表示没有的回答",
			answer: "none",
			want:   []string{},
		},
		{
			name:   "列表中夹杂空项",
			answer: "Go,, ,SQL",
			want:   []string{"Go", "SQL"},
		},
		{
			name:   "单项无分隔符",
			answer: "familiarity with GraphQL would be nice",
			want:   []string{"familiarity with GraphQL would be nice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitList(tt.answer))
		})
	}
}

func TestNormalizeSeniority(t *testing.T) {
	tests := []struct {
		answer string
		want   string
	}{
		{"senior", "senior"},
		{"We need a Senior engineer", "senior"},
		{"junior or entry level", "junior"},
		{"mid-level", "mid"},
		{"staff engineer", "lead"},
		// lead类关键字优先于senior
		{"senior staff engineer", "lead"},
		{"principal architect", "lead"},
		// 年限推算
		{"2 years", "junior"},
		{"5 years of experience", "mid"},
		{"8+ yrs", "senior"},
		{"12 years", "lead"},
		// 显式级别词优先于年限
		{"junior with 10 years", "junior"},
		// 无法识别
		{"someone who gets things done", ""},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeSeniority(tt.answer))
		})
	}
}

func TestAppendUnique(t *testing.T) {
	got := appendUnique([]string{"Go", "SQL"}, "go", "Docker", "docker")
	assert.Equal(t, []string{"Go", "SQL", "Docker"}, got)
}

func TestReplayTurns(t *testing.T) {
	answer := func(s string) *string { return &s }

	turns := []types.ConversationTurn{
		{Question: OpeningQuestion, Answer: answer("Senior Go Developer")},
		{Question: facetQuestions["skills"], Answer: answer("Go, SQL and Kubernetes")},
		{Question: facetQuestions["qualifications"], Answer: answer("Bachelor degree in CS")},
		// 末轮未回答，不参与重放
		{Question: facetQuestions["nice_to_haves"]},
	}

	draft := replayTurns(turns)

	assert.Equal(t, "Senior Go Developer", draft.title)
	// 职位名里的级别词被顺带提取
	assert.Equal(t, "senior", draft.seniority)
	assert.Equal(t, []string{"Go", "SQL", "Kubernetes"}, draft.skills)
	assert.Equal(t, []string{"Bachelor degree in CS"}, draft.mustHaves)
	assert.Empty(t, draft.niceToHaves)
	assert.True(t, draft.coreFacetsFilled())
}

func TestReplayTurnsDeterministic(t *testing.T) {
	answer := func(s string) *string { return &s }
	turns := []types.ConversationTurn{
		{Question: OpeningQuestion, Answer: answer("Backend Engineer")},
		{Question: facetQuestions["skills"], Answer: answer("Go, Redis")},
		{Question: facetQuestions["seniority"], Answer: answer("5 years")},
	}

	first := replayTurns(turns)
	second := replayTurns(turns)
	assert.Equal(t, first, second)
}

func TestCompileNeverNilSlices(t *testing.T) {
	draft := &requirementDraft{title: "Backend Engineer", seniority: "mid"}
	compiled := draft.compile()

	assert.NotNil(t, compiled.Skills)
	assert.NotNil(t, compiled.MustHaves)
	assert.NotNil(t, compiled.NiceToHaves)
}

func TestSeniorityFallbackKeepsRawAnswer(t *testing.T) {
	draft := &requirementDraft{}
	draft.applyAnswer("seniority", "Somewhere Between Wizard And God")

	// 无法归一化时保留原始回答的小写形式
	assert.Equal(t, "somewhere between wizard and god", draft.seniority)
}
