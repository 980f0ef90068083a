package matcher

import (
	"context"
	"testing"

	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/constants"
	"recruit-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalEvaluator(t *testing.T) *LocalEvaluator {
	t.Helper()
	cfg := config.DefaultConfig()
	evaluator, err := NewLocalEvaluator(&cfg.Matcher)
	require.NoError(t, err)
	return evaluator
}

func strongMatchInput() *MatchInput {
	return &MatchInput{
		ProfileID:     "profile-1",
		RequirementID: "req-1",
		Requirement: types.CompiledRequirement{
			Title:       "Senior Go Developer",
			Skills:      []string{"Go", "SQL"},
			Seniority:   "senior",
			MustHaves:   []string{"Bachelor"},
			NiceToHaves: []string{"Kubernetes"},
		},
		Profile: types.ProfileFacets{
			Skills:          []string{"Go", "SQL", "Kubernetes"},
			YearsExperience: 7,
			Seniority:       "senior",
			Education:       []string{"Bachelor of Computer Science"},
		},
		ParseConfidence: 0.9,
	}
}

func TestLocalEvaluateStrongMatch(t *testing.T) {
	evaluator := newLocalEvaluator(t)

	result, err := evaluator.Evaluate(context.Background(), strongMatchInput())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.MatchScore, 75)
	assert.LessOrEqual(t, result.MatchScore, 100)

	// 技能全部命中，必须出现在优势中且可回溯到技能侧面
	var skillStrength bool
	for _, s := range result.Strengths {
		if s.Facet == constants.FacetSkills {
			skillStrength = true
			assert.Contains(t, s.Claim, "Go")
		}
	}
	assert.True(t, skillStrength, "技能侧面应被记为优势")

	// 即使是强匹配，三个列表也都不允许为空
	assert.NotEmpty(t, result.Weaknesses)
	assert.NotEmpty(t, result.Gaps)
	assert.NotEmpty(t, result.OneSolution)
}

func TestLocalEvaluatePoorMatch(t *testing.T) {
	evaluator := newLocalEvaluator(t)

	input := &MatchInput{
		ProfileID:     "profile-2",
		RequirementID: "req-1",
		Requirement: types.CompiledRequirement{
			Title:     "Lead Platform Engineer",
			Skills:    []string{"Go", "Kubernetes", "Terraform"},
			Seniority: "lead",
			MustHaves: []string{"PhD in Computer Science"},
		},
		Profile: types.ProfileFacets{
			Skills:    []string{"Photoshop", "Illustration"},
			Seniority: "intern",
		},
		ParseConfidence: 0.8,
	}

	result, err := evaluator.Evaluate(context.Background(), input)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.MatchScore, 0)
	assert.Less(t, result.MatchScore, 40)

	// 技能完全不命中应产生high严重度的差距，且排在最前
	require.NotEmpty(t, result.Gaps)
	assert.Equal(t, constants.FacetSkills, result.Gaps[0].Type)
	assert.Equal(t, constants.SeverityHigh, result.Gaps[0].Severity)
	assert.Contains(t, result.OneSolution, "技能")
}

func TestGapTieBreakPrefersSkills(t *testing.T) {
	evaluator := newLocalEvaluator(t)

	// 技能、级别、资质三个侧面同时为high严重度，建议必须取技能差距
	input := &MatchInput{
		ProfileID:     "profile-3",
		RequirementID: "req-1",
		Requirement: types.CompiledRequirement{
			Skills:    []string{"Go"},
			Seniority: "lead",
			MustHaves: []string{"PhD"},
		},
		Profile: types.ProfileFacets{
			Skills:    []string{"Painting"},
			Seniority: "intern",
		},
		ParseConfidence: 0.8,
	}

	result, err := evaluator.Evaluate(context.Background(), input)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(result.Gaps), 3)
	for _, gap := range result.Gaps {
		assert.Equal(t, constants.SeverityHigh, gap.Severity)
	}
	assert.Equal(t, constants.FacetSkills, result.Gaps[0].Type)
	assert.Equal(t, constants.FacetSeniority, result.Gaps[1].Type)
	assert.Equal(t, constants.FacetQualification, result.Gaps[2].Type)
	assert.Contains(t, result.OneSolution, "技能")
}

func TestIncompleteProfileRejected(t *testing.T) {
	evaluator := newLocalEvaluator(t)
	ctx := context.Background()

	// 置信度低于下限
	lowConfidence := strongMatchInput()
	lowConfidence.ParseConfidence = 0.05
	_, err := evaluator.Evaluate(ctx, lowConfidence)
	assert.ErrorIs(t, err, ErrIncompleteProfile)

	// 置信度正常但画像没有任何结构化侧面
	emptyProfile := strongMatchInput()
	emptyProfile.Profile = types.ProfileFacets{}
	_, err = evaluator.Evaluate(ctx, emptyProfile)
	assert.ErrorIs(t, err, ErrIncompleteProfile)
}

func TestSeniorityDerivedFromYears(t *testing.T) {
	evaluator := newLocalEvaluator(t)
	ctx := context.Background()

	input := &MatchInput{
		ProfileID:     "profile-4",
		RequirementID: "req-1",
		Requirement: types.CompiledRequirement{
			Skills:    []string{"Go"},
			Seniority: "senior",
		},
		Profile: types.ProfileFacets{
			Skills:          []string{"Go"},
			YearsExperience: 7, // 无显式级别，按年限推算为senior
		},
		ParseConfidence: 0.9,
	}

	result, err := evaluator.Evaluate(ctx, input)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.MatchScore, 90)

	// 年限过短时级别侧面应成为短板
	input.Profile.YearsExperience = 1
	result, err = evaluator.Evaluate(ctx, input)
	require.NoError(t, err)

	var seniorityWeak bool
	for _, w := range result.Weaknesses {
		if w.Facet == constants.FacetSeniority {
			seniorityWeak = true
		}
	}
	assert.True(t, seniorityWeak, "年限远低于要求时级别侧面应被记为短板")
}

func TestUnspecifiedSeniorityScoresAsSatisfied(t *testing.T) {
	evaluator := newLocalEvaluator(t)
	ctx := context.Background()

	// 需求未指定级别时级别子分数视为已满足，不应拖累总分
	input := &MatchInput{
		ProfileID:     "profile-5",
		RequirementID: "req-1",
		Requirement: types.CompiledRequirement{
			Skills: []string{"Go", "SQL"},
		},
		Profile: types.ProfileFacets{
			Skills:          []string{"Go", "SQL", "Kubernetes"},
			YearsExperience: 5,
		},
		ParseConfidence: 0.9,
	}

	result, err := evaluator.Evaluate(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 100, result.MatchScore)

	// 有级别要求但无法识别时保留不确定性降分
	input.Requirement.Seniority = "rockstar"
	result, err = evaluator.Evaluate(ctx, input)
	require.NoError(t, err)
	assert.Less(t, result.MatchScore, 100)
}

func TestEvaluateDeterministic(t *testing.T) {
	evaluator := newLocalEvaluator(t)
	ctx := context.Background()

	first, err := evaluator.Evaluate(ctx, strongMatchInput())
	require.NoError(t, err)
	second, err := evaluator.Evaluate(ctx, strongMatchInput())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestScoreAlwaysInRange(t *testing.T) {
	evaluator := newLocalEvaluator(t)
	ctx := context.Background()

	inputs := []*MatchInput{
		strongMatchInput(),
		{
			ProfileID:       "p",
			RequirementID:   "r",
			Requirement:     types.CompiledRequirement{},
			Profile:         types.ProfileFacets{Skills: []string{"Go"}},
			ParseConfidence: 0.5,
		},
		{
			ProfileID:     "p",
			RequirementID: "r",
			Requirement: types.CompiledRequirement{
				Skills:      []string{"Go"},
				NiceToHaves: []string{"Go", "SQL", "Kubernetes", "Docker"},
			},
			// 满分基础分 + 加分项也不允许超过100
			Profile:         types.ProfileFacets{Skills: []string{"Go", "SQL", "Kubernetes", "Docker"}},
			ParseConfidence: 0.5,
		},
	}

	for _, input := range inputs {
		result, err := evaluator.Evaluate(ctx, input)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.MatchScore, 0)
		assert.LessOrEqual(t, result.MatchScore, 100)
	}
}
