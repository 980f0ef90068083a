package elicitation

import (
	"recruit-agent-go/internal/constants"
)

// OpeningQuestion 冷启动的固定开场问题，保证首轮确定性
const OpeningQuestion = "What role are you hiring for?"

// facetOrder 提问的固定优先级。重放同一组回答时问题序列必须完全一致，
// 所以缺失侧面的选取只依赖这个顺序，不依赖任何运行时状态。
var facetOrder = []string{
	constants.FacetTitle,
	constants.FacetSkills,
	constants.FacetSeniority,
	constants.FacetQualification,
	constants.FacetNiceToHave,
}

// facetQuestions 每个侧面对应的固定问题模板
var facetQuestions = map[string]string{
	constants.FacetTitle:         OpeningQuestion,
	constants.FacetSkills:        "Which skills are required for this role?",
	constants.FacetSeniority:     "What level of seniority are you looking for (e.g. junior, mid-level, senior, lead)?",
	constants.FacetQualification: "Are there any must-have qualifications, such as degrees or certifications?",
	constants.FacetNiceToHave:    "Is there anything that would be nice to have but is not strictly required?",
}

// refinementQuestions 所有侧面都已覆盖但还未达到最少轮数时的补充问题，
// 按已回答轮数取模选取，同样保证确定性
var refinementQuestions = []string{
	"Are there any additional skills that would strengthen a candidate's application?",
	"Are there other qualifications or experiences you would like to add as requirements?",
	"Is there anything else that would make a candidate stand out for this role?",
}

// refinementFacets 补充问题的回答归入的侧面，与 refinementQuestions 一一对应
var refinementFacets = []string{
	constants.FacetSkills,
	constants.FacetQualification,
	constants.FacetNiceToHave,
}

// questionFacet 反查某个问题文本归属的侧面，用于重放时把回答喂给正确的侧面
func questionFacet(question string) string {
	for facet, q := range facetQuestions {
		if q == question {
			return facet
		}
	}
	for i, q := range refinementQuestions {
		if q == question {
			return refinementFacets[i]
		}
	}
	// 未知问题归入nice-to-have，不会丢失信息
	return constants.FacetNiceToHave
}
