package types

import "strings"

// ConversationTurn 一轮问答。Answer 为 nil 表示该问题尚未回答（只可能出现在最后一轮）。
type ConversationTurn struct {
	Question string  `json:"question"`
	Answer   *string `json:"answer"`
}

// Answered 判断该轮是否已回答
func (t ConversationTurn) Answered() bool {
	return t.Answer != nil
}

// CompiledRequirement 对话结束后编译出的结构化岗位需求。
// 仅当需求状态为 COMPLETE 时才会持久化。
type CompiledRequirement struct {
	Title       string   `json:"title"`
	Skills      []string `json:"skills"`
	Seniority   string   `json:"seniority"`
	MustHaves   []string `json:"must_haves"`
	NiceToHaves []string `json:"nice_to_haves"`
}

// ProfileFacets 候选人画像的结构化侧面，由外部解析器产出，这里只消费。
type ProfileFacets struct {
	Skills          []string `json:"skills"`
	YearsExperience float64  `json:"years_experience"`
	Seniority       string   `json:"seniority"`
	Education       []string `json:"education"`
	Certifications  []string `json:"certifications"`
	Location        string   `json:"location"`
}

// IsEmpty 判断画像是否没有任何可用的结构化信息
func (p ProfileFacets) IsEmpty() bool {
	return len(p.Skills) == 0 &&
		p.YearsExperience == 0 &&
		strings.TrimSpace(p.Seniority) == "" &&
		len(p.Education) == 0 &&
		len(p.Certifications) == 0
}

// FacetClaim 一条可追溯的优势/短板描述，Facet 回指产生它的需求侧面
type FacetClaim struct {
	Facet string `json:"facet"`
	Claim string `json:"claim"`
}

// GapItem 一条带类型和严重程度的差距
type GapItem struct {
	Description string `json:"description"`
	Type        string `json:"type"`     // 产生差距的facet标识
	Severity    string `json:"severity"` // low / medium / high
}

// AnalysisResult 一次画像-需求匹配的完整产出。
// 成功的结果保证 Strengths / Weaknesses / Gaps 均非空（必要时填充"信息不足"条目）。
type AnalysisResult struct {
	MatchScore  int          `json:"match_score"` // [0, 100]
	Strengths   []FacetClaim `json:"strengths"`
	Weaknesses  []FacetClaim `json:"weaknesses"`
	Gaps        []GapItem    `json:"gaps"`
	OneSolution string       `json:"one_solution"`
}
