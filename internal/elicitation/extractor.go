package elicitation

import (
	"regexp"
	"strconv"
	"strings"

	"recruit-agent-go/internal/constants"
	"recruit-agent-go/internal/types"
)

// requirementDraft 重放问答轮过程中逐步填充的需求草稿。
// 草稿不落库：每次提交回答都从完整的轮序列重放重建，保证同一组回答产出同一份草稿。
type requirementDraft struct {
	title       string
	skills      []string
	seniority   string
	mustHaves   []string
	niceToHaves []string
}

// replayTurns 从已回答的问答轮重建草稿。每轮的回答按提出该问题的侧面归档，
// 与轮到达顺序无关的信息（如职位名里带的级别词）做一次顺带提取。
func replayTurns(turns []types.ConversationTurn) *requirementDraft {
	draft := &requirementDraft{}
	for _, turn := range turns {
		if !turn.Answered() {
			continue
		}
		draft.applyAnswer(questionFacet(turn.Question), *turn.Answer)
	}
	return draft
}

// applyAnswer 把一条回答归入指定侧面
func (d *requirementDraft) applyAnswer(facet, answer string) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return
	}

	switch facet {
	case constants.FacetTitle:
		if d.title == "" {
			// 职位名取回答的第一行，避免长段落污染标题
			d.title = firstLine(answer)
		}
		// 顺带提取职位名中的级别词，如 "Senior Go Developer"
		if d.seniority == "" {
			if level := normalizeSeniority(answer); level != "" {
				d.seniority = level
			}
		}
	case constants.FacetSkills:
		d.skills = appendUnique(d.skills, splitList(answer)...)
	case constants.FacetSeniority:
		if level := normalizeSeniority(answer); level != "" {
			d.seniority = level
		} else {
			// 无法归一化时保留原始回答，信息不丢失且对话可以继续推进
			d.seniority = strings.ToLower(firstLine(answer))
		}
	case constants.FacetQualification:
		d.mustHaves = appendUnique(d.mustHaves, splitList(answer)...)
	case constants.FacetNiceToHave:
		d.niceToHaves = appendUnique(d.niceToHaves, splitList(answer)...)
	}
}

// facetFilled 判断某侧面是否已有内容
func (d *requirementDraft) facetFilled(facet string) bool {
	switch facet {
	case constants.FacetTitle:
		return d.title != ""
	case constants.FacetSkills:
		return len(d.skills) > 0
	case constants.FacetSeniority:
		return d.seniority != ""
	case constants.FacetQualification:
		return len(d.mustHaves) > 0
	case constants.FacetNiceToHave:
		return len(d.niceToHaves) > 0
	}
	return false
}

// coreFacetsFilled 判断完成对话所需的核心侧面（职位、技能、级别）是否齐备
func (d *requirementDraft) coreFacetsFilled() bool {
	return d.title != "" && len(d.skills) > 0 && d.seniority != ""
}

// compile 从草稿生成最终的结构化需求。切片字段保证非nil，序列化后是[]而不是null。
func (d *requirementDraft) compile() *types.CompiledRequirement {
	compiled := &types.CompiledRequirement{
		Title:       d.title,
		Skills:      d.skills,
		Seniority:   d.seniority,
		MustHaves:   d.mustHaves,
		NiceToHaves: d.niceToHaves,
	}
	if compiled.Skills == nil {
		compiled.Skills = []string{}
	}
	if compiled.MustHaves == nil {
		compiled.MustHaves = []string{}
	}
	if compiled.NiceToHaves == nil {
		compiled.NiceToHaves = []string{}
	}
	return compiled
}

// listSeparators 列表型回答的分隔符
var listSeparators = regexp.MustCompile(`[,;/\n、，；]+`)

// noiseAnswers 表示"没有"的回答，不应产出列表项
var noiseAnswers = map[string]bool{
	"no": true, "none": true, "nothing": true, "n/a": true, "na": true,
	"nope": true, "not really": true, "没有": true, "无": true,
}

// splitList 把自由文本回答切分为列表项。先把 " and " 归一成逗号再按分隔符切分，
// 表示"没有"的回答返回空列表。
func splitList(answer string) []string {
	normalized := regexp.MustCompile(`(?i)\s+and\s+`).ReplaceAllString(answer, ",")
	parts := listSeparators.Split(normalized, -1)

	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" || noiseAnswers[strings.ToLower(item)] {
			continue
		}
		items = append(items, item)
	}
	return items
}

// appendUnique 追加去重（大小写不敏感），保持首次出现的原始写法
func appendUnique(existing []string, items ...string) []string {
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[strings.ToLower(item)] = true
	}
	for _, item := range items {
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		existing = append(existing, item)
	}
	return existing
}

// yearsPattern 匹配 "5 years" / "5+ yrs" / "5年" 这类年限表述
var yearsPattern = regexp.MustCompile(`(\d+)\s*\+?\s*(?:years?|yrs?|年)`)

// normalizeSeniority 把级别表述归一化为固定枚举，无法识别返回空串。
// 关键字优先于年限：回答同时包含两者时以显式级别词为准。
func normalizeSeniority(answer string) string {
	lower := strings.ToLower(answer)

	// lead类关键字要在senior之前检查，"senior staff engineer"应归为lead
	switch {
	case containsAny(lower, "intern", "实习"):
		return "intern"
	case containsAny(lower, "principal", "staff", "lead", "architect", "专家", "架构"):
		return "lead"
	case containsAny(lower, "senior", "sr.", "sr ", "高级"):
		return "senior"
	case containsAny(lower, "junior", "jr.", "jr ", "entry", "graduate", "初级"):
		return "junior"
	case containsAny(lower, "mid", "intermediate", "中级"):
		return "mid"
	}

	if match := yearsPattern.FindStringSubmatch(lower); match != nil {
		years, err := strconv.Atoi(match[1])
		if err == nil {
			return seniorityFromYears(float64(years))
		}
	}
	return ""
}

// seniorityFromYears 按工作年限推算级别
func seniorityFromYears(years float64) string {
	switch {
	case years < 3:
		return "junior"
	case years < 6:
		return "mid"
	case years < 9:
		return "senior"
	default:
		return "lead"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
