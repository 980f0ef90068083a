package matcher

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/constants"
	"recruit-agent-go/internal/types"
)

// LocalEvaluator 基于加权规则打分的本地匹配后端，不依赖外部服务，
// 同一输入必然产出同一结果。
type LocalEvaluator struct {
	skillsWeight        float64
	seniorityWeight     float64
	qualificationWeight float64
	strongThreshold     float64
	weakThreshold       float64
	confidenceFloor     float64
}

// 确保LocalEvaluator实现了Evaluator接口
var _ Evaluator = (*LocalEvaluator)(nil)

// NewLocalEvaluator 创建本地评估器
func NewLocalEvaluator(cfg *config.MatcherConfig) (*LocalEvaluator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("Matcher配置不能为空")
	}
	sum := cfg.SkillsWeight + cfg.SeniorityWeight + cfg.QualificationWeight
	if sum < 0.999 || sum > 1.001 {
		return nil, fmt.Errorf("匹配权重之和必须为1.0，当前为 %.3f", sum)
	}

	return &LocalEvaluator{
		skillsWeight:        cfg.SkillsWeight,
		seniorityWeight:     cfg.SeniorityWeight,
		qualificationWeight: cfg.QualificationWeight,
		strongThreshold:     cfg.StrongThreshold,
		weakThreshold:       cfg.WeakThreshold,
		confidenceFloor:     cfg.ConfidenceFloor,
	}, nil
}

// subScore 单个侧面的打分明细
type subScore struct {
	facet   string
	score   float64
	matched []string // 命中的条目
	missing []string // 缺失的条目
	note    string   // 补充说明，用于生成claim文本
}

// Evaluate 执行加权规则匹配
func (e *LocalEvaluator) Evaluate(_ context.Context, input *MatchInput) (*types.AnalysisResult, error) {
	if input == nil {
		return nil, fmt.Errorf("匹配输入不能为空")
	}
	if input.ParseConfidence < e.confidenceFloor || input.Profile.IsEmpty() {
		return nil, NewIncompleteProfileError(input.ProfileID, input.RequirementID, input.ParseConfidence)
	}

	skills := e.scoreSkills(input)
	seniority := e.scoreSeniority(input)
	qualifications := e.scoreQualifications(input)
	subScores := []subScore{skills, seniority, qualifications}

	weighted := skills.score*e.skillsWeight +
		seniority.score*e.seniorityWeight +
		qualifications.score*e.qualificationWeight

	// 加分项：命中的nice-to-have小幅加分，不改变主导权重
	weighted += niceToHaveBonus(input)

	result := &types.AnalysisResult{
		MatchScore: clampScore(weighted),
		Strengths:  e.buildStrengths(subScores),
		Weaknesses: e.buildWeaknesses(subScores),
	}
	result.Gaps = e.buildGaps(subScores)
	result.OneSolution = buildOneSolution(result.Gaps)

	if err := validateResult(input, result); err != nil {
		return nil, err
	}
	return result, nil
}

// scoreSkills 技能子分数：需求技能的命中比例
func (e *LocalEvaluator) scoreSkills(input *MatchInput) subScore {
	s := subScore{facet: constants.FacetSkills}
	required := input.Requirement.Skills
	if len(required) == 0 {
		s.score = 100
		s.note = "需求未列出具体技能要求"
		return s
	}

	for _, skill := range required {
		if anyTermMatch(input.Profile.Skills, skill) {
			s.matched = append(s.matched, skill)
		} else {
			s.missing = append(s.missing, skill)
		}
	}
	s.score = 100 * float64(len(s.matched)) / float64(len(required))
	return s
}

// seniorityRank 级别排序，用于比较画像与需求的级别差距
var seniorityRank = map[string]int{
	"intern": 0,
	"junior": 1,
	"mid":    2,
	"senior": 3,
	"lead":   4,
}

// scoreSeniority 级别子分数：画像级别与需求级别的相对差距。
// 达到或略超要求得满分，过度超出轻微降分，不足按差距幅度降分。
// 与技能、资质子分数一致：需求侧未指定视为已满足。
func (e *LocalEvaluator) scoreSeniority(input *MatchInput) subScore {
	s := subScore{facet: constants.FacetSeniority}

	required := strings.TrimSpace(input.Requirement.Seniority)
	if required == "" {
		s.score = 100
		s.note = "需求未指定级别要求"
		return s
	}

	requiredRank, requiredKnown := normalizeRank(required)
	if !requiredKnown {
		// 有要求但无法识别：不确定性降分而不是视为满足
		s.score = 60
		s.note = "需求级别无法识别"
		return s
	}

	profileRank, profileKnown := profileSeniorityRank(input.Profile)
	if !profileKnown {
		s.score = 30
		s.missing = []string{input.Requirement.Seniority}
		s.note = "画像缺少级别与年限信息"
		return s
	}

	diff := profileRank - requiredRank
	switch {
	case diff == 0:
		s.score = 100
		s.matched = []string{input.Requirement.Seniority}
	case diff == 1:
		s.score = 90
		s.matched = []string{input.Requirement.Seniority}
		s.note = "略高于需求级别"
	case diff >= 2:
		s.score = 75
		s.matched = []string{input.Requirement.Seniority}
		s.note = "明显高于需求级别，存在过度资历风险"
	case diff == -1:
		s.score = 50
		s.missing = []string{input.Requirement.Seniority}
		s.note = "低于需求级别一档"
	case diff == -2:
		s.score = 25
		s.missing = []string{input.Requirement.Seniority}
		s.note = "低于需求级别两档"
	default:
		s.score = 10
		s.missing = []string{input.Requirement.Seniority}
		s.note = "远低于需求级别"
	}
	return s
}

// scoreQualifications 资质子分数：硬性条件在画像的学历、证书、技能中的命中比例
func (e *LocalEvaluator) scoreQualifications(input *MatchInput) subScore {
	s := subScore{facet: constants.FacetQualification}
	required := input.Requirement.MustHaves
	if len(required) == 0 {
		s.score = 100
		s.note = "需求未列出硬性资质条件"
		return s
	}

	evidence := make([]string, 0,
		len(input.Profile.Education)+len(input.Profile.Certifications)+len(input.Profile.Skills))
	evidence = append(evidence, input.Profile.Education...)
	evidence = append(evidence, input.Profile.Certifications...)
	evidence = append(evidence, input.Profile.Skills...)

	for _, requirement := range required {
		if anyTermMatch(evidence, requirement) {
			s.matched = append(s.matched, requirement)
		} else {
			s.missing = append(s.missing, requirement)
		}
	}
	s.score = 100 * float64(len(s.matched)) / float64(len(required))
	return s
}

// niceToHaveBonus 命中的加分项每项+2分，上限+6分
func niceToHaveBonus(input *MatchInput) float64 {
	evidence := make([]string, 0, len(input.Profile.Skills)+len(input.Profile.Certifications))
	evidence = append(evidence, input.Profile.Skills...)
	evidence = append(evidence, input.Profile.Certifications...)

	bonus := 0.0
	for _, nice := range input.Requirement.NiceToHaves {
		if anyTermMatch(evidence, nice) {
			bonus += 2
		}
	}
	return math.Min(bonus, 6)
}

// buildStrengths 子分数达到优势阈值的侧面生成优势条目，保证至少一条
func (e *LocalEvaluator) buildStrengths(subScores []subScore) []types.FacetClaim {
	var strengths []types.FacetClaim
	for _, s := range subScores {
		if s.score >= e.strongThreshold {
			strengths = append(strengths, types.FacetClaim{
				Facet: s.facet,
				Claim: strengthClaim(s),
			})
		}
	}
	if len(strengths) == 0 {
		// 没有达标侧面时取最高子分数，保证结果非空且仍可追溯
		best := subScores[0]
		for _, s := range subScores[1:] {
			if s.score > best.score {
				best = s
			}
		}
		strengths = append(strengths, types.FacetClaim{
			Facet: best.facet,
			Claim: fmt.Sprintf("相对最接近需求的侧面，子分数 %.0f", best.score),
		})
	}
	return strengths
}

// buildWeaknesses 子分数低于短板阈值的侧面生成短板条目，保证至少一条
func (e *LocalEvaluator) buildWeaknesses(subScores []subScore) []types.FacetClaim {
	var weaknesses []types.FacetClaim
	for _, s := range subScores {
		if s.score < e.weakThreshold {
			weaknesses = append(weaknesses, types.FacetClaim{
				Facet: s.facet,
				Claim: weaknessClaim(s),
			})
		}
	}
	if len(weaknesses) == 0 {
		// 所有侧面都达标时取最低子分数作为相对短板
		worst := subScores[0]
		for _, s := range subScores[1:] {
			if s.score < worst.score {
				worst = s
			}
		}
		weaknesses = append(weaknesses, types.FacetClaim{
			Facet: worst.facet,
			Claim: fmt.Sprintf("相对最弱的侧面，子分数 %.0f，未构成明显短板", worst.score),
		})
	}
	return weaknesses
}

// buildGaps 低于短板阈值的侧面生成差距条目并标注严重程度，保证至少一条
func (e *LocalEvaluator) buildGaps(subScores []subScore) []types.GapItem {
	var gaps []types.GapItem
	for _, s := range subScores {
		if s.score >= e.weakThreshold {
			continue
		}
		severity := constants.SeverityMedium
		if s.score < e.weakThreshold/2 {
			severity = constants.SeverityHigh
		}
		gaps = append(gaps, types.GapItem{
			Description: gapDescription(s),
			Type:        s.facet,
			Severity:    severity,
		})
	}
	if len(gaps) == 0 {
		gaps = append(gaps, types.GapItem{
			Description: "相对既定需求没有发现明显差距",
			Type:        constants.FacetOverall,
			Severity:    constants.SeverityLow,
		})
	}

	// 稳定排序：先按严重程度降序，再按固定的侧面优先级
	sort.SliceStable(gaps, func(i, j int) bool {
		if severityWeight(gaps[i].Severity) != severityWeight(gaps[j].Severity) {
			return severityWeight(gaps[i].Severity) > severityWeight(gaps[j].Severity)
		}
		return facetPriority(gaps[i].Type) < facetPriority(gaps[j].Type)
	})
	return gaps
}

// buildOneSolution 取排序后最严重的差距生成一条可执行建议。
// 并列时差距列表已按侧面优先级（技能 > 级别 > 资质）排好序。
func buildOneSolution(gaps []types.GapItem) string {
	top := gaps[0]
	switch top.Type {
	case constants.FacetSkills:
		return fmt.Sprintf("优先补齐技能差距: %s", top.Description)
	case constants.FacetSeniority:
		return fmt.Sprintf("积累更高阶的项目职责以缩小级别差距: %s", top.Description)
	case constants.FacetQualification:
		return fmt.Sprintf("补充缺失的硬性资质: %s", top.Description)
	default:
		return "画像已基本满足既定需求，建议围绕加分项继续提升竞争力"
	}
}

// ---- claim文本生成 ----

func strengthClaim(s subScore) string {
	if len(s.matched) > 0 {
		return fmt.Sprintf("命中需求条目: %s", strings.Join(s.matched, ", "))
	}
	if s.note != "" {
		return s.note
	}
	return fmt.Sprintf("子分数 %.0f，满足需求", s.score)
}

func weaknessClaim(s subScore) string {
	if len(s.missing) > 0 {
		return fmt.Sprintf("缺失需求条目: %s", strings.Join(s.missing, ", "))
	}
	if s.note != "" {
		return s.note
	}
	return fmt.Sprintf("子分数 %.0f，低于短板阈值", s.score)
}

func gapDescription(s subScore) string {
	if len(s.missing) > 0 {
		return strings.Join(s.missing, ", ")
	}
	if s.note != "" {
		return s.note
	}
	return fmt.Sprintf("%s 侧面子分数 %.0f", s.facet, s.score)
}

// ---- 工具函数 ----

// severityWeight 严重程度的排序权重
func severityWeight(severity string) int {
	switch severity {
	case constants.SeverityHigh:
		return 3
	case constants.SeverityMedium:
		return 2
	case constants.SeverityLow:
		return 1
	}
	return 0
}

// facetPriority 并列严重程度时的侧面优先级：技能 > 级别 > 资质 > 其他
func facetPriority(facet string) int {
	switch facet {
	case constants.FacetSkills:
		return 0
	case constants.FacetSeniority:
		return 1
	case constants.FacetQualification:
		return 2
	}
	return 3
}

// anyTermMatch 判断候选列表中是否有条目与目标词互相包含（大小写不敏感）
func anyTermMatch(candidates []string, target string) bool {
	targetLower := strings.ToLower(strings.TrimSpace(target))
	if targetLower == "" {
		return false
	}
	for _, candidate := range candidates {
		candidateLower := strings.ToLower(strings.TrimSpace(candidate))
		if candidateLower == "" {
			continue
		}
		if strings.Contains(candidateLower, targetLower) || strings.Contains(targetLower, candidateLower) {
			return true
		}
	}
	return false
}

// normalizeRank 把级别字符串归一化为排序值
func normalizeRank(seniority string) (int, bool) {
	key := strings.ToLower(strings.TrimSpace(seniority))
	if rank, ok := seniorityRank[key]; ok {
		return rank, true
	}
	// 兼容 "mid-level" / "senior engineer" 这类带修饰的写法
	for name, rank := range seniorityRank {
		if strings.Contains(key, name) {
			return rank, true
		}
	}
	return 0, false
}

// profileSeniorityRank 画像级别：优先用显式级别字段，缺失时按年限推算
func profileSeniorityRank(profile types.ProfileFacets) (int, bool) {
	if rank, ok := normalizeRank(profile.Seniority); ok {
		return rank, true
	}
	if profile.YearsExperience > 0 {
		switch {
		case profile.YearsExperience < 3:
			return seniorityRank["junior"], true
		case profile.YearsExperience < 6:
			return seniorityRank["mid"], true
		case profile.YearsExperience < 9:
			return seniorityRank["senior"], true
		default:
			return seniorityRank["lead"], true
		}
	}
	return 0, false
}

// clampScore 四舍五入并收敛到[0,100]
func clampScore(score float64) int {
	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
