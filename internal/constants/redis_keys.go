package constants

// Redis Key 前缀和格式常量
// 统一命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// RequirementModulePrefix 需求（岗位）模块
	RequirementModulePrefix = "requirement"
	// AnalysisModulePrefix 分析任务模块
	AnalysisModulePrefix = "analysis"

	// EntityCompiled 已编译需求实体
	EntityCompiled = "compiled"
	// EntitySnapshot 轮询快照实体
	EntitySnapshot = "snapshot"
	// EntityOpenPair 未终结任务对标记实体
	EntityOpenPair = "open_pair"

	// KeyRequirementCompiled 已编译需求缓存 (STRING, JSON)
	// 格式: app:requirement:compiled:{requirementID}
	KeyRequirementCompiled = AppPrefix + ":" + RequirementModulePrefix + ":" + EntityCompiled + ":%s"

	// KeyAnalysisSnapshot 某个需求的分析结果轮询快照 (STRING, JSON)
	// 格式: app:analysis:snapshot:{requirementID}
	KeyAnalysisSnapshot = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntitySnapshot + ":%s"

	// KeyAnalysisOpenPair 未终结任务对的快速去重标记 (STRING, 值为jobID)
	// 仅作快速路径，权威约束是MySQL的唯一索引
	// 格式: app:analysis:open_pair:{profileID}:{requirementID}
	KeyAnalysisOpenPair = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityOpenPair + ":%s:%s"
)
