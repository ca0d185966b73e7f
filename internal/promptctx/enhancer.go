package promptctx

// EnhanceResult bundles the three contributions PromptEnhancer assembles
// per turn (spec §4.7 / S6).
type EnhanceResult struct {
	KeywordInstructions string
	AgentsContent       string
	RulesContent        string
}

// Enhancer composes keyword detection, AGENTS.md discovery, and rule
// discovery. The AgentsMDCache is long-lived (it owns the 60s TTL); a
// fresh Enhancer per process is sufficient since it holds no per-turn
// state itself — unlike Deduplicator, which is turn-scoped.
type Enhancer struct {
	agentsCache *AgentsMDCache
}

// NewEnhancer builds an Enhancer with its own AGENTS.md cache.
func NewEnhancer() *Enhancer {
	return &Enhancer{agentsCache: NewAgentsMDCache()}
}

// Enhance runs keyword detection against message and discovers
// AGENTS.md/rules content rooted at workspacePath, filtered by ctx.
func (e *Enhancer) Enhance(message, workspacePath string, ctx *MatchContext) EnhanceResult {
	return EnhanceResult{
		KeywordInstructions: DetectKeywords(message),
		AgentsContent:       e.agentsCache.Discover(workspacePath),
		RulesContent:        DiscoverRules(workspacePath, ctx),
	}
}
