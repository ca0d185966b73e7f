package gatewaytools

// Tool names are the authoritative catalog from spec §4.8.
const (
	ToolMemorySearch     = "mama_search"
	ToolMemorySave       = "mama_save"
	ToolMemoryUpdate     = "mama_update"
	ToolMemoryCheckpoint = "mama_load_checkpoint"

	ToolRead  = "Read"
	ToolWrite = "Write"
	ToolGrep  = "Grep"
	ToolGlob  = "Glob"

	ToolBash = "Bash"

	ToolDiscordSend  = "discord_send"
	ToolSlackSend    = "slack_send"
	ToolTelegramSend = "telegram_send"

	ToolBrowserNavigate   = "browser_navigate"
	ToolBrowserScreenshot = "browser_screenshot"
	ToolBrowserClick      = "browser_click"
	ToolBrowserType       = "browser_type"
	ToolBrowserGetText    = "browser_get_text"
	ToolBrowserScroll     = "browser_scroll"
	ToolBrowserWaitFor    = "browser_wait_for"
	ToolBrowserEvaluate   = "browser_evaluate"
	ToolBrowserPDF        = "browser_pdf"
	ToolBrowserClose      = "browser_close"

	ToolPRReviewThreads = "pr_review_threads"

	ToolOSAddBot         = "os_add_bot"
	ToolOSSetPermissions = "os_set_permissions"
	ToolOSGetConfig      = "os_get_config"
	ToolOSListBots       = "os_list_bots"
	ToolOSRestartBot     = "os_restart_bot"
	ToolOSStopBot        = "os_stop_bot"
)

var staticTools = map[string]bool{
	ToolMemorySearch: true, ToolMemorySave: true, ToolMemoryUpdate: true, ToolMemoryCheckpoint: true,
	ToolRead: true, ToolWrite: true, ToolGrep: true, ToolGlob: true,
	ToolBash: true,
	ToolDiscordSend: true, ToolSlackSend: true, ToolTelegramSend: true,
	ToolBrowserNavigate: true, ToolBrowserScreenshot: true, ToolBrowserClick: true, ToolBrowserType: true,
	ToolBrowserGetText: true, ToolBrowserScroll: true, ToolBrowserWaitFor: true, ToolBrowserEvaluate: true,
	ToolBrowserPDF: true, ToolBrowserClose: true,
	ToolPRReviewThreads: true,
	ToolOSAddBot: true, ToolOSSetPermissions: true, ToolOSGetConfig: true, ToolOSListBots: true,
	ToolOSRestartBot: true, ToolOSStopBot: true,
}

var osMutators = map[string]bool{
	ToolOSAddBot: true, ToolOSSetPermissions: true, ToolOSRestartBot: true, ToolOSStopBot: true,
}

// GetValidTools returns the enumerated static tool set (MCP tools
// registered at runtime are additionally valid once registered).
func GetValidTools() []string {
	out := make([]string, 0, len(staticTools))
	for t := range staticTools {
		out = append(out, t)
	}
	return out
}

// IsValidTool reports static catalog membership only; the Executor checks
// its dynamic MCP registry separately.
func IsValidTool(name string) bool {
	return staticTools[name]
}
