package gatewaytools

import (
	"context"
	"fmt"

	"github.com/mama-run/mama/internal/identity"
	"github.com/mama-run/mama/internal/memoryapi"
	"github.com/mama-run/mama/internal/merr"
)

// Filesystem backs Read/Write/Grep/Glob.
type Filesystem interface {
	Read(ctx context.Context, path string) (string, error)
	Write(ctx context.Context, path, content string) error
	Grep(ctx context.Context, pattern, path string) ([]string, error)
	Glob(ctx context.Context, pattern string) ([]string, error)
}

// ShellRunner backs Bash.
type ShellRunner interface {
	Run(ctx context.Context, command string) (stdout string, err error)
}

// MessageSender backs discord_send/slack_send/telegram_send.
type MessageSender interface {
	Send(ctx context.Context, channel, text string) error
}

// OSManager backs the os_* tool family.
type OSManager interface {
	AddBot(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
	SetPermissions(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
	GetConfig(ctx context.Context, maskSensitive bool) (map[string]interface{}, error)
	ListBots(ctx context.Context, maskSensitive bool) (map[string]interface{}, error)
	RestartBot(ctx context.Context, args map[string]interface{}) error
	StopBot(ctx context.Context, args map[string]interface{}) error
}

// PRReviewer backs pr_review_threads.
type PRReviewer interface {
	ReviewThreads(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// MCPRegistry resolves dynamically registered MCP tools by name.
type MCPRegistry interface {
	IsRegistered(name string) bool
	Call(ctx context.Context, name string, args map[string]interface{}) (Result, error)
}

// Executor is the GatewayToolExecutor: it validates a tool name, enforces
// role/path permissions, and dispatches to the backing implementation.
type Executor struct {
	roles   *identity.Manager
	memory  memoryapi.Client
	fs      Filesystem
	shell   ShellRunner
	senders map[string]MessageSender
	browser *BrowserController
	os      OSManager
	pr      PRReviewer
	mcp     MCPRegistry
}

// Deps bundles the Executor's backing implementations. Any field may be
// nil; the corresponding tools then fail with a structured error instead
// of panicking, which matters for `mama run` in minimal/offline mode.
type Deps struct {
	Roles   *identity.Manager
	Memory  memoryapi.Client
	FS      Filesystem
	Shell   ShellRunner
	Senders map[string]MessageSender
	Browser *BrowserController
	OS      OSManager
	PR      PRReviewer
	MCP     MCPRegistry
}

// New builds an Executor from Deps.
func New(d Deps) *Executor {
	return &Executor{
		roles: d.Roles, memory: d.Memory, fs: d.FS, shell: d.Shell,
		senders: d.Senders, browser: d.Browser, os: d.OS, pr: d.PR, mcp: d.MCP,
	}
}

// Execute validates role/path permissions and dispatches name. Unknown
// tools panic via a typed error per spec §4.8/§7 ("Unknown tool ... throw
// typed errors to the caller"); every other failure returns a structured
// Result with success:false.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}, actx identity.AgentContext) Result {
	if !IsValidTool(name) && !(e.mcp != nil && e.mcp.IsRegistered(name)) {
		panic(merr.New(merr.UnknownTool, fmt.Sprintf("unknown tool %q", name)))
	}

	if e.roles != nil && !e.roles.IsToolAllowed(actx.Role, name) {
		return failError(fmt.Sprintf("Tool not permitted for role %s", actx.RoleName))
	}

	if isPathTool(name) {
		if path, ok := stringArg(args, "path"); ok && e.roles != nil && !e.roles.IsPathAllowed(actx.Role, path) {
			return failError(fmt.Sprintf("Tool not permitted for role %s", actx.RoleName))
		}
	}

	switch name {
	case ToolMemorySearch:
		return e.memorySearch(ctx, args)
	case ToolMemorySave:
		return e.memorySave(ctx, args)
	case ToolMemoryUpdate:
		return e.memoryUpdate(ctx, args)
	case ToolMemoryCheckpoint:
		return e.memoryLoadCheckpoint(ctx)

	case ToolRead:
		return e.fsRead(ctx, args)
	case ToolWrite:
		return e.fsWrite(ctx, args)
	case ToolGrep:
		return e.fsGrep(ctx, args)
	case ToolGlob:
		return e.fsGlob(ctx, args)

	case ToolBash:
		return e.bashRun(ctx, args)

	case ToolDiscordSend:
		return e.sendMessage(ctx, "discord", args)
	case ToolSlackSend:
		return e.sendMessage(ctx, "slack", args)
	case ToolTelegramSend:
		return e.sendMessage(ctx, "telegram", args)

	case ToolBrowserNavigate, ToolBrowserScreenshot, ToolBrowserClick, ToolBrowserType,
		ToolBrowserGetText, ToolBrowserScroll, ToolBrowserWaitFor, ToolBrowserEvaluate,
		ToolBrowserPDF, ToolBrowserClose:
		return e.browserDispatch(ctx, name, args)

	case ToolPRReviewThreads:
		return e.prReviewThreads(ctx, args)

	case ToolOSAddBot, ToolOSSetPermissions, ToolOSGetConfig, ToolOSListBots, ToolOSRestartBot, ToolOSStopBot:
		return e.osDispatch(ctx, name, args, actx)

	default:
		if e.mcp != nil && e.mcp.IsRegistered(name) {
			res, err := e.mcp.Call(ctx, name, args)
			if err != nil {
				return failError(err.Error())
			}
			return res
		}
		panic(merr.New(merr.UnknownTool, fmt.Sprintf("unknown tool %q", name)))
	}
}

func isPathTool(name string) bool {
	return name == ToolRead || name == ToolWrite || name == ToolGrep || name == ToolGlob
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intArg(args map[string]interface{}, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (e *Executor) fsRead(ctx context.Context, args map[string]interface{}) Result {
	if e.fs == nil {
		return failError("filesystem tool unavailable")
	}
	path, ok := stringArg(args, "path")
	if !ok {
		return failMessage("requires path")
	}
	content, err := e.fs.Read(ctx, path)
	if err != nil {
		return failError(err.Error())
	}
	return ok2(map[string]interface{}{"content": content})
}

func (e *Executor) fsWrite(ctx context.Context, args map[string]interface{}) Result {
	if e.fs == nil {
		return failError("filesystem tool unavailable")
	}
	path, ok := stringArg(args, "path")
	if !ok {
		return failMessage("requires path")
	}
	content, _ := stringArg(args, "content")
	if err := e.fs.Write(ctx, path, content); err != nil {
		return failError(err.Error())
	}
	return ok2(nil)
}

func (e *Executor) fsGrep(ctx context.Context, args map[string]interface{}) Result {
	if e.fs == nil {
		return failError("filesystem tool unavailable")
	}
	pattern, ok := stringArg(args, "pattern")
	if !ok {
		return failMessage("requires pattern")
	}
	path, _ := stringArg(args, "path")
	matches, err := e.fs.Grep(ctx, pattern, path)
	if err != nil {
		return failError(err.Error())
	}
	return ok2(map[string]interface{}{"matches": matches})
}

func (e *Executor) fsGlob(ctx context.Context, args map[string]interface{}) Result {
	if e.fs == nil {
		return failError("filesystem tool unavailable")
	}
	pattern, ok := stringArg(args, "pattern")
	if !ok {
		return failMessage("requires pattern")
	}
	matches, err := e.fs.Glob(ctx, pattern)
	if err != nil {
		return failError(err.Error())
	}
	return ok2(map[string]interface{}{"matches": matches})
}

func (e *Executor) bashRun(ctx context.Context, args map[string]interface{}) Result {
	if e.shell == nil {
		return failError("shell tool unavailable")
	}
	command, ok := stringArg(args, "command")
	if !ok {
		return failMessage("requires command")
	}
	if reason, denied := isDangerousCommand(command); denied {
		return failError(fmt.Sprintf("command denied: %s", reason))
	}
	out, err := e.shell.Run(ctx, command)
	if err != nil {
		return failError(err.Error())
	}
	return ok2(map[string]interface{}{"output": out})
}

func (e *Executor) sendMessage(ctx context.Context, platform string, args map[string]interface{}) Result {
	sender, ok := e.senders[platform]
	if !ok || sender == nil {
		return failError(fmt.Sprintf("%s sender unavailable", platform))
	}
	channel, _ := stringArg(args, "channel")
	text, ok := stringArg(args, "text")
	if !ok {
		return failMessage("requires text")
	}
	if err := sender.Send(ctx, channel, text); err != nil {
		return failError(err.Error())
	}
	return ok2(nil)
}

func (e *Executor) prReviewThreads(ctx context.Context, args map[string]interface{}) Result {
	if e.pr == nil {
		return failError("pr review tool unavailable")
	}
	data, err := e.pr.ReviewThreads(ctx, args)
	if err != nil {
		return failError(err.Error())
	}
	return ok2(data)
}

func ok2(data map[string]interface{}) Result { return ok(data) }
