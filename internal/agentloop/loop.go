// Package agentloop implements AgentLoop (spec §4.6): the single-turn
// orchestration contract that acquires a session, builds the context
// preamble, drives a subprocess backend through its tool-use turns via
// GatewayToolExecutor, and fires PostToolHandler/PreCompactHandler at the
// right points — grounded on goclaw's internal/agent/loop.go turn loop
// (tool-call batching, usage accumulation, streaming hook).
package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mama-run/mama/internal/agentproc"
	"github.com/mama-run/mama/internal/config"
	"github.com/mama-run/mama/internal/gatewaytools"
	"github.com/mama-run/mama/internal/handlers"
	"github.com/mama-run/mama/internal/identity"
	"github.com/mama-run/mama/internal/lane"
	"github.com/mama-run/mama/internal/memlog"
	"github.com/mama-run/mama/internal/promptctx"
	"github.com/mama-run/mama/internal/sessionpool"
	"github.com/mama-run/mama/internal/streaming"
	"github.com/mama-run/mama/pkg/protocol"
)

// RunRequest is one turn invocation, whether from a gateway message, a
// cron job, or a heartbeat probe.
type RunRequest struct {
	ChannelKey    string
	Source        string
	Message       string
	Blocks        []protocol.ContentBlock
	WorkspacePath string
	Keywords      []string
	AgentID       string
	Tier          string

	// Sink, when non-nil, receives throttled partial output via
	// StreamingCallbackManager; nil means "no live streaming" (e.g. a
	// one-shot `mama run` invocation that only wants the final text).
	Sink        streaming.MessageSink
	MinInterval int64 // milliseconds; 0 = streaming.DefaultMinInterval
}

// RunResult is AgentLoop.Run's return value (spec §4.6).
type RunResult struct {
	Response   string
	Turns      int
	History    []protocol.ContentBlock
	TotalUsage agentproc.Usage
	StopReason protocol.StopReason
}

// Loop is the AgentLoop component.
type Loop struct {
	sessions  *sessionpool.Pool
	lanes     *lane.Manager
	backend   agentproc.Backend
	tools     *gatewaytools.Executor
	postTool  *handlers.PostToolHandler
	preComp   *handlers.PreCompactHandler
	enhancer  *promptctx.Enhancer
	roles     *identity.Manager
	subAgents map[string]config.SubAgentConfig
	memlog    *memlog.Logger
	maxTurns  int
	logger    *slog.Logger
}

// New builds a Loop. maxTurns <= 0 falls back to 25, matching
// config.AgentConfig's default. memlog may be nil, in which case turns
// are never recorded to the daily conversation log. subAgents may be
// nil; a RunRequest whose AgentID names an entry in it gets its
// resolved role narrowed by that entry's ToolPermissions.
func New(sessions *sessionpool.Pool, lanes *lane.Manager, backend agentproc.Backend, tools *gatewaytools.Executor,
	postTool *handlers.PostToolHandler, preComp *handlers.PreCompactHandler, enhancer *promptctx.Enhancer,
	roles *identity.Manager, subAgents map[string]config.SubAgentConfig, maxTurns int, logger *slog.Logger, ml *memlog.Logger) *Loop {
	if maxTurns <= 0 {
		maxTurns = 25
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		sessions: sessions, lanes: lanes, backend: backend, tools: tools,
		postTool: postTool, preComp: preComp, enhancer: enhancer, roles: roles,
		subAgents: subAgents, maxTurns: maxTurns, logger: logger, memlog: ml,
	}
}

// Run executes one full turn (spec §4.6 steps 1-6), serialized through
// LaneManager against every other call sharing req.ChannelKey.
func (l *Loop) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	v, err := l.lanes.EnqueueWithSession(ctx, req.ChannelKey, func(ctx context.Context) (interface{}, error) {
		return l.runLocked(ctx, req)
	})
	if err != nil {
		return RunResult{}, err
	}
	return v.(RunResult), nil
}

func (l *Loop) runLocked(ctx context.Context, req RunRequest) (RunResult, error) {
	getRes := l.sessions.GetSession(ctx, req.ChannelKey)

	role := l.roles.RoleForSource(req.Source)
	var persona string
	if req.AgentID != "" {
		if sub, ok := l.subAgents[req.AgentID]; ok {
			role = l.roles.EffectiveRole(role, sub.ToolPermissions)
			persona = loadPersona(sub.PersonaFile, l.logger)
		}
	}
	actx := identity.NewAgentContext(req.Source, role.Name, role,
		identity.SessionMeta{SessionID: getRes.SessionID, Channel: req.ChannelKey},
		l.roles.Capabilities(role), l.roles.Limitations(role))
	actx.ChannelKey = req.ChannelKey

	dedup := promptctx.NewDeduplicator()
	enhance := l.enhancer.Enhance(req.Message, req.WorkspacePath, &promptctx.MatchContext{
		AgentID: req.AgentID, Tier: req.Tier, Channel: req.Source, Keywords: req.Keywords,
	})
	for _, part := range [][2]string{
		{req.WorkspacePath + "/AGENTS.md", enhance.AgentsContent},
		{req.WorkspacePath + "/.claude/rules", enhance.RulesContent},
	} {
		if strings.TrimSpace(part[1]) != "" {
			dedup.Add(part[0], part[1], 0)
		}
	}

	systemPrompt := buildSystemPrompt(identity.BuildContextPrompt(actx), persona, enhance, dedup)

	l.backend.SetSystemPrompt(systemPrompt)
	l.backend.SetSessionID(getRes.SessionID)

	var sink *streaming.Manager
	if req.Sink != nil {
		interval := streaming.DefaultMinInterval
		if req.MinInterval > 0 {
			interval = time.Duration(req.MinInterval) * time.Millisecond
		}
		sink = streaming.New(req.Sink, interval, l.logger)
		if err := sink.Start(ctx); err != nil {
			l.logger.Warn("agentloop: streaming start failed", "error", err)
			sink = nil
		}
	}

	runCtx, runSpan := startRunSpan(ctx, req.ChannelKey)
	defer runSpan.End()

	input := agentproc.PromptInput{Text: req.Message, Blocks: req.Blocks}
	result := RunResult{}
	var historyLines []string

	for turn := 1; turn <= l.maxTurns; turn++ {
		turnCtx, turnSpan := startTurnSpan(runCtx, "agentproc", turn)
		start := time.Now()
		promptResult, err := l.backend.Prompt(turnCtx, input)
		endSpan(turnSpan, start, err)
		if err != nil {
			if sink != nil {
				_ = sink.OnError(ctx, err)
			}
			return RunResult{}, err
		}

		result.Turns = turn
		result.TotalUsage.InputTokens += promptResult.Usage.InputTokens
		result.TotalUsage.OutputTokens += promptResult.Usage.OutputTokens
		tokenUpdate := l.sessions.UpdateTokens(ctx, req.ChannelKey, promptResult.Usage.InputTokens, promptResult.Usage.OutputTokens)

		if promptResult.Response != "" {
			historyLines = append(historyLines, strings.Split(promptResult.Response, "\n")...)
			result.History = append(result.History, protocol.ContentBlock{Kind: protocol.BlockText, Text: promptResult.Response})
			if sink != nil {
				_ = sink.OnDelta(ctx, promptResult.Response)
			}
		}

		if tokenUpdate.NearThreshold && l.preComp != nil {
			pre := l.preComp.Process(ctx, historyLines)
			if pre.WarningMessage != "" {
				l.logger.Warn("agentloop: unsaved decisions before compaction", "channel_key", req.ChannelKey)
			}
			l.sessions.Reset(ctx, req.ChannelKey)
			l.backend.ResetSession()
			l.backend.SetSystemPrompt(systemPrompt + "\n\n" + pre.CompactionPrompt)
		}

		switch promptResult.StopReason {
		case protocol.StopToolUse:
			blocks := l.dispatchTools(runCtx, promptResult.ToolCalls, actx)
			result.History = append(result.History, blocks...)
			input = agentproc.PromptInput{Blocks: blocks}
			continue
		case protocol.StopEndTurn, "":
			result.Response = promptResult.Response
			result.StopReason = protocol.StopEndTurn
			if sink != nil {
				_ = sink.Flush(ctx)
			}
			l.logConversation(req, result)
			return result, nil
		default:
			result.Response = promptResult.Response
			result.StopReason = promptResult.StopReason
			if sink != nil {
				_ = sink.Flush(ctx)
			}
			l.logConversation(req, result)
			return result, nil
		}
	}

	result.StopReason = protocol.StopMaxTurns
	if sink != nil {
		_ = sink.Flush(ctx)
	}
	l.logConversation(req, result)
	return result, nil
}

// logConversation records a completed turn's summary to the daily log.
// A nil Loop.memlog (New accepts nil) makes this a no-op.
func (l *Loop) logConversation(req RunRequest, result RunResult) {
	if l.memlog == nil {
		return
	}
	summary := result.Response
	if summary == "" {
		summary = fmt.Sprintf("(%s, %d turn(s))", result.StopReason, result.Turns)
	}
	l.memlog.LogConversation(req.ChannelKey, req.Source, summary)
}

// dispatchTools resolves every pending tool call via GatewayToolExecutor,
// recovering from the UNKNOWN_TOOL panic into a tool_result error block so
// one bad tool name never aborts the turn loop, and fires
// PostToolHandler.ProcessInBackground for edit-class tools (spec §4.6
// step 6: "fire-and-forget ... MUST NOT throw into the turn loop").
func (l *Loop) dispatchTools(ctx context.Context, calls []agentproc.ToolCall, actx identity.AgentContext) []protocol.ContentBlock {
	blocks := make([]protocol.ContentBlock, 0, len(calls))
	for _, call := range calls {
		blocks = append(blocks, l.dispatchOne(ctx, call, actx))
	}
	return blocks
}

func (l *Loop) dispatchOne(ctx context.Context, call agentproc.ToolCall, actx identity.AgentContext) (block protocol.ContentBlock) {
	toolCtx, span := startToolSpan(ctx, call.Name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			endSpan(span, start, fmt.Errorf("%v", r))
			block = protocol.ContentBlock{
				Kind: protocol.BlockToolResult, ToolUseID: call.ID,
				Content: fmt.Sprintf("unknown tool: %v", r), IsError: true,
			}
			return
		}
		endSpan(span, start, nil)
	}()

	res := l.tools.Execute(toolCtx, call.Name, call.Arguments, actx)

	if l.postTool != nil && handlers.IsEditClassTool(call.Name) {
		path, _ := call.Arguments["path"].(string)
		content, _ := call.Arguments["content"].(string)
		l.postTool.ProcessInBackground(call.Name, path, content)
	}

	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = res.Message
		}
		return protocol.ContentBlock{Kind: protocol.BlockToolResult, ToolUseID: call.ID, Content: msg, IsError: true}
	}
	return protocol.ContentBlock{Kind: protocol.BlockToolResult, ToolUseID: call.ID, Content: resultText(res)}
}

func resultText(res gatewaytools.Result) string {
	if res.Message != "" {
		return res.Message
	}
	if len(res.Data) == 0 {
		return "ok"
	}
	var parts []string
	for k, v := range res.Data {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ", ")
}

// loadPersona reads a sub-agent's persona file verbatim; a missing or
// unset path yields no persona text rather than an error, since a
// sub-agent entry with no persona_file is a normal config.
func loadPersona(path string, logger *slog.Logger) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if logger != nil {
			logger.Warn("agentloop: persona file unreadable", "path", path, "error", err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func buildSystemPrompt(contextPrompt, persona string, enhance promptctx.EnhanceResult, dedup *promptctx.Deduplicator) string {
	var b strings.Builder
	b.WriteString(contextPrompt)
	if persona != "" {
		b.WriteString("\n\n")
		b.WriteString(persona)
	}
	if enhance.KeywordInstructions != "" {
		b.WriteString("\n\n")
		b.WriteString(enhance.KeywordInstructions)
	}
	for _, entry := range dedup.GetEntries() {
		b.WriteString("\n\n")
		b.WriteString(entry.Content)
	}
	return b.String()
}
