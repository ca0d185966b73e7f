package agentproc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mama-run/mama/internal/merr"
	"github.com/mama-run/mama/pkg/protocol"
)

// BuildClaudeArgs is the ClaudeCLIWrapper argument-construction rule
// (spec §4.4): emit --allowedTools/--disallowedTools only when the
// corresponding list is non-empty, as space-separated names after the
// flag, and never emit --add-dir (the process's working directory is the
// workDir passed to NewPersistentClaudeProcess).
func BuildClaudeArgs(allowedTools, disallowedTools []string, resumeSessionID string) []string {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
	}
	if len(allowedTools) > 0 {
		args = append(args, "--allowedTools")
		args = append(args, allowedTools...)
	}
	if len(disallowedTools) > 0 {
		args = append(args, "--disallowedTools")
		args = append(args, disallowedTools...)
	}
	if resumeSessionID != "" {
		args = append(args, "--resume", resumeSessionID)
	}
	return args
}

type claudeStreamEvent struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Usage     *claudeUsage    `json:"usage,omitempty"`
}

type claudeAssistantMessage struct {
	StopReason string               `json:"stop_reason,omitempty"`
	Content    []claudeContentBlock `json:"content,omitempty"`
}

// claudeToolUseBlock mirrors the subset of claudeContentBlock fields a
// tool_use block carries; decoded separately since Input is arbitrary JSON.
type claudeToolUseBlock struct {
	Type  string                 `json:"type"`
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeStdinMessage struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id,omitempty"`
	Message   claudeMessageInner  `json:"message"`
}

type claudeMessageInner struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type claudeContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *claudeMedia    `json:"source,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type claudeMedia struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// buildClaudeContent renders PromptInput into Claude's content-block wire
// shape. Image/document blocks carry their media_type+base64 payload
// through untouched; there is no text-only fallback for multimodal
// turns (spec §4.6).
func buildClaudeContent(input PromptInput, systemPrompt string, promptAlreadySet bool) interface{} {
	prefix := ""
	if !promptAlreadySet && systemPrompt != "" {
		prefix = systemPrompt + "\n\n"
	}

	if len(input.Blocks) == 0 {
		return prefix + input.Text
	}

	blocks := make([]claudeContentBlock, 0, len(input.Blocks)+1)
	if prefix != "" {
		blocks = append(blocks, claudeContentBlock{Type: "text", Text: prefix})
	}
	for _, b := range input.Blocks {
		switch b.Kind {
		case protocol.BlockText:
			blocks = append(blocks, claudeContentBlock{Type: "text", Text: b.Text})
		case protocol.BlockImage:
			blocks = append(blocks, claudeContentBlock{Type: "image", Source: &claudeMedia{
				Type: "base64", MediaType: b.MediaType, Data: b.Base64Data,
			}})
		case protocol.BlockDocument:
			blocks = append(blocks, claudeContentBlock{Type: "document", Source: &claudeMedia{
				Type: "base64", MediaType: b.MediaType, Data: b.Base64Data,
			}})
		case protocol.BlockToolResult:
			blocks = append(blocks, claudeContentBlock{
				Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError,
			})
		}
	}
	return blocks
}

// PersistentClaudeProcess keeps one `claude` CLI subprocess alive across
// turns, resuming the server-side session via --resume once a session id
// is known.
type PersistentClaudeProcess struct {
	command      string
	workDir      string
	allowedTools []string
	blockedTools []string

	mu            sync.Mutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	stdout        *bufio.Scanner
	systemPrompt  string
	promptSet     bool
	sessionID     string
	started       bool
}

// NewPersistentClaudeProcess returns an unstarted process; the first
// Prompt call launches it.
func NewPersistentClaudeProcess(workDir string, allowedTools, blockedTools []string) *PersistentClaudeProcess {
	return &PersistentClaudeProcess{
		command: "claude", workDir: workDir,
		allowedTools: allowedTools, blockedTools: blockedTools,
	}
}

func (p *PersistentClaudeProcess) SetSystemPrompt(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.systemPrompt = text
}

func (p *PersistentClaudeProcess) SetSessionID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = id
}

func (p *PersistentClaudeProcess) ResetSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.sessionID = ""
	p.promptSet = false
}

// Close terminates the underlying subprocess, if running.
func (p *PersistentClaudeProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *PersistentClaudeProcess) stopLocked() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
	p.stdin = nil
	p.stdout = nil
	p.started = false
}

func (p *PersistentClaudeProcess) ensureStartedLocked(ctx context.Context) error {
	if p.started {
		return nil
	}
	args := BuildClaudeArgs(p.allowedTools, p.blockedTools, p.sessionID)
	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Dir = p.workDir
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return merr.Wrap(merr.Transport, "open claude stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return merr.Wrap(merr.Transport, "open claude stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return merr.Wrap(merr.Transport, "start claude process", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = scanner
	p.started = true
	return nil
}

func (p *PersistentClaudeProcess) Prompt(ctx context.Context, input PromptInput) (PromptResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureStartedLocked(ctx); err != nil {
		return PromptResult{}, err
	}

	content := buildClaudeContent(input, p.systemPrompt, p.promptSet)
	if !p.promptSet && p.systemPrompt != "" {
		p.promptSet = true
	}
	msg := claudeStdinMessage{
		Type:      "user",
		SessionID: p.sessionID,
		Message:   claudeMessageInner{Role: "user", Content: content},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return PromptResult{}, merr.Wrap(merr.Validation, "marshal claude stdin message", err)
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		p.stopLocked()
		return PromptResult{}, merr.Wrap(merr.Transport, "write claude stdin", err)
	}

	var result PromptResult
	for p.stdout.Scan() {
		line := p.stdout.Bytes()
		var ev claudeStreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.SessionID != "" {
			p.sessionID = ev.SessionID
			result.SessionID = ev.SessionID
		}
		if ev.Usage != nil {
			result.Usage.InputTokens = ev.Usage.InputTokens
			result.Usage.OutputTokens = ev.Usage.OutputTokens
		}
		if ev.Type == "assistant" && len(ev.Message) > 0 {
			var msg claudeAssistantMessage
			if err := json.Unmarshal(ev.Message, &msg); err == nil && msg.StopReason == "tool_use" {
				calls, text := extractToolUse(ev.Message)
				result.Response = text
				result.StopReason = protocol.StopToolUse
				result.ToolCalls = calls
				return result, nil
			}
		}
		if ev.Type == "result" {
			if ev.IsError {
				return PromptResult{}, classifyClaudeError(ev.Result)
			}
			result.Response = ev.Result
			result.StopReason = protocol.StopEndTurn
			return result, nil
		}
	}
	if err := p.stdout.Err(); err != nil {
		p.stopLocked()
		return PromptResult{}, merr.Wrap(merr.Transport, "read claude stdout", err)
	}
	p.stopLocked()
	return PromptResult{}, merr.New(merr.Transport, "claude process exited without a result event")
}

// extractToolUse pulls tool_use blocks (and any accompanying text) out of
// a raw assistant message's content array.
func extractToolUse(rawMessage json.RawMessage) ([]ToolCall, string) {
	var envelope struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(rawMessage, &envelope); err != nil {
		return nil, ""
	}
	var calls []ToolCall
	var text strings.Builder
	for _, raw := range envelope.Content {
		var kind struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &kind); err != nil {
			continue
		}
		switch kind.Type {
		case "tool_use":
			var tu claudeToolUseBlock
			if err := json.Unmarshal(raw, &tu); err == nil {
				calls = append(calls, ToolCall{ID: tu.ID, Name: tu.Name, Arguments: tu.Input})
			}
		case "text":
			var tb claudeContentBlock
			if err := json.Unmarshal(raw, &tb); err == nil {
				text.WriteString(tb.Text)
			}
		}
	}
	return calls, text.String()
}

func classifyClaudeError(message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return merr.New(merr.RateLimit, message)
	case strings.Contains(lower, "50") && strings.Contains(lower, "server error"):
		return merr.New(merr.APIError, "retryable")
	default:
		return merr.New(merr.APIError, message)
	}
}
