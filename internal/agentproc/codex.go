package agentproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mama-run/mama/internal/merr"
	"github.com/mama-run/mama/pkg/protocol"
)

// codexState is the CodexAppServerProcess lifecycle (spec §4.4):
// dead → starting → ready → busy → ready.
type codexState int32

const (
	codexDead codexState = iota
	codexStarting
	codexReady
	codexBusy
)

const (
	codexInitializeTimeout = 60 * time.Second
	codexDefaultTimeout    = 3 * time.Minute
)

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CodexAppServerProcess drives a `codex app-server` subprocess over
// newline-delimited JSON-RPC 2.0 frames on stdio. One automatic restart
// is attempted on a transport failure; a second failure propagates.
type CodexAppServerProcess struct {
	command string
	workDir string

	mu           sync.Mutex
	cmd          *exec.Cmd
	stdin        *json.Encoder
	stdout       *bufio.Scanner
	nextID       int64
	state        atomic.Int32
	systemPrompt string
	promptSet    bool
	threadID     string
	restarted    bool
}

// NewCodexAppServerProcess returns a dead process; the first Prompt call
// starts it and performs the initialize handshake.
func NewCodexAppServerProcess(workDir string) *CodexAppServerProcess {
	p := &CodexAppServerProcess{command: "codex", workDir: workDir}
	p.state.Store(int32(codexDead))
	return p
}

func (p *CodexAppServerProcess) SetSystemPrompt(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.systemPrompt = text
}

func (p *CodexAppServerProcess) SetSessionID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threadID = id
}

func (p *CodexAppServerProcess) ResetSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.threadID = ""
	p.promptSet = false
	p.restarted = false
}

// Close terminates the underlying subprocess, if running.
func (p *CodexAppServerProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *CodexAppServerProcess) stopLocked() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
	p.stdin = nil
	p.stdout = nil
	p.state.Store(int32(codexDead))
}

func (p *CodexAppServerProcess) startLocked(ctx context.Context) error {
	p.state.Store(int32(codexStarting))

	cmd := exec.CommandContext(ctx, p.command, "app-server")
	cmd.Dir = p.workDir
	cmd.Stderr = os.Stderr

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		p.state.Store(int32(codexDead))
		return merr.Wrap(merr.Transport, "open codex stdin", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		p.state.Store(int32(codexDead))
		return merr.Wrap(merr.Transport, "open codex stdout", err)
	}
	if err := cmd.Start(); err != nil {
		p.state.Store(int32(codexDead))
		return merr.Wrap(merr.Transport, "start codex app-server", err)
	}

	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	p.cmd = cmd
	p.stdin = json.NewEncoder(stdinPipe)
	p.stdout = scanner

	initCtx, cancel := context.WithTimeout(ctx, codexInitializeTimeout)
	defer cancel()
	if _, err := p.callLocked(initCtx, "initialize", map[string]string{"clientName": "mama"}); err != nil {
		p.stopLocked()
		return merr.Wrap(merr.Transport, "codex initialize handshake", err)
	}

	p.state.Store(int32(codexReady))
	return nil
}

// callLocked sends one JSON-RPC request and blocks for its response; the
// caller must hold p.mu.
func (p *CodexAppServerProcess) callLocked(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := atomic.AddInt64(&p.nextID, 1)
	req := jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := p.stdin.Encode(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	for p.stdout.Scan() {
		var resp jsonRPCResponse
		if err := json.Unmarshal(p.stdout.Bytes(), &resp); err != nil {
			continue // notification or malformed frame; keep reading
		}
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("codex error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
	if err := p.stdout.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("codex process closed stdout before replying to %s", method)
}

type codexPromptParams struct {
	ThreadID string `json:"thread_id,omitempty"`
	Prompt   string `json:"prompt"`
}

type codexToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type codexPromptResult struct {
	ThreadID     string          `json:"thread_id"`
	Response     string          `json:"response"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	StopReason   string          `json:"stop_reason,omitempty"`
	ToolCalls    []codexToolCall `json:"tool_calls,omitempty"`
}

func (p *CodexAppServerProcess) Prompt(ctx context.Context, input PromptInput) (PromptResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if codexState(p.state.Load()) == codexDead {
		if err := p.startLocked(ctx); err != nil {
			return PromptResult{}, err
		}
	}

	prompt := input.Text
	if !p.promptSet && p.systemPrompt != "" {
		prompt = p.systemPrompt + "\n\n" + prompt
		p.promptSet = true
	}

	p.state.Store(int32(codexBusy))
	promptCtx, cancel := context.WithTimeout(ctx, codexDefaultTimeout)
	defer cancel()

	raw, err := p.callLocked(promptCtx, "prompt", codexPromptParams{ThreadID: p.threadID, Prompt: prompt})
	if err != nil {
		p.stopLocked()
		if !p.restarted {
			p.restarted = true
			if startErr := p.startLocked(ctx); startErr == nil {
				raw, err = p.callLocked(promptCtx, "prompt", codexPromptParams{ThreadID: p.threadID, Prompt: prompt})
			}
		}
		if err != nil {
			return PromptResult{}, classifyCodexError(err)
		}
	}
	p.state.Store(int32(codexReady))

	var result codexPromptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return PromptResult{}, merr.Wrap(merr.APIError, "decode codex prompt result", err)
	}
	p.threadID = result.ThreadID

	stopReason := protocol.StopEndTurn
	var calls []ToolCall
	if len(result.ToolCalls) > 0 {
		stopReason = protocol.StopToolUse
		for _, c := range result.ToolCalls {
			calls = append(calls, ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
		}
	} else if result.StopReason != "" {
		stopReason = protocol.StopReason(result.StopReason)
	}

	return PromptResult{
		Response:   result.Response,
		Usage:      Usage{InputTokens: result.InputTokens, OutputTokens: result.OutputTokens},
		SessionID:  result.ThreadID,
		StopReason: stopReason,
		ToolCalls:  calls,
	}, nil
}

func classifyCodexError(err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return merr.New(merr.RateLimit, err.Error())
	case strings.Contains(lower, "50") && strings.Contains(lower, "server"):
		return merr.New(merr.APIError, "retryable")
	default:
		return merr.Wrap(merr.Transport, "codex prompt failed", err)
	}
}
