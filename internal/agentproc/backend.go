// Package agentproc implements the two interchangeable subprocess
// backends AgentLoop drives (spec §4.4): a long-running Claude CLI
// process and a Codex app-server speaking JSON-RPC over stdio. Grounded
// on the NDJSON stdin/stdout process-management idiom from the
// other_examples Claude session manager, generalized into a single
// Backend contract so AgentLoop never branches on which is active.
package agentproc

import (
	"context"

	"github.com/mama-run/mama/pkg/protocol"
)

// Usage is a turn's token accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// PromptInput is either plain text or a sequence of content blocks; Text
// is used when Blocks is empty.
type PromptInput struct {
	Text   string
	Blocks []protocol.ContentBlock
}

// ToolCall is one model-requested tool invocation surfaced for the caller
// to resolve via GatewayToolExecutor and feed back as a tool_result block.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// PromptResult is a subprocess backend's reply to one prompt call.
type PromptResult struct {
	Response   string
	Usage      Usage
	SessionID  string
	StopReason protocol.StopReason
	ToolCalls  []ToolCall
}

// Backend is the behavioral contract both ClaudeCLIWrapper-backed
// PersistentClaudeProcess and CodexAppServerProcess satisfy (spec §4.4).
type Backend interface {
	// SetSystemPrompt injects text exactly once, on the first turn.
	SetSystemPrompt(text string)
	// SetSessionID attaches an existing server-side session.
	SetSessionID(id string)
	// Prompt sends input and blocks until a response or error.
	Prompt(ctx context.Context, input PromptInput) (PromptResult, error)
	// ResetSession forgets all session state.
	ResetSession()
	// Close terminates the subprocess, if running.
	Close() error
}
