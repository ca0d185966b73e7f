package agentloop

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-run/mama/internal/agentproc"
	"github.com/mama-run/mama/internal/config"
	"github.com/mama-run/mama/internal/gatewaytools"
	"github.com/mama-run/mama/internal/handlers"
	"github.com/mama-run/mama/internal/identity"
	"github.com/mama-run/mama/internal/lane"
	"github.com/mama-run/mama/internal/promptctx"
	"github.com/mama-run/mama/internal/sessionpool"
	"github.com/mama-run/mama/pkg/protocol"
)

// fakeBackend scripts a fixed sequence of PromptResults, one per call.
type fakeBackend struct {
	results   []agentproc.PromptResult
	call      int
	prompts   []agentproc.PromptInput
	sessionID string
	sysPrompt string
	resetN    int
}

func (f *fakeBackend) SetSystemPrompt(text string) { f.sysPrompt = text }
func (f *fakeBackend) SetSessionID(id string)      { f.sessionID = id }
func (f *fakeBackend) ResetSession()               { f.resetN++ }
func (f *fakeBackend) Close() error                { return nil }
func (f *fakeBackend) Prompt(ctx context.Context, input agentproc.PromptInput) (agentproc.PromptResult, error) {
	f.prompts = append(f.prompts, input)
	if f.call >= len(f.results) {
		return agentproc.PromptResult{StopReason: protocol.StopEndTurn}, nil
	}
	r := f.results[f.call]
	f.call++
	return r, nil
}

func newTestLoop(t *testing.T, backend agentproc.Backend) *Loop {
	t.Helper()
	roles := identity.NewManager(config.RolesConfig{}, "default")
	executor := gatewaytools.New(gatewaytools.Deps{Roles: roles})
	postTool := handlers.NewPostToolHandler(context.Background(), nil, nil)
	preComp := handlers.NewPreCompactHandler(nil, nil)
	return New(sessionpool.New(nil, 0, 0, 0), lane.New(), backend, executor, postTool, preComp,
		promptctx.NewEnhancer(), roles, nil, 5, nil, nil)
}

func TestRunReturnsEndTurnResponse(t *testing.T) {
	backend := &fakeBackend{results: []agentproc.PromptResult{
		{Response: "hello there", StopReason: protocol.StopEndTurn, Usage: agentproc.Usage{InputTokens: 10, OutputTokens: 5}},
	}}
	l := newTestLoop(t, backend)

	res, err := l.Run(context.Background(), RunRequest{ChannelKey: "c1", Source: "cli", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Response)
	assert.Equal(t, protocol.StopEndTurn, res.StopReason)
	assert.Equal(t, 1, res.Turns)
	assert.Equal(t, 15, res.TotalUsage.InputTokens+res.TotalUsage.OutputTokens)
}

func TestRunDispatchesToolUseAndContinues(t *testing.T) {
	backend := &fakeBackend{results: []agentproc.PromptResult{
		{
			StopReason: protocol.StopToolUse,
			ToolCalls: []agentproc.ToolCall{
				{ID: "t1", Name: "mama_search", Arguments: map[string]interface{}{"query": "auth"}},
			},
		},
		{Response: "done", StopReason: protocol.StopEndTurn},
	}}
	l := newTestLoop(t, backend)

	res, err := l.Run(context.Background(), RunRequest{ChannelKey: "c2", Source: "cli", Message: "find the auth decision"})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Response)
	assert.Equal(t, 2, res.Turns)

	require.Len(t, backend.prompts, 2)
	require.Len(t, backend.prompts[1].Blocks, 1)
	assert.Equal(t, protocol.BlockToolResult, backend.prompts[1].Blocks[0].Kind)
	assert.Equal(t, "t1", backend.prompts[1].Blocks[0].ToolUseID)
}

func TestRunRecoversFromUnknownToolPanic(t *testing.T) {
	backend := &fakeBackend{results: []agentproc.PromptResult{
		{
			StopReason: protocol.StopToolUse,
			ToolCalls:  []agentproc.ToolCall{{ID: "t1", Name: "does_not_exist", Arguments: nil}},
		},
		{Response: "recovered", StopReason: protocol.StopEndTurn},
	}}
	l := newTestLoop(t, backend)

	res, err := l.Run(context.Background(), RunRequest{ChannelKey: "c3", Source: "cli", Message: "try something"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Response)
	assert.True(t, backend.prompts[1].Blocks[0].IsError)
}

func TestRunStopsAtMaxTurns(t *testing.T) {
	backend := &fakeBackend{}
	for i := 0; i < 10; i++ {
		backend.results = append(backend.results, agentproc.PromptResult{
			StopReason: protocol.StopToolUse,
			ToolCalls:  []agentproc.ToolCall{{ID: "t", Name: "mama_search", Arguments: map[string]interface{}{"query": "x"}}},
		})
	}
	l := newTestLoop(t, backend)
	res, err := l.Run(context.Background(), RunRequest{ChannelKey: "c4", Source: "cli", Message: "loop forever"})
	require.NoError(t, err)
	assert.Equal(t, protocol.StopMaxTurns, res.StopReason)
	assert.Equal(t, 5, res.Turns)
}

func TestRunAppliesSubAgentPersonaAndNarrowedRole(t *testing.T) {
	personaPath := filepath.Join(t.TempDir(), "persona.md")
	require.NoError(t, os.WriteFile(personaPath, []byte("You are Scout, a read-only research aide."), 0644))

	roles := identity.NewManager(config.RolesConfig{
		Definitions: map[string]config.RoleDefinition{
			"default": {AllowedTools: []string{"*"}},
		},
	}, "default")
	executor := gatewaytools.New(gatewaytools.Deps{Roles: roles})
	postTool := handlers.NewPostToolHandler(context.Background(), nil, nil)
	preComp := handlers.NewPreCompactHandler(nil, nil)
	backend := &fakeBackend{results: []agentproc.PromptResult{
		{Response: "ok", StopReason: protocol.StopEndTurn},
	}}
	subAgents := map[string]config.SubAgentConfig{
		"scout": {
			PersonaFile:     personaPath,
			ToolPermissions: config.ToolPermissions{Allowed: []string{"mama_search"}},
		},
	}
	l := New(sessionpool.New(nil, 0, 0, 0), lane.New(), backend, executor, postTool, preComp,
		promptctx.NewEnhancer(), roles, subAgents, 5, nil, nil)

	_, err := l.Run(context.Background(), RunRequest{ChannelKey: "c5", Source: "cli", Message: "hi", AgentID: "scout"})
	require.NoError(t, err)
	assert.Contains(t, backend.sysPrompt, "You are Scout, a read-only research aide.")
	assert.Contains(t, backend.sysPrompt, "tool access: mama_search")
}

func TestRunSerializesSameChannelKey(t *testing.T) {
	backend := &fakeBackend{results: []agentproc.PromptResult{
		{Response: "a", StopReason: protocol.StopEndTurn},
		{Response: "b", StopReason: protocol.StopEndTurn},
	}}
	l := newTestLoop(t, backend)

	_, err1 := l.Run(context.Background(), RunRequest{ChannelKey: "same", Source: "cli", Message: "first"})
	_, err2 := l.Run(context.Background(), RunRequest{ChannelKey: "same", Source: "cli", Message: "second"})
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 2, backend.call)
}
