package gatewaytools

import (
	"context"
	"testing"

	"github.com/mama-run/mama/internal/config"
	"github.com/mama-run/mama/internal/identity"
	"github.com/mama-run/mama/internal/memoryapi"
	"github.com/mama-run/mama/internal/merr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMemory struct {
	saved       []memoryapi.SaveRequest
	updates     []memoryapi.UpdateOutcomeRequest
	suggestions memoryapi.SuggestResult
	checkpoints []string
}

func (f *fakeMemory) Save(ctx context.Context, req memoryapi.SaveRequest) error {
	f.saved = append(f.saved, req)
	return nil
}
func (f *fakeMemory) SaveCheckpoint(ctx context.Context, summary string, openFiles, nextSteps []string, recentConversation string) error {
	f.checkpoints = append(f.checkpoints, summary)
	return nil
}
func (f *fakeMemory) ListDecisions(ctx context.Context, limit int) ([]memoryapi.Decision, error) {
	return nil, nil
}
func (f *fakeMemory) Suggest(ctx context.Context, query string, limit int) (memoryapi.SuggestResult, error) {
	return f.suggestions, nil
}
func (f *fakeMemory) UpdateOutcome(ctx context.Context, id string, req memoryapi.UpdateOutcomeRequest) error {
	f.updates = append(f.updates, req)
	return nil
}
func (f *fakeMemory) LoadCheckpoint(ctx context.Context) (memoryapi.Checkpoint, error) {
	return memoryapi.Checkpoint{Success: true, Summary: "s"}, nil
}

func testRoles() *identity.Manager {
	return identity.NewManager(config.RolesConfig{
		Definitions: map[string]config.RoleDefinition{
			"chat_bot": {AllowedTools: []string{"mama_search", "mama_save"}},
			"operator": {AllowedTools: []string{"*"}, SystemControl: true, SensitiveAccess: true},
		},
	}, "chat_bot")
}

func agentCtxFor(roles *identity.Manager, roleName string) identity.AgentContext {
	role, _ := roles.Get(roleName)
	return identity.AgentContext{RoleName: roleName, Role: role}
}

// S2: a chat_bot-scoped caller invoking Bash is denied, not thrown.
func TestExecuteDeniesUnpermittedToolWithoutThrowing(t *testing.T) {
	roles := testRoles()
	e := New(Deps{Roles: roles, Memory: &fakeMemory{}})
	res := e.Execute(context.Background(), ToolBash, map[string]interface{}{"command": "echo hi"}, agentCtxFor(roles, "chat_bot"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not permitted")
}

// S3: mama_save persists a decision with topic/decision/reasoning.
func TestExecuteMemorySavePersistsDecision(t *testing.T) {
	roles := testRoles()
	mem := &fakeMemory{}
	e := New(Deps{Roles: roles, Memory: mem})
	res := e.Execute(context.Background(), ToolMemorySave, map[string]interface{}{
		"topic": "deploy-strategy", "decision": "use blue-green", "reasoning": "zero downtime", "type": "decision",
	}, agentCtxFor(roles, "operator"))
	require.True(t, res.Success)
	require.Len(t, mem.saved, 1)
	assert.Equal(t, "user_decision", mem.saved[0].Type)
	assert.Equal(t, "deploy-strategy", mem.saved[0].Topic)
}

// mama_save with type:"decision" but no reasoning is rejected.
func TestExecuteMemorySaveDecisionRequiresReasoning(t *testing.T) {
	roles := testRoles()
	mem := &fakeMemory{}
	e := New(Deps{Roles: roles, Memory: mem})
	res := e.Execute(context.Background(), ToolMemorySave, map[string]interface{}{
		"topic": "deploy-strategy", "decision": "use blue-green", "type": "decision",
	}, agentCtxFor(roles, "operator"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "reasoning")
	assert.Empty(t, mem.saved)
}

// mama_save with type:"checkpoint" requires summary and calls SaveCheckpoint.
func TestExecuteMemorySavePersistsCheckpoint(t *testing.T) {
	roles := testRoles()
	mem := &fakeMemory{}
	e := New(Deps{Roles: roles, Memory: mem})
	res := e.Execute(context.Background(), ToolMemorySave, map[string]interface{}{
		"type": "checkpoint", "summary": "shipped the migration",
		"open_files": []interface{}{"main.go"}, "next_steps": []interface{}{"write docs"},
	}, agentCtxFor(roles, "operator"))
	require.True(t, res.Success)
	require.Len(t, mem.checkpoints, 1)
	assert.Equal(t, "shipped the migration", mem.checkpoints[0])
	assert.Empty(t, mem.saved)
}

// mama_save with type:"checkpoint" but no summary is rejected.
func TestExecuteMemorySaveCheckpointRequiresSummary(t *testing.T) {
	roles := testRoles()
	mem := &fakeMemory{}
	e := New(Deps{Roles: roles, Memory: mem})
	res := e.Execute(context.Background(), ToolMemorySave, map[string]interface{}{
		"type": "checkpoint",
	}, agentCtxFor(roles, "operator"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "summary")
	assert.Empty(t, mem.checkpoints)
}

// mama_save with an unrecognized type is rejected per spec §4.8.
func TestExecuteMemorySaveRejectsInvalidType(t *testing.T) {
	roles := testRoles()
	mem := &fakeMemory{}
	e := New(Deps{Roles: roles, Memory: mem})
	res := e.Execute(context.Background(), ToolMemorySave, map[string]interface{}{
		"type": "nonsense",
	}, agentCtxFor(roles, "operator"))
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid save type", res.Message)
}

// Invariant 3: an unrecognized tool name throws a typed UNKNOWN_TOOL error
// rather than returning a Result.
func TestExecuteUnknownToolPanics(t *testing.T) {
	roles := testRoles()
	e := New(Deps{Roles: roles})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		merrErr, ok := r.(*merr.Error)
		require.True(t, ok)
		assert.Equal(t, merr.UnknownTool, merrErr.Kind)
	}()
	e.Execute(context.Background(), "totally_made_up_tool", nil, agentCtxFor(roles, "operator"))
}

// Invariant 4: blockedTools overrides a "*" wildcard in allowedTools.
func TestExecuteBlockedToolOverridesWildcard(t *testing.T) {
	roles := identity.NewManager(config.RolesConfig{
		Definitions: map[string]config.RoleDefinition{
			"operator": {AllowedTools: []string{"*"}, BlockedTools: []string{"Bash"}},
		},
	}, "operator")
	e := New(Deps{Roles: roles, Shell: NewHostShell(".")})
	res := e.Execute(context.Background(), ToolBash, map[string]interface{}{"command": "echo hi"}, agentCtxFor(roles, "operator"))
	assert.False(t, res.Success)
}

// Round-trip property 7: mama_update is idempotent under re-submission of
// an already-normalized outcome.
func TestMemoryUpdateIdempotentOutcomeNormalization(t *testing.T) {
	roles := testRoles()
	mem := &fakeMemory{}
	e := New(Deps{Roles: roles, Memory: mem})

	first := e.Execute(context.Background(), ToolMemoryUpdate, map[string]interface{}{"id": "d1", "outcome": "success"}, agentCtxFor(roles, "operator"))
	second := e.Execute(context.Background(), ToolMemoryUpdate, map[string]interface{}{"id": "d1", "outcome": "SUCCESS"}, agentCtxFor(roles, "operator"))

	require.True(t, first.Success)
	require.True(t, second.Success)
	require.Len(t, mem.updates, 2)
	assert.Equal(t, mem.updates[0].Outcome, mem.updates[1].Outcome)
	assert.Equal(t, memoryapi.OutcomeSuccess, mem.updates[1].Outcome)
}

func TestBashDeniesDangerousCommand(t *testing.T) {
	roles := identity.NewManager(config.RolesConfig{
		Definitions: map[string]config.RoleDefinition{"operator": {AllowedTools: []string{"*"}}},
	}, "operator")
	e := New(Deps{Roles: roles, Shell: NewHostShell(".")})
	res := e.Execute(context.Background(), ToolBash, map[string]interface{}{"command": "rm -rf /"}, agentCtxFor(roles, "operator"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "denied")
}
