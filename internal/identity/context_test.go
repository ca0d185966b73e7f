package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mama-run/mama/pkg/protocol"
)

func TestBuildContextPromptIdentityIncludesRoleOneLiner(t *testing.T) {
	role := Role{Name: "operator", AllowedTools: []string{"*"}, SystemControl: true}
	ctx := NewAgentContext("discord", "operator", role, SessionMeta{SessionID: "abcdefgh12345"}, nil, nil)

	out := BuildContextPrompt(ctx)
	assert.Contains(t, out, "- Role: operator — full tool access, system control\n")
}

func TestBuildContextPromptIdentityListsRestrictedRole(t *testing.T) {
	role := Role{Name: "chat_bot", AllowedTools: []string{"mama_search", "mama_save"}}
	ctx := NewAgentContext("discord", "chat_bot", role, SessionMeta{SessionID: "abcdefgh12345"}, nil, nil)

	out := BuildContextPrompt(ctx)
	assert.Contains(t, out, "- Role: chat_bot — 2 allowed tool(s)\n")
	assert.Equal(t, protocol.PlatformDiscord, ctx.Platform)
}
