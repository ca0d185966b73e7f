package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mama-run/mama/internal/config"
)

func testManager() *Manager {
	return NewManager(config.RolesConfig{
		Definitions: map[string]config.RoleDefinition{
			"chat_bot": {AllowedTools: []string{"mama_search", "mama_save"}},
			"operator": {AllowedTools: []string{"*"}, BlockedTools: []string{"Bash"}, SystemControl: true},
			"admin":    {AllowedTools: []string{"*"}, SystemControl: true, SensitiveAccess: true},
		},
		SourceMapping: map[string]string{"discord": "chat_bot", "viewer": "admin"},
	}, "chat_bot")
}

func TestIsToolAllowedBlockedOverridesWildcard(t *testing.T) {
	m := testManager()
	op, _ := m.Get("operator")
	assert.False(t, m.IsToolAllowed(op, "Bash"))
	assert.True(t, m.IsToolAllowed(op, "Read"))
}

func TestIsToolAllowedExplicitList(t *testing.T) {
	m := testManager()
	cb, _ := m.Get("chat_bot")
	assert.True(t, m.IsToolAllowed(cb, "mama_save"))
	assert.False(t, m.IsToolAllowed(cb, "Bash"))
}

func TestRoleForSourceDefaultsWhenUnmapped(t *testing.T) {
	m := testManager()
	r := m.RoleForSource("unknown-gateway")
	assert.Equal(t, "chat_bot", r.Name)
}

func TestIsPathAllowedEmptyMeansUnrestricted(t *testing.T) {
	m := testManager()
	admin, _ := m.Get("admin")
	assert.True(t, m.IsPathAllowed(admin, "/etc/passwd"))
}

func TestEffectiveRoleNarrowsWildcardByAllowList(t *testing.T) {
	m := testManager()
	admin, _ := m.Get("admin")
	eff := m.EffectiveRole(admin, config.ToolPermissions{Allowed: []string{"mama_search"}})
	assert.True(t, m.IsToolAllowed(eff, "mama_search"))
	assert.False(t, m.IsToolAllowed(eff, "Bash"))
}

func TestEffectiveRoleIntersectsTwoExplicitLists(t *testing.T) {
	m := testManager()
	cb, _ := m.Get("chat_bot")
	eff := m.EffectiveRole(cb, config.ToolPermissions{Allowed: []string{"mama_save", "mama_other"}})
	assert.True(t, m.IsToolAllowed(eff, "mama_save"))
	assert.False(t, m.IsToolAllowed(eff, "mama_search"))
}

func TestEffectiveRoleUnionsBlockedTools(t *testing.T) {
	m := testManager()
	op, _ := m.Get("operator")
	eff := m.EffectiveRole(op, config.ToolPermissions{Blocked: []string{"Write"}})
	assert.False(t, m.IsToolAllowed(eff, "Bash"))
	assert.False(t, m.IsToolAllowed(eff, "Write"))
	assert.True(t, m.IsToolAllowed(eff, "Read"))
}
