// Package identity implements RoleManager and ContextPromptBuilder
// (spec §4.10), grounded on goclaw's internal/tools/policy.go glob/group
// evaluation pipeline, generalized from that file's tool-policy matching
// into the role table + source mapping the spec describes.
package identity

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mama-run/mama/internal/config"
)

// Role mirrors spec §3 RoleConfig.
type Role struct {
	Name            string
	AllowedTools    []string
	BlockedTools    []string
	AllowedPaths    []string
	SystemControl   bool
	SensitiveAccess bool
}

// Manager holds a role table and a source→role mapping. It is
// constructor-injected per spec §9 ("re-express singletons as
// constructor-injected dependencies"); NewManager replaces goclaw's
// getRoleManager()/resetRoleManager() singleton pair.
type Manager struct {
	roles         map[string]Role
	sourceMapping map[string]string
	defaultRole   string
}

// NewManager builds a Manager from the roles.* config section.
func NewManager(cfg config.RolesConfig, defaultRole string) *Manager {
	m := &Manager{
		roles:         make(map[string]Role),
		sourceMapping: cfg.SourceMapping,
		defaultRole:   defaultRole,
	}
	for name, def := range cfg.Definitions {
		m.roles[name] = Role{
			Name: name, AllowedTools: def.AllowedTools, BlockedTools: def.BlockedTools,
			AllowedPaths: def.AllowedPaths, SystemControl: def.SystemControl, SensitiveAccess: def.SensitiveAccess,
		}
	}
	if _, ok := m.roles[defaultRole]; !ok {
		m.roles[defaultRole] = Role{Name: defaultRole, AllowedTools: []string{"*"}}
	}
	return m
}

// RoleForSource resolves a source string to its mapped role, or the
// default role if unmapped.
func (m *Manager) RoleForSource(source string) Role {
	if name, ok := m.sourceMapping[source]; ok {
		if r, ok := m.roles[name]; ok {
			return r
		}
	}
	return m.roles[m.defaultRole]
}

// Get looks up a role by name.
func (m *Manager) Get(name string) (Role, bool) {
	r, ok := m.roles[name]
	return r, ok
}

func globMatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// IsToolAllowed implements spec §4.10's precedence: blockedTools always
// wins regardless of allowedTools; "*" in allowedTools grants everything
// else; otherwise a glob match against allowedTools is required.
func (m *Manager) IsToolAllowed(role Role, tool string) bool {
	if globMatchAny(role.BlockedTools, tool) {
		return false
	}
	for _, p := range role.AllowedTools {
		if p == "*" {
			return true
		}
	}
	return globMatchAny(role.AllowedTools, tool)
}

// IsPathAllowed applies ~-expansion before glob matching; an empty
// allowedPaths list means "no path restriction" per spec §3.
func (m *Manager) IsPathAllowed(role Role, path string) bool {
	if len(role.AllowedPaths) == 0 {
		return true
	}
	for _, p := range role.AllowedPaths {
		expanded := expandTilde(p)
		if ok, _ := filepath.Match(expanded, path); ok {
			return true
		}
		if strings.HasPrefix(path, strings.TrimSuffix(expanded, "*")) {
			return true
		}
	}
	return false
}

func expandTilde(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// EffectiveRole narrows role by a sub-agent's own tool_permissions
// (Open Question: per-agent vs global role precedence). A sub-agent can
// only ever narrow what its resolved global role already grants: blocked
// lists union (either side blocking is enough), and the allowed list
// intersects rather than replaces, mirroring goclaw's chained
// policy-check pipeline where every policy in the chain must agree
// rather than the last one winning.
func (m *Manager) EffectiveRole(role Role, perms config.ToolPermissions) Role {
	eff := role
	eff.BlockedTools = unionStrings(role.BlockedTools, perms.Blocked)
	if len(perms.Allowed) > 0 {
		eff.AllowedTools = intersectAllowed(role.AllowedTools, perms.Allowed)
	}
	return eff
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// intersectAllowed treats "*" as "no opinion, defer to the other side"
// rather than "everything", so a sub-agent declaring a concrete allow
// list always narrows a wildcard global role instead of being
// overridden by it.
func intersectAllowed(global, scoped []string) []string {
	hasWildcard := func(list []string) bool {
		for _, p := range list {
			if p == "*" {
				return true
			}
		}
		return false
	}
	switch {
	case hasWildcard(global):
		return scoped
	case hasWildcard(scoped):
		return global
	default:
		set := make(map[string]bool, len(global))
		for _, p := range global {
			set[p] = true
		}
		var out []string
		for _, p := range scoped {
			if set[p] {
				out = append(out, p)
			}
		}
		return out
	}
}

// CanSystemControl reports whether role may invoke os_* mutating tools.
func (m *Manager) CanSystemControl(role Role) bool { return role.SystemControl }

// CanAccessSensitive reports whether role may see unmasked sensitive fields.
func (m *Manager) CanAccessSensitive(role Role) bool { return role.SensitiveAccess }

// Capabilities derives a human-readable capability list for the prompt
// preamble and buildMinimalContext.
func (m *Manager) Capabilities(role Role) []string {
	var caps []string
	if len(role.AllowedTools) > 0 {
		caps = append(caps, "tool access: "+strings.Join(role.AllowedTools, ", "))
	}
	if m.CanSystemControl(role) {
		caps = append(caps, "system control")
	}
	if m.CanAccessSensitive(role) {
		caps = append(caps, "sensitive data access")
	}
	if len(caps) == 0 {
		caps = append(caps, "no elevated capabilities")
	}
	return caps
}

// Limitations derives a human-readable limitation list.
func (m *Manager) Limitations(role Role) []string {
	var lims []string
	if len(role.BlockedTools) > 0 {
		lims = append(lims, "blocked tools: "+strings.Join(role.BlockedTools, ", "))
	}
	if len(role.AllowedPaths) > 0 {
		lims = append(lims, "filesystem restricted to: "+strings.Join(role.AllowedPaths, ", "))
	}
	if !m.CanSystemControl(role) {
		lims = append(lims, "cannot manage bot processes")
	}
	if !m.CanAccessSensitive(role) {
		lims = append(lims, "sensitive fields are masked")
	}
	return lims
}
