package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/mama-run/mama/pkg/protocol"
)

// SessionMeta is the session-identifying subset of AgentContext.
type SessionMeta struct {
	SessionID string
	Channel   string
	User      string
	Name      string
	StartedAt time.Time
}

// AgentContext is the per-invocation identity record (spec §3).
type AgentContext struct {
	Source       string
	Platform     protocol.Platform
	RoleName     string
	Role         Role
	Session      SessionMeta
	Capabilities []string
	Limitations  []string
	ChannelKey   string
}

// NewAgentContext normalizes source to a Platform and stamps StartedAt,
// implementing spec §4.10's createAgentContext.
func NewAgentContext(source, roleName string, role Role, session SessionMeta, caps, lims []string) AgentContext {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	return AgentContext{
		Source: source, Platform: protocol.NormalizePlatform(source),
		RoleName: roleName, Role: role, Session: session,
		Capabilities: caps, Limitations: lims,
	}
}

var platformGuidelines = map[protocol.Platform]string{
	protocol.PlatformDiscord:  "Messages are capped at 2000 characters; use embeds sparingly and prefer concise replies.",
	protocol.PlatformTelegram: "Use Telegram HTML formatting (`<b>…</b>`, `<i>…</i>`); avoid unescaped `<`/`>`.",
	protocol.PlatformSlack:    "Use Slack mrkdwn (`*bold*`, `_italic_`); long code blocks should use triple backticks.",
	protocol.PlatformChatwork: "Plain text only; no markdown is rendered.",
	protocol.PlatformCLI:      "Output is a raw terminal stream; markdown is not rendered.",
	protocol.PlatformViewer:   "The viewer is the trusted operator console; full detail and raw output are appropriate.",
}

// roleOneLiner condenses a role's permissions into a single descriptive
// clause for the Identity section's Role line (spec §4.10: "Role +
// one-liner").
func roleOneLiner(role Role) string {
	tools := "no tool access"
	for _, p := range role.AllowedTools {
		if p == "*" {
			tools = "full tool access"
			break
		}
	}
	if tools == "no tool access" && len(role.AllowedTools) > 0 {
		tools = fmt.Sprintf("%d allowed tool(s)", len(role.AllowedTools))
	}
	bits := []string{tools}
	if role.SystemControl {
		bits = append(bits, "system control")
	}
	if role.SensitiveAccess {
		bits = append(bits, "sensitive access")
	}
	return strings.Join(bits, ", ")
}

func truncateSessionID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// BuildContextPrompt assembles the identity/capability/limitation
// preamble in the fixed section order spec §4.10 requires.
func BuildContextPrompt(ctx AgentContext) string {
	var b strings.Builder
	b.WriteString("## Current Agent Context\n\n")

	b.WriteString("### Identity\n")
	fmt.Fprintf(&b, "- Platform: %s\n", ctx.Platform)
	fmt.Fprintf(&b, "- Role: %s — %s\n", ctx.RoleName, roleOneLiner(ctx.Role))
	fmt.Fprintf(&b, "- Session: %s\n", truncateSessionID(ctx.Session.SessionID))
	if ctx.Session.User != "" {
		fmt.Fprintf(&b, "- User: %s\n", ctx.Session.User)
	}
	if ctx.Session.Channel != "" {
		fmt.Fprintf(&b, "- Channel: %s\n", ctx.Session.Channel)
	}
	b.WriteString("\n")

	b.WriteString("### Capabilities\n")
	for _, c := range ctx.Capabilities {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\n### Limitations\n")
	for _, l := range ctx.Limitations {
		fmt.Fprintf(&b, "- %s\n", l)
	}

	b.WriteString("\n### Platform Guidelines\n")
	if g, ok := platformGuidelines[ctx.Platform]; ok {
		b.WriteString(g + "\n")
	}

	b.WriteString("\n### Permission Reminders\n")
	if ctx.Role.SystemControl {
		b.WriteString("- You may manage bot processes (os_add_bot, os_restart_bot, os_stop_bot).\n")
	} else {
		b.WriteString("- You may NOT manage bot processes; os_* mutators are viewer-only.\n")
	}
	if ctx.Role.SensitiveAccess {
		b.WriteString("- You may view unmasked sensitive configuration fields.\n")
	} else {
		b.WriteString("- Sensitive configuration fields (tokens) will be masked in tool output.\n")
	}

	return b.String()
}

// BuildMinimalContext returns the one-line identity summary used where a
// full preamble would waste budget.
func BuildMinimalContext(ctx AgentContext) string {
	caps := ctx.Capabilities
	shown := caps
	extra := 0
	if len(caps) > 3 {
		shown = caps[:3]
		extra = len(caps) - 3
	}
	summary := strings.Join(shown, ", ")
	if extra > 0 {
		summary = fmt.Sprintf("%s, +%d more", summary, extra)
	}
	return fmt.Sprintf("%s/%s · %s", ctx.Platform, ctx.RoleName, summary)
}
