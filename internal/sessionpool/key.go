// Package sessionpool implements SessionPool (spec §4.5): per-conversation
// session reuse keyed by a composite channelKey, grounded on goclaw's
// internal/sessions/key.go canonical-key-format convention.
package sessionpool

import "strings"

const defaultSegment = "default"

// BuildChannelKey composes the canonical channelKey = source:guild:channel:user.
// Any empty segment is normalized to "default" so lookups are stable
// regardless of which segments a given gateway happens to supply.
func BuildChannelKey(source, guild, channel, user string) string {
	seg := func(s string) string {
		if s == "" {
			return defaultSegment
		}
		return s
	}
	return strings.Join([]string{seg(source), seg(guild), seg(channel), seg(user)}, ":")
}

// BuildCronSessionKey is the channelKey scheduled jobs use: one session per
// (agent, schedule) pair, isolated from interactive channel traffic.
func BuildCronSessionKey(agentID, scheduleID string) string {
	return BuildChannelKey("cron", defaultSegment, agentID, scheduleID)
}

// SplitChannelKey reverses BuildChannelKey.
func SplitChannelKey(key string) (source, guild, channel, user string) {
	parts := strings.SplitN(key, ":", 4)
	for len(parts) < 4 {
		parts = append(parts, defaultSegment)
	}
	return parts[0], parts[1], parts[2], parts[3]
}
