// Package protocol defines the wire-level constants shared between the
// core and its external collaborators (gateways, the memory API, and the
// HTTP/WebSocket façade), matching goclaw's pkg/protocol versioning idiom.
package protocol

// ProtocolVersion is bumped whenever a breaking change is made to the
// external interfaces enumerated in SPEC_FULL.md §7.
const ProtocolVersion = 1

// Platform is the normalized source tag stamped onto every AgentContext.
type Platform string

const (
	PlatformViewer   Platform = "viewer"
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
	PlatformSlack    Platform = "slack"
	PlatformChatwork Platform = "chatwork"
	PlatformCLI      Platform = "cli"
)

// NormalizePlatform maps a raw source string onto the closed Platform set,
// defaulting unrecognized sources to cli per spec §4.10.
func NormalizePlatform(source string) Platform {
	switch Platform(source) {
	case PlatformViewer, PlatformDiscord, PlatformTelegram, PlatformSlack, PlatformChatwork, PlatformCLI:
		return Platform(source)
	default:
		return PlatformCLI
	}
}

// StopReason enumerates why an AgentLoop turn stopped.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTurns     StopReason = "max_turns"
	StopStopSequence StopReason = "stop_sequence"
)

// CronEvent enumerates the lifecycle events CronScheduler emits.
type CronEvent string

const (
	EventStarted   CronEvent = "started"
	EventCompleted CronEvent = "completed"
	EventFailed    CronEvent = "failed"
	EventSkipped   CronEvent = "skipped"
)

// BlockKind enumerates the closed set of turn-input content block shapes
// AgentLoop and the subprocess backends pass through unchanged (spec
// §4.6): plain text, inline media, and tool results fed back into a turn.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockImage      BlockKind = "image"
	BlockDocument   BlockKind = "document"
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is one element of a multimodal turn input or a tool
// result fed back into the subprocess. Image/document blocks always
// carry MediaType+Base64Data; no fallback to text-only is performed.
type ContentBlock struct {
	Kind       BlockKind `json:"kind"`
	Text       string    `json:"text,omitempty"`
	Base64Data string    `json:"base64_data,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	ToolUseID  string    `json:"tool_use_id,omitempty"`
	Content    string    `json:"content,omitempty"`
	IsError    bool      `json:"is_error,omitempty"`
}
