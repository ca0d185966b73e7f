// Package streaming implements StreamingCallbackManager (spec §4.6): a
// throttled relay from AgentLoop's accumulating deltas to a single
// user-visible placeholder message, grounded on goclaw's incremental
// message-edit pattern and rate-limited with golang.org/x/time/rate the
// way goclaw throttles its own outbound edits.
package streaming

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MessageSink is the gateway-specific placeholder message API a Manager
// drives; each platform (Discord, Telegram, CLI, …) implements it.
type MessageSink interface {
	CreatePlaceholder(ctx context.Context) (messageID string, err error)
	EditMessage(ctx context.Context, messageID, text string) error
	ReplaceWithError(ctx context.Context, messageID, sanitizedText string) error
}

// DefaultMinInterval is the minimum edit cadence when the gateway does
// not specify one (spec §4.6: "default ≥150ms").
const DefaultMinInterval = 150 * time.Millisecond

// Manager relays accumulated deltas to a MessageSink at a throttled
// cadence and surfaces tool use as log events.
type Manager struct {
	sink    MessageSink
	logger  *slog.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	messageID string
	buffer    strings.Builder
	started   bool
}

// New builds a Manager throttled to minInterval between edits (0 = use
// DefaultMinInterval).
func New(sink MessageSink, minInterval time.Duration, logger *slog.Logger) *Manager {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sink: sink, logger: logger,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Start creates the placeholder message. Must be called once before any
// OnDelta call.
func (m *Manager) Start(ctx context.Context) error {
	id, err := m.sink.CreatePlaceholder(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.messageID = id
	m.started = true
	m.mu.Unlock()
	return nil
}

// OnDelta appends a response fragment and, if the throttle allows, edits
// the placeholder with the accumulated text so far.
func (m *Manager) OnDelta(ctx context.Context, delta string) error {
	m.mu.Lock()
	m.buffer.WriteString(delta)
	text := m.buffer.String()
	id := m.messageID
	started := m.started
	m.mu.Unlock()

	if !started {
		return nil
	}
	if !m.limiter.Allow() {
		return nil
	}
	return m.sink.EditMessage(ctx, id, text)
}

// OnToolUse surfaces a tool invocation as a structured log event; it
// never edits the placeholder message directly.
func (m *Manager) OnToolUse(name string, args map[string]interface{}) {
	m.logger.Info("streaming: tool use", "tool", name, "args", args)
}

// Flush forces a final edit with whatever text has accumulated,
// bypassing the throttle (call once the turn completes normally).
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	text := m.buffer.String()
	id := m.messageID
	started := m.started
	m.mu.Unlock()
	if !started {
		return nil
	}
	return m.sink.EditMessage(ctx, id, text)
}

// sanitize keeps only the first line of msg and caps it at 300 characters
// before an error notice reaches the user-visible placeholder; it does not
// redact secrets or paths within that line.
func sanitize(msg string) string {
	if strings.Contains(msg, "\n") {
		msg = strings.SplitN(msg, "\n", 2)[0]
	}
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

// OnError replaces the placeholder with a sanitized error notice.
func (m *Manager) OnError(ctx context.Context, err error) error {
	m.mu.Lock()
	id := m.messageID
	started := m.started
	m.mu.Unlock()
	if !started {
		return nil
	}
	return m.sink.ReplaceWithError(ctx, id, "Something went wrong: "+sanitize(err.Error()))
}
