package heartbeat

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mama-run/mama/internal/config"
)

const metaPrompt = "This is a scheduled heartbeat check. If nothing needs attention, reply with exactly " +
	"HEARTBEAT_OK. If something needs the operator's attention, reply with NOTIFY: <message>. " +
	"If a previously tracked task just finished, reply with DONE: <summary>."

// AgentRunner is the subset of AgentLoop the scheduler needs to issue a
// heartbeat turn.
type AgentRunner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// Notifier delivers a NOTIFY heartbeat result to the configured channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, message string) error
}

// heartbeatKind is the closed set of meta-prompt reply shapes.
type heartbeatKind string

const (
	kindOK     heartbeatKind = "HEARTBEAT_OK"
	kindNotify heartbeatKind = "NOTIFY"
	kindDone   heartbeatKind = "DONE"
	kindOther  heartbeatKind = "UNRECOGNIZED"
)

func parseHeartbeatReply(reply string) (heartbeatKind, string) {
	trimmed := strings.TrimSpace(reply)
	switch {
	case trimmed == string(kindOK):
		return kindOK, ""
	case strings.HasPrefix(trimmed, "NOTIFY:"):
		return kindNotify, strings.TrimSpace(strings.TrimPrefix(trimmed, "NOTIFY:"))
	case strings.HasPrefix(trimmed, "DONE:"):
		return kindDone, strings.TrimSpace(strings.TrimPrefix(trimmed, "DONE:"))
	default:
		return kindOther, trimmed
	}
}

// isQuietHour reports whether now's HH:MM falls within [start, end),
// handling a window that wraps past midnight (e.g. 22:00-06:00).
func isQuietHour(now time.Time, start, end string) bool {
	s, okS := parseHHMM(start)
	e, okE := parseHHMM(end)
	if !okS || !okE || start == end {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	if s <= e {
		return cur >= s && cur < e
	}
	return cur >= s || cur < e
}

func parseHHMM(v string) (int, bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return h*60 + m, true
}

// Scheduler runs agent on a fixed cadence outside quiet hours and routes
// NOTIFY replies to the configured channel.
type Scheduler struct {
	agent    AgentRunner
	cfg      config.HeartbeatConfig
	notifier Notifier
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Scheduler; notifier may be nil if NOTIFY replies should
// only be logged.
func New(agent AgentRunner, cfg config.HeartbeatConfig, notifier Notifier) *Scheduler {
	return &Scheduler{
		agent: agent, cfg: cfg, notifier: notifier,
		logger: slog.Default(), stopCh: make(chan struct{}),
	}
}

// Start runs the scheduler loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if isQuietHour(time.Now(), s.cfg.QuietStart, s.cfg.QuietEnd) {
		return
	}
	reply, err := s.agent.Run(ctx, metaPrompt)
	if err != nil {
		s.logger.Warn("heartbeat: agent run failed", "error", err)
		return
	}
	kind, payload := parseHeartbeatReply(reply)
	switch kind {
	case kindOK:
		s.logger.Debug("heartbeat: ok")
	case kindDone:
		s.logger.Info("heartbeat: task done", "summary", payload)
	case kindNotify:
		s.logger.Info("heartbeat: notify", "message", payload)
		if s.notifier != nil && s.cfg.NotifyChannelID != "" {
			if err := s.notifier.Notify(ctx, s.cfg.NotifyChannelID, payload); err != nil {
				s.logger.Warn("heartbeat: notify failed", "error", err)
			}
		}
	default:
		s.logger.Warn("heartbeat: unrecognized reply", "reply", payload)
	}
}

// Stop ends the schedule; safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
