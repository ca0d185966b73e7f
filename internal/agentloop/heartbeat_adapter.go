package agentloop

import (
	"context"

	"github.com/mama-run/mama/internal/heartbeat"
)

// HeartbeatRunner adapts a Loop to heartbeat.AgentRunner, always running
// the meta-prompt against a single fixed channel key so heartbeat probes
// never contend with a real conversation's session.
type HeartbeatRunner struct {
	loop       *Loop
	source     string
	channelKey string
}

// NewHeartbeatRunner builds a heartbeat.AgentRunner backed by loop.
func NewHeartbeatRunner(loop *Loop, source, channelKey string) *HeartbeatRunner {
	if channelKey == "" {
		channelKey = "heartbeat"
	}
	return &HeartbeatRunner{loop: loop, source: source, channelKey: channelKey}
}

var _ heartbeat.AgentRunner = (*HeartbeatRunner)(nil)

// Run satisfies heartbeat.AgentRunner.
func (r *HeartbeatRunner) Run(ctx context.Context, prompt string) (string, error) {
	res, err := r.loop.Run(ctx, RunRequest{ChannelKey: r.channelKey, Source: r.source, Message: prompt})
	if err != nil {
		return "", err
	}
	return res.Response, nil
}
