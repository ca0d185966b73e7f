package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-run/mama/internal/config"
)

type fakeAgent struct {
	reply string
	err   error
	calls int
}

func (f *fakeAgent) Run(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeNotifier struct {
	channelID string
	message   string
	err       error
}

func (f *fakeNotifier) Notify(ctx context.Context, channelID, message string) error {
	f.channelID = channelID
	f.message = message
	return f.err
}

func TestIsQuietHourWithinSameDayWindow(t *testing.T) {
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, isQuietHour(day.Add(10*time.Hour), "09:00", "17:00"))
	assert.False(t, isQuietHour(day.Add(18*time.Hour), "09:00", "17:00"))
}

func TestIsQuietHourWrapsPastMidnight(t *testing.T) {
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, isQuietHour(day.Add(23*time.Hour), "22:00", "06:00"))
	assert.True(t, isQuietHour(day.Add(2*time.Hour), "22:00", "06:00"))
	assert.False(t, isQuietHour(day.Add(12*time.Hour), "22:00", "06:00"))
}

func TestIsQuietHourDisabledWhenStartEqualsEnd(t *testing.T) {
	assert.False(t, isQuietHour(time.Now(), "09:00", "09:00"))
}

func TestParseHeartbeatReplyRecognizesAllKinds(t *testing.T) {
	kind, payload := parseHeartbeatReply("HEARTBEAT_OK")
	assert.Equal(t, kindOK, kind)
	assert.Empty(t, payload)

	kind, payload = parseHeartbeatReply("NOTIFY: disk is almost full")
	assert.Equal(t, kindNotify, kind)
	assert.Equal(t, "disk is almost full", payload)

	kind, payload = parseHeartbeatReply("DONE: migrated the database")
	assert.Equal(t, kindDone, kind)
	assert.Equal(t, "migrated the database", payload)

	kind, _ = parseHeartbeatReply("something unexpected")
	assert.Equal(t, kindOther, kind)
}

func TestTickSkipsDuringQuietHours(t *testing.T) {
	agent := &fakeAgent{reply: "HEARTBEAT_OK"}
	now := time.Now()
	start := now.Add(-time.Hour).Format("15:04")
	end := now.Add(time.Hour).Format("15:04")
	s := New(agent, config.HeartbeatConfig{Interval: time.Hour, QuietStart: start, QuietEnd: end}, nil)
	s.tick(context.Background())
	assert.Equal(t, 0, agent.calls)
}

func TestTickRoutesNotifyToNotifier(t *testing.T) {
	agent := &fakeAgent{reply: "NOTIFY: check the logs"}
	notifier := &fakeNotifier{}
	s := New(agent, config.HeartbeatConfig{Interval: time.Hour, NotifyChannelID: "ops"}, notifier)
	s.tick(context.Background())
	require.Equal(t, 1, agent.calls)
	assert.Equal(t, "ops", notifier.channelID)
	assert.Equal(t, "check the logs", notifier.message)
}

func TestTickIgnoresAgentErrorWithoutPanicking(t *testing.T) {
	agent := &fakeAgent{err: errors.New("subprocess crashed")}
	s := New(agent, config.HeartbeatConfig{Interval: time.Hour}, nil)
	assert.NotPanics(t, func() { s.tick(context.Background()) })
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(&fakeAgent{}, config.HeartbeatConfig{Interval: time.Hour}, nil)
	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}
