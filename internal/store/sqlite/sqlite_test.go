package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-run/mama/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mama.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScheduleLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &store.Schedule{ID: "hb", Name: "heartbeat", Cron: "* * * * *", Prompt: "ping", Enabled: true, CreatedAt: time.Now()}
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, "hb")
	require.NoError(t, err)
	assert.Equal(t, "heartbeat", got.Name)
	assert.True(t, got.Enabled)

	disabled := false
	require.NoError(t, s.UpdateJob(ctx, "hb", store.ScheduleUpdate{Enabled: &disabled}))
	got, err = s.GetJob(ctx, "hb")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	logID, err := s.LogStart(ctx, "hb")
	require.NoError(t, err)
	require.NoError(t, s.LogFinish(ctx, logID, store.LogSuccess, "ok", ""))

	last, err := s.GetLastExecution(ctx, "hb")
	require.NoError(t, err)
	assert.Equal(t, store.LogSuccess, last.Status)

	require.NoError(t, s.DeleteJob(ctx, "hb"))
	got, err = s.GetJob(ctx, "hb")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReapOrphans(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateJob(ctx, &store.Schedule{ID: "j1", Name: "j1", Cron: "* * * * *", Prompt: "p", Enabled: true, CreatedAt: time.Now()}))
	_, err := s.LogStart(ctx, "j1")
	require.NoError(t, err)

	n, err := s.ReapOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	last, err := s.GetLastExecution(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, store.LogFailed, last.Status)
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := &store.SessionRecord{ChannelKey: "discord:g1:c1:u1", SessionID: "sess-abc", TotalTokens: 100, CreatedAt: time.Now(), LastActiveAt: time.Now()}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, rec.ChannelKey)
	require.NoError(t, err)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, 100, got.TotalTokens)

	require.NoError(t, s.Delete(ctx, rec.ChannelKey))
	got, err = s.Get(ctx, rec.ChannelKey)
	require.NoError(t, err)
	assert.Nil(t, got)
}
