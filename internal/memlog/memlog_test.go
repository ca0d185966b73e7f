package memlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCreatesDailyFileWithHeader(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)

	at := time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)
	require.NoError(t, l.Append(Entry{Kind: KindConversation, ChannelKey: "cli|local", Source: "cli", Summary: "hello", At: at}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "2026-03-05.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# 2026-03-05")
	assert.Contains(t, string(data), "cli|local")
	assert.Contains(t, string(data), "hello")
}

func TestAppendRotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)

	day1 := time.Date(2026, 3, 5, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 6, 0, 1, 0, 0, time.UTC)
	require.NoError(t, l.Append(Entry{Kind: KindEvent, Source: "cron", Summary: "fired", At: day1}))
	require.NoError(t, l.Append(Entry{Kind: KindEvent, Source: "cron", Summary: "fired again", At: day2}))
	require.NoError(t, l.Close())

	_, err := os.Stat(filepath.Join(dir, "2026-03-05.md"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "2026-03-06.md"))
	require.NoError(t, err)
}

func TestLogConversationAndLogEventNeverPanicOnWriteFailure(t *testing.T) {
	// A directory path that collides with a file keeps os.MkdirAll from
	// succeeding, exercising the warn-and-continue path.
	parent := t.TempDir()
	blocker := filepath.Join(parent, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	l := New(filepath.Join(blocker, "memory"), nil)
	l.LogConversation("c1", "cli", "should not panic")
	l.LogEvent("cron", "should not panic")
}
