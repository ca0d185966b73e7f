package cronsched

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-run/mama/internal/store"
	"github.com/mama-run/mama/internal/store/sqlite"
	"github.com/mama-run/mama/pkg/protocol"
)

func newTestScheduler(t *testing.T, execute ExecuteFunc) (*Scheduler, store.ScheduleStore) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "cron.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	sched := New(st, execute, Options{JobTimeout: time.Second}, nil)
	return sched, st
}

// S1: cron single-flight — RunNow fired twice back-to-back yields exactly
// one started+completed pair and one skipped.
func TestRunNowSingleFlight(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	sched, _ := newTestScheduler(t, func(ctx context.Context, s *store.Schedule) (string, error) {
		started <- struct{}{}
		<-release
		return "pong", nil
	})
	defer sched.Shutdown()

	require.NoError(t, sched.AddJob(ctx, store.Schedule{ID: "hb", Name: "heartbeat", Cron: "0 0 1 1 *", Prompt: "ping", Enabled: true, CreatedAt: time.Now()}))

	go func() { _ = sched.RunNow("hb") }()
	<-started // first run is now inside the lock

	err := sched.RunNow("hb")
	require.NoError(t, err)

	close(release)

	var sawStarted, sawCompleted, sawSkipped int
	timeout := time.After(2 * time.Second)
	for sawStarted < 1 || sawCompleted < 1 || sawSkipped < 1 {
		select {
		case ev := <-sched.Events():
			switch ev.Kind {
			case protocol.EventStarted:
				sawStarted++
			case protocol.EventCompleted:
				sawCompleted++
			case protocol.EventSkipped:
				sawSkipped++
			}
		case <-timeout:
			t.Fatalf("timed out waiting for events, started=%d completed=%d skipped=%d", sawStarted, sawCompleted, sawSkipped)
		}
	}
	assert.Equal(t, 1, sawStarted)
	assert.Equal(t, 1, sawCompleted)
	assert.Equal(t, 1, sawSkipped)
}

func TestAddJobRejectsInvalidCron(t *testing.T) {
	sched, _ := newTestScheduler(t, func(ctx context.Context, s *store.Schedule) (string, error) { return "", nil })
	defer sched.Shutdown()
	err := sched.AddJob(context.Background(), store.Schedule{ID: "bad", Cron: "not a cron", Enabled: true, CreatedAt: time.Now()})
	require.Error(t, err)
}

func TestAddJobRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	sched, _ := newTestScheduler(t, func(ctx context.Context, s *store.Schedule) (string, error) { return "", nil })
	defer sched.Shutdown()
	require.NoError(t, sched.AddJob(ctx, store.Schedule{ID: "dup", Cron: "0 0 1 1 *", Enabled: true, CreatedAt: time.Now()}))
	err := sched.AddJob(ctx, store.Schedule{ID: "dup", Cron: "0 0 1 1 *", Enabled: true, CreatedAt: time.Now()})
	require.Error(t, err)
}

func TestRemoveJobNotFound(t *testing.T) {
	sched, _ := newTestScheduler(t, func(ctx context.Context, s *store.Schedule) (string, error) { return "", nil })
	defer sched.Shutdown()
	err := sched.RemoveJob(context.Background(), "nope")
	require.Error(t, err)
}
