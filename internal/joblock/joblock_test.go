package joblock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExclusive(t *testing.T) {
	l := New()
	require.True(t, l.Acquire("j1", 0))
	assert.False(t, l.Acquire("j1", 0))
	assert.True(t, l.Release("j1"))
	assert.True(t, l.Acquire("j1", 0))
}

func TestAcquireConcurrentSingleWinner(t *testing.T) {
	l := New()
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire("hb", 0) {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
}

func TestTimeoutExpires(t *testing.T) {
	l := New()
	require.True(t, l.Acquire("j1", 10*time.Millisecond))
	assert.False(t, l.Acquire("j1", 0))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Acquire("j1", 0))
}

func TestWithLockReleasesOnPanicFreePath(t *testing.T) {
	l := New()
	ran, err := l.WithLock("j1", 0, func() error { return nil })
	assert.True(t, ran)
	assert.NoError(t, err)
	assert.False(t, l.IsLocked("j1"))
}

func TestWithLockSkipsWhenHeld(t *testing.T) {
	l := New()
	require.True(t, l.Acquire("j1", 0))
	ran, err := l.WithLock("j1", 0, func() error { return nil })
	assert.False(t, ran)
	assert.NoError(t, err)
}
