package lane

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSameKeySerialized(t *testing.T) {
	m := New()
	var order []int
	var running, maxRunning int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, _ = m.EnqueueWithSession(context.Background(), "k1", func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				order = append(order, i)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
				return nil, nil
			})
		}()
		time.Sleep(200 * time.Microsecond) // encourage near-enqueue-order scheduling
	}
	wg.Wait()
	assert.Len(t, order, 10)
	assert.Equal(t, 1, maxRunning)
}

func TestDistinctKeysParallel(t *testing.T) {
	m := New()
	start := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		m.EnqueueWithSession(context.Background(), "a", func(ctx context.Context) (interface{}, error) {
			start <- struct{}{}
			<-release
			return nil, nil
		})
	}()
	go func() {
		defer wg.Done()
		<-start
		m.EnqueueWithSession(context.Background(), "b", func(ctx context.Context) (interface{}, error) {
			close(release)
			return nil, nil
		})
	}()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lanes for distinct keys did not run in parallel")
	}
}

func TestCancelledBeforeDequeueDropsTask(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	_, err := m.EnqueueWithSession(ctx, "k", func(ctx context.Context) (interface{}, error) {
		ran = true
		return nil, nil
	})
	assert.Error(t, err)
	assert.False(t, ran)
}
