// Package lane implements LaneManager (spec §4.5): a per-channelKey FIFO
// that serializes operations sharing a key while letting distinct keys run
// fully in parallel, via one worker goroutine + buffered channel per key —
// the structured-concurrency mapping spec §9 calls for in place of
// cooperative coroutine scheduling.
package lane

import (
	"context"
	"sync"
)

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) (interface{}, error)
	done chan result
}

type result struct {
	val interface{}
	err error
}

type lane struct {
	tasks chan task
}

// Manager owns one lane per key, created lazily and never torn down for
// the process lifetime (a bounded system: channel keys are finite in
// practice, unlike the fire-and-forget worker pool in internal/handlers).
type Manager struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{lanes: make(map[string]*lane)}
}

func (m *Manager) laneFor(key string) *lane {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lanes[key]
	if ok {
		return l
	}
	l = &lane{tasks: make(chan task, 64)}
	m.lanes[key] = l
	go l.run()
	return l
}

func (l *lane) run() {
	for t := range l.tasks {
		if t.ctx.Err() != nil {
			t.done <- result{err: t.ctx.Err()}
			continue
		}
		v, err := t.fn(t.ctx)
		t.done <- result{val: v, err: err}
	}
}

// EnqueueWithSession runs fn serialized against every other call sharing
// key. A ctx cancellation before fn starts drops the task without running
// it; an already-running fn always runs to completion.
func (m *Manager) EnqueueWithSession(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	l := m.laneFor(key)
	t := task{ctx: ctx, fn: fn, done: make(chan result, 1)}

	select {
	case l.tasks <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-t.done:
		return r.val, r.err
	case <-ctx.Done():
		// The task may still run (already dequeued); we just stop waiting.
		return nil, ctx.Err()
	}
}
