package streaming

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	edits   []string
	errText string
	created bool
}

func (f *fakeSink) CreatePlaceholder(ctx context.Context) (string, error) {
	f.created = true
	return "msg-1", nil
}
func (f *fakeSink) EditMessage(ctx context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}
func (f *fakeSink) ReplaceWithError(ctx context.Context, id, text string) error {
	f.errText = text
	return nil
}

func TestManagerThrottlesEdits(t *testing.T) {
	sink := &fakeSink{}
	m := New(sink, 50*time.Millisecond, nil)
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.OnDelta(context.Background(), "a"))
	require.NoError(t, m.OnDelta(context.Background(), "b"))
	require.NoError(t, m.OnDelta(context.Background(), "c"))

	sink.mu.Lock()
	edits := len(sink.edits)
	sink.mu.Unlock()
	assert.Equal(t, 1, edits)

	require.NoError(t, m.Flush(context.Background()))
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "abc", sink.edits[len(sink.edits)-1])
}

func TestManagerReplacesWithSanitizedErrorNotice(t *testing.T) {
	sink := &fakeSink{}
	m := New(sink, time.Millisecond, nil)
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.OnError(context.Background(), errors.New("token=sk-abc123\nstack trace here")))
	assert.Contains(t, sink.errText, "Something went wrong")
	assert.NotContains(t, sink.errText, "stack trace")
}
