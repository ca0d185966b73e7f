package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mama-run/mama/internal/memoryapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMemory struct {
	mu      sync.Mutex
	saved   []memoryapi.SaveRequest
	results memoryapi.SuggestResult
	failAll bool
}

func (f *fakeMemory) Save(ctx context.Context, req memoryapi.SaveRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, req)
	return nil
}
func (f *fakeMemory) SaveCheckpoint(ctx context.Context, summary string, openFiles, nextSteps []string, recentConversation string) error {
	return nil
}
func (f *fakeMemory) ListDecisions(ctx context.Context, limit int) ([]memoryapi.Decision, error) {
	if f.failAll {
		return nil, assertErr{}
	}
	return f.results.Results, nil
}
func (f *fakeMemory) Suggest(ctx context.Context, query string, limit int) (memoryapi.SuggestResult, error) {
	if f.failAll {
		return memoryapi.SuggestResult{}, assertErr{}
	}
	return f.results, nil
}
func (f *fakeMemory) UpdateOutcome(ctx context.Context, id string, req memoryapi.UpdateOutcomeRequest) error {
	return nil
}
func (f *fakeMemory) LoadCheckpoint(ctx context.Context) (memoryapi.Checkpoint, error) {
	return memoryapi.Checkpoint{}, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

// S4: history with one already-saved decision and one new one.
func TestPreCompactDetectsOnlyUnsavedDecisions(t *testing.T) {
	mem := &fakeMemory{results: memoryapi.SuggestResult{
		Results: []memoryapi.Decision{{Topic: "JWT", Decision: "use JWT tokens for auth"}},
	}}
	h := NewPreCompactHandler(mem, nil)

	history := []string{
		"decided: use JWT tokens for auth",
		"approach: REST API design",
	}
	res := h.Process(context.Background(), history)

	require.Len(t, res.UnsavedDecisions, 1)
	assert.Equal(t, "REST API design", res.UnsavedDecisions[0])
	assert.Contains(t, res.CompactionPrompt, "## User Requests")
	assert.Contains(t, res.CompactionPrompt, "## Unsaved Decisions")
	assert.Contains(t, res.CompactionPrompt, "REST API design")
	assert.NotEmpty(t, res.WarningMessage)
}

func TestPreCompactNoWarningWhenAllSaved(t *testing.T) {
	mem := &fakeMemory{results: memoryapi.SuggestResult{
		Results: []memoryapi.Decision{{Topic: "x", Decision: "use JWT tokens for auth"}},
	}}
	h := NewPreCompactHandler(mem, nil)
	res := h.Process(context.Background(), []string{"decided: use JWT tokens for auth"})
	assert.Empty(t, res.UnsavedDecisions)
	assert.Empty(t, res.WarningMessage)
}

func TestPreCompactTreatsMemoryErrorAsNothingSaved(t *testing.T) {
	mem := &fakeMemory{failAll: true}
	h := NewPreCompactHandler(mem, nil)
	res := h.Process(context.Background(), []string{"decided: retry with exponential backoff"})
	assert.Len(t, res.UnsavedDecisions, 1)
}

func TestPreCompactIgnoresShortLines(t *testing.T) {
	h := NewPreCompactHandler(&fakeMemory{}, nil)
	res := h.Process(context.Background(), []string{"chose: ok"})
	assert.Empty(t, res.UnsavedDecisions)
}

func TestPostToolIgnoresLowPriorityPaths(t *testing.T) {
	mem := &fakeMemory{}
	h := NewPostToolHandler(context.Background(), mem, nil)
	h.ProcessInBackground("Write", "/project/docs/readme.md", "app.get('/x', handler)")
	waitEmpty(t, h)
	mem.mu.Lock()
	defer mem.mu.Unlock()
	assert.Empty(t, mem.saved)
}

func TestPostToolExtractsAndSavesRESTEndpoint(t *testing.T) {
	mem := &fakeMemory{}
	h := NewPostToolHandler(context.Background(), mem, nil)
	h.ProcessInBackground("Write", "/project/src/routes.ts", "app.post('/api/users', createUser)")
	waitEmpty(t, h)

	mem.mu.Lock()
	defer mem.mu.Unlock()
	require.NotEmpty(t, mem.saved)
	assert.Contains(t, mem.saved[0].Topic, "POST /api/users")
}

func TestPostToolIgnoresNonEditTools(t *testing.T) {
	mem := &fakeMemory{}
	h := NewPostToolHandler(context.Background(), mem, nil)
	h.ProcessInBackground("mama_search", "/project/src/routes.ts", "app.post('/api/users', createUser)")
	waitEmpty(t, h)
	mem.mu.Lock()
	defer mem.mu.Unlock()
	assert.Empty(t, mem.saved)
}

func waitEmpty(t *testing.T, h *PostToolHandler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		empty := len(h.queue) == 0
		h.mu.Unlock()
		if empty {
			time.Sleep(20 * time.Millisecond)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("queue never drained")
}
