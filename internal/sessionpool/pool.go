package sessionpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mama-run/mama/internal/store"
)

// Session is the in-memory projection of spec §3's Session entity.
type Session struct {
	ID           string
	ChannelKey   string
	TotalTokens  int
	CreatedAt    time.Time
	LastActiveAt time.Time

	ContextWindow    int
	CompactionCount  int
	LastPromptTokens int
}

// GetResult is getSession's return value.
type GetResult struct {
	SessionID string
	IsNew     bool
}

// TokenUpdate is updateTokens' return value.
type TokenUpdate struct {
	TotalTokens   int
	NearThreshold bool
}

// Pool is the SessionPool component: reuses a Session per channelKey and
// persists it through an optional store.SessionStore so restarts don't
// orphan a live subprocess session id.
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*Session

	persist            store.SessionStore // optional
	nearThresholdRatio float64
	defaultContextSize int
	idleTimeout        time.Duration
}

// New builds a Pool. persist may be nil for a purely in-memory pool (e.g.
// tests or `mama run` one-shot invocations).
func New(persist store.SessionStore, nearThresholdRatio float64, defaultContextSize int, idleTimeout time.Duration) *Pool {
	if nearThresholdRatio <= 0 {
		nearThresholdRatio = 0.85
	}
	if defaultContextSize <= 0 {
		defaultContextSize = 200_000
	}
	return &Pool{
		sessions:           make(map[string]*Session),
		persist:            persist,
		nearThresholdRatio: nearThresholdRatio,
		defaultContextSize: defaultContextSize,
		idleTimeout:        idleTimeout,
	}
}

// GetSession returns the existing session for key, or creates one.
func (p *Pool) GetSession(ctx context.Context, key string) GetResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[key]; ok {
		s.LastActiveAt = time.Now()
		return GetResult{SessionID: s.ID, IsNew: false}
	}

	if p.persist != nil {
		if rec, err := p.persist.Get(ctx, key); err == nil && rec != nil {
			s := &Session{
				ID: rec.SessionID, ChannelKey: key, TotalTokens: rec.TotalTokens,
				CreatedAt: rec.CreatedAt, LastActiveAt: time.Now(),
				ContextWindow: p.defaultContextSize,
			}
			p.sessions[key] = s
			return GetResult{SessionID: s.ID, IsNew: false}
		}
	}

	s := &Session{
		ID: uuid.NewString(), ChannelKey: key,
		CreatedAt: time.Now(), LastActiveAt: time.Now(),
		ContextWindow: p.defaultContextSize,
	}
	p.sessions[key] = s
	p.flushLocked(ctx, s)
	return GetResult{SessionID: s.ID, IsNew: true}
}

// UpdateTokens accumulates usage and reports whether the session is near
// its context-window threshold, per spec §4.5 / Open Question #1.
func (p *Pool) UpdateTokens(ctx context.Context, key string, input, output int) TokenUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[key]
	if !ok {
		s = &Session{ID: uuid.NewString(), ChannelKey: key, CreatedAt: time.Now(), ContextWindow: p.defaultContextSize}
		p.sessions[key] = s
	}
	s.TotalTokens += input + output
	s.LastPromptTokens = input + output
	s.LastActiveAt = time.Now()
	p.flushLocked(ctx, s)

	near := float64(s.TotalTokens) >= float64(s.ContextWindow)*p.nearThresholdRatio
	return TokenUpdate{TotalTokens: s.TotalTokens, NearThreshold: near}
}

// Reset forgets a session's token total and subprocess id (e.g. after
// compaction or an explicit reset tool call), assigning a fresh id.
func (p *Pool) Reset(ctx context.Context, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[key]
	if !ok {
		return
	}
	s.ID = uuid.NewString()
	s.TotalTokens = 0
	s.CompactionCount++
	p.flushLocked(ctx, s)
}

// Evict removes a session entirely (idle expiration or explicit teardown).
func (p *Pool) Evict(ctx context.Context, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, key)
	if p.persist != nil {
		_ = p.persist.Delete(ctx, key)
	}
}

// SweepIdle evicts sessions that have been inactive past the configured
// idle timeout and returns the evicted channelKeys.
func (p *Pool) SweepIdle(ctx context.Context) []string {
	if p.idleTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-p.idleTimeout)
	p.mu.Lock()
	var evicted []string
	for key, s := range p.sessions {
		if s.LastActiveAt.Before(cutoff) {
			delete(p.sessions, key)
			evicted = append(evicted, key)
		}
	}
	p.mu.Unlock()
	for _, key := range evicted {
		if p.persist != nil {
			_ = p.persist.Delete(ctx, key)
		}
	}
	return evicted
}

// caller must hold p.mu
func (p *Pool) flushLocked(ctx context.Context, s *Session) {
	if p.persist == nil {
		return
	}
	_ = p.persist.Put(ctx, &store.SessionRecord{
		ChannelKey: s.ChannelKey, SessionID: s.ID, TotalTokens: s.TotalTokens,
		CreatedAt: s.CreatedAt, LastActiveAt: s.LastActiveAt,
	})
}
