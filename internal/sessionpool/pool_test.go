package sessionpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSessionReusesID(t *testing.T) {
	ctx := context.Background()
	p := New(nil, 0, 0, 0)
	key := BuildChannelKey("discord", "g1", "c1", "u1")

	r1 := p.GetSession(ctx, key)
	assert.True(t, r1.IsNew)

	r2 := p.GetSession(ctx, key)
	assert.False(t, r2.IsNew)
	assert.Equal(t, r1.SessionID, r2.SessionID)
}

func TestUpdateTokensNearThreshold(t *testing.T) {
	ctx := context.Background()
	p := New(nil, 0.5, 1000, 0)
	key := BuildChannelKey("cli", "", "", "")
	p.GetSession(ctx, key)

	u := p.UpdateTokens(ctx, key, 200, 200)
	assert.Equal(t, 400, u.TotalTokens)
	assert.False(t, u.NearThreshold)

	u = p.UpdateTokens(ctx, key, 100, 0)
	assert.Equal(t, 500, u.TotalTokens)
	assert.True(t, u.NearThreshold)
}

func TestResetClearsTokensAndReassignsID(t *testing.T) {
	ctx := context.Background()
	p := New(nil, 0, 0, 0)
	key := BuildChannelKey("cli", "", "", "")
	r1 := p.GetSession(ctx, key)
	p.UpdateTokens(ctx, key, 1000, 1000)

	p.Reset(ctx, key)
	r2 := p.GetSession(ctx, key)
	assert.NotEqual(t, r1.SessionID, r2.SessionID)

	u := p.UpdateTokens(ctx, key, 0, 0)
	assert.Equal(t, 0, u.TotalTokens)
}

func TestSweepIdleEvictsStaleSessions(t *testing.T) {
	ctx := context.Background()
	p := New(nil, 0, 0, time.Millisecond)
	key := BuildChannelKey("cli", "", "", "")
	p.GetSession(ctx, key)
	time.Sleep(5 * time.Millisecond)

	evicted := p.SweepIdle(ctx)
	assert.Equal(t, []string{key}, evicted)

	r := p.GetSession(ctx, key)
	assert.True(t, r.IsNew)
}
