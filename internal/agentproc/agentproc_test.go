package agentproc

import (
	"testing"

	"github.com/mama-run/mama/internal/merr"
	"github.com/stretchr/testify/assert"
)

func TestBuildClaudeArgsOmitsEmptyToolFlags(t *testing.T) {
	args := BuildClaudeArgs(nil, nil, "")
	assert.NotContains(t, args, "--allowedTools")
	assert.NotContains(t, args, "--disallowedTools")
	assert.NotContains(t, args, "--add-dir")
}

func TestBuildClaudeArgsEmitsSpaceSeparatedToolNames(t *testing.T) {
	args := BuildClaudeArgs([]string{"Read", "Grep"}, []string{"Bash"}, "")
	assert.Contains(t, args, "--allowedTools")
	idx := indexOf(args, "--allowedTools")
	assert.Equal(t, "Read", args[idx+1])
	assert.Equal(t, "Grep", args[idx+2])

	didx := indexOf(args, "--disallowedTools")
	assert.Equal(t, "Bash", args[didx+1])
}

func TestBuildClaudeArgsResumesSession(t *testing.T) {
	args := BuildClaudeArgs(nil, nil, "sess-123")
	idx := indexOf(args, "--resume")
	assert.Equal(t, "sess-123", args[idx+1])
}

func TestBuildClaudeArgsNeverEmitsAddDir(t *testing.T) {
	args := BuildClaudeArgs([]string{"*"}, []string{"*"}, "s")
	for _, a := range args {
		assert.NotEqual(t, "--add-dir", a)
	}
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestClassifyClaudeErrorRateLimit(t *testing.T) {
	err := classifyClaudeError("429 rate limit exceeded")
	assert.True(t, merr.Is(err, merr.RateLimit))
}

func TestClassifyClaudeErrorRetryable(t *testing.T) {
	err := classifyClaudeError("upstream returned 503 server error")
	assert.True(t, merr.Retryable(err))
}

func TestClassifyClaudeErrorDefaultsToAPIError(t *testing.T) {
	err := classifyClaudeError("malformed response")
	assert.True(t, merr.Is(err, merr.APIError))
}

func TestNewCodexAppServerProcessStartsDead(t *testing.T) {
	p := NewCodexAppServerProcess(".")
	assert.Equal(t, int32(codexDead), p.state.Load())
}
