package promptctx

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

const agentsFileName = "AGENTS.md"
const maxDiscoveryDepth = 5
const agentsCacheTTL = 60 * time.Second

var projectRootMarkers = []string{".git", "package.json", "go.mod", "pyproject.toml"}

// isProjectRoot reports whether dir contains one of the conventional
// project-root markers.
func isProjectRoot(dir string) bool {
	for _, marker := range projectRootMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// findProjectRoot walks upward from start looking for a root marker,
// stopping at the filesystem root if none is found.
func findProjectRoot(start string) string {
	dir := start
	for {
		if isProjectRoot(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

type agentsCacheEntry struct {
	content   string
	cachedAt  time.Time
}

// AgentsMDCache discovers the nearest non-root AGENTS.md above a workspace
// path and caches it for agentsCacheTTL, per spec §4.7.
type AgentsMDCache struct {
	mu    sync.Mutex
	cache map[string]agentsCacheEntry
}

// NewAgentsMDCache returns an empty cache.
func NewAgentsMDCache() *AgentsMDCache {
	return &AgentsMDCache{cache: make(map[string]agentsCacheEntry)}
}

// Discover returns the content of the nearest AGENTS.md found walking
// upward from workspacePath, skipping the project root's own AGENTS.md
// (testable property 9), up to maxDiscoveryDepth levels. Returns "" if
// none is found.
func (c *AgentsMDCache) Discover(workspacePath string) string {
	c.mu.Lock()
	if e, ok := c.cache[workspacePath]; ok && time.Since(e.cachedAt) < agentsCacheTTL {
		c.mu.Unlock()
		return e.content
	}
	c.mu.Unlock()

	root := findProjectRoot(workspacePath)
	content := discoverAgentsMD(workspacePath, root)

	c.mu.Lock()
	c.cache[workspacePath] = agentsCacheEntry{content: content, cachedAt: time.Now()}
	c.mu.Unlock()
	return content
}

func discoverAgentsMD(workspacePath, root string) string {
	dir := workspacePath
	for depth := 0; depth < maxDiscoveryDepth; depth++ {
		if dir != root {
			path := filepath.Join(dir, agentsFileName)
			if data, err := os.ReadFile(path); err == nil {
				return string(data)
			}
		}
		if dir == root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
