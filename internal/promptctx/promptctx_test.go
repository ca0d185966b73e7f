package promptctx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectKeywordsEmptyInput(t *testing.T) {
	assert.Equal(t, "", DetectKeywords(""))
}

// Boundary behavior 10: every keyword occurrence inside a fence is ignored.
func TestDetectKeywordsIgnoresFencedOccurrences(t *testing.T) {
	text := "run this: ```ultrawork mode``` and also `search mode` please"
	assert.Equal(t, "", DetectKeywords(text))
}

func TestDetectKeywordsMatchesUltrawork(t *testing.T) {
	out := DetectKeywords("ultrawork: fix bug")
	assert.Contains(t, out, "ULTRAWORK MODE ACTIVATED")
}

func TestDetectKeywordsJoinsMultipleModes(t *testing.T) {
	out := DetectKeywords("ultrawork and search mode together")
	assert.Contains(t, out, "ULTRAWORK MODE ACTIVATED")
	assert.Contains(t, out, "SEARCH MODE ACTIVATED")
	assert.Contains(t, out, "---")
}

// Invariant 6: matchesContext(null, any) = true; matchesContext(a, nil) = true.
func TestMatchesContextNilCases(t *testing.T) {
	assert.True(t, MatchesContext(nil, &MatchContext{AgentID: "x"}))
	assert.True(t, MatchesContext(&AppliesTo{AgentID: []string{"x"}}, nil))
}

func TestMatchesContextANDAcrossFieldsORWithinField(t *testing.T) {
	a := &AppliesTo{AgentID: []string{"a1", "a2"}, Tier: []string{"3"}}
	assert.True(t, MatchesContext(a, &MatchContext{AgentID: "a2", Tier: "3"}))
	assert.False(t, MatchesContext(a, &MatchContext{AgentID: "a2", Tier: "1"}))
	assert.False(t, MatchesContext(a, &MatchContext{AgentID: "", Tier: "3"}))
}

func TestParseFrontmatterEmptyArraysAreUniversal(t *testing.T) {
	content := "---\napplies_to:\n  agent_id: []\n  tier: []\n---\nbody text"
	appliesTo, body := ParseFrontmatter(content)
	assert.Nil(t, appliesTo)
	assert.Equal(t, "body text", body)
}

func TestParseFrontmatterMalformedYAMLTreatedAsNone(t *testing.T) {
	content := "---\napplies_to: [this is not: valid: yaml\n---\nbody"
	appliesTo, body := ParseFrontmatter(content)
	assert.Nil(t, appliesTo)
	assert.Equal(t, content, body)
}

// Invariant 5: entries sorted by ascending distance, hashes pairwise distinct.
func TestDeduplicatorSortedAndHashUnique(t *testing.T) {
	d := NewDeduplicator()
	d.Add("a.ts", "X", 0.5)
	d.Add("b.ts", "Y", 0.1)
	d.Add("c.ts", "X", 0.3) // same content as a.ts, smaller distance -> replaces

	entries := d.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, 0.1, entries[0].Distance)
	assert.Equal(t, 0.3, entries[1].Distance)

	hashes := map[string]bool{}
	for _, e := range entries {
		assert.False(t, hashes[e.ContentHash])
		hashes[e.ContentHash] = true
	}
}

// S5: dedup by symlink.
func TestDeduplicatorSymlinkCollapsesToOneEntry(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.ts")
	require.NoError(t, os.WriteFile(real, []byte("content"), 0o644))
	link := filepath.Join(dir, "link.ts")
	require.NoError(t, os.Symlink(real, link))

	d := NewDeduplicator()
	d.Add(real, "X", 0.3)
	d.Add(link, "X", 0.5)

	entries := d.GetEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, 0.3, entries[0].Distance)
}

// Boundary behavior 9: the project root's own AGENTS.md is never included.
func TestAgentsMDExcludesRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("ROOT"), 0o644))

	pkg := filepath.Join(root, "packages", "sub")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "packages", "AGENTS.md"), []byte("pkg"), 0o644))

	cache := NewAgentsMDCache()
	content := cache.Discover(pkg)
	assert.Equal(t, "pkg", content)
}

func TestAgentsMDReturnsEmptyWhenOnlyRootHasIt(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("ROOT"), 0o644))

	cache := NewAgentsMDCache()
	assert.Equal(t, "", cache.Discover(root))
}

// S6: keyword + rules injection end to end.
func TestEnhanceEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))

	pkgDir := filepath.Join(root, "packages")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "AGENTS.md"), []byte("pkg"), 0o644))

	rulesDir := filepath.Join(root, ".claude", "rules")
	require.NoError(t, os.MkdirAll(rulesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "style.md"), []byte("rule"), 0o644))

	e := NewEnhancer()
	result := e.Enhance("ultrawork: fix bug", pkgDir, nil)

	assert.Contains(t, result.KeywordInstructions, "ULTRAWORK MODE ACTIVATED")
	assert.Contains(t, result.AgentsContent, "pkg")
	assert.Contains(t, result.RulesContent, "rule")
}
