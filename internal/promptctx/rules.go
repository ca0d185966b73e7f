package promptctx

import (
	"os"
	"path/filepath"
	"strings"
)

const copilotInstructionsFile = ".copilot-instructions"
const rulesDirName = ".claude/rules"

// DiscoverRules reads .copilot-instructions (if non-empty) at the project
// root plus every *.md under .claude/rules/ at the root and at each level
// walking upward from workspacePath, per spec §4.7. Matching rule bodies
// are filtered by ctx before joining; an unmatched frontmatter simply
// drops that file's content. Returns the joined rule text.
func DiscoverRules(workspacePath string, ctx *MatchContext) string {
	root := findProjectRoot(workspacePath)

	var parts []string
	if content := readNonEmpty(filepath.Join(root, copilotInstructionsFile)); content != "" {
		parts = append(parts, content)
	}

	seen := make(map[string]bool)
	for _, dir := range candidateDirs(workspacePath, root) {
		rulesDir := filepath.Join(dir, rulesDirName)
		entries, err := os.ReadDir(rulesDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			path := filepath.Join(rulesDir, e.Name())
			if seen[path] {
				continue
			}
			seen[path] = true
			raw := readNonEmpty(path)
			if raw == "" {
				continue
			}
			appliesTo, body := ParseFrontmatter(raw)
			if !MatchesContext(appliesTo, ctx) {
				continue
			}
			if strings.TrimSpace(body) == "" {
				continue
			}
			parts = append(parts, strings.TrimSpace(body))
		}
	}

	return strings.Join(parts, "\n---\n")
}

// candidateDirs returns root first, then every directory walking upward
// from workspacePath to (and excluding a duplicate of) root.
func candidateDirs(workspacePath, root string) []string {
	dirs := []string{root}
	dir := workspacePath
	for dir != root {
		dirs = append(dirs, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dirs
}

func readNonEmpty(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if strings.TrimSpace(string(data)) == "" {
		return ""
	}
	return string(data)
}
