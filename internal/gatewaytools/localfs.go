package gatewaytools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// LocalFilesystem backs the Read/Write/Grep/Glob tools against the host
// filesystem, restricted to a workspace root. Grounded on goclaw's
// internal/tools/filesystem.go resolvePath idiom: symlinks are resolved
// to their canonical form before the workspace-escape check so a
// symlink planted inside the workspace cannot be used to read or write
// outside it.
type LocalFilesystem struct {
	workspace string
	restrict  bool
}

// NewLocalFilesystem builds a Filesystem rooted at workspace. restrict
// controls whether resolved paths are required to stay inside it.
func NewLocalFilesystem(workspace string, restrict bool) *LocalFilesystem {
	return &LocalFilesystem{workspace: workspace, restrict: restrict}
}

func (f *LocalFilesystem) resolve(path string) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Clean(filepath.Join(f.workspace, path))
	}
	if !f.restrict {
		return resolved, nil
	}

	absWorkspace, _ := filepath.Abs(f.workspace)
	wsReal, err := filepath.EvalSymlinks(absWorkspace)
	if err != nil {
		wsReal = absWorkspace
	}

	absResolved, _ := filepath.Abs(resolved)
	real, err := filepath.EvalSymlinks(absResolved)
	if err != nil {
		// Path doesn't exist yet (e.g. a write target): validate the
		// clean form directly against the workspace boundary.
		if !isPathInside(absResolved, wsReal) {
			return "", fmt.Errorf("access denied: path %s escapes workspace", path)
		}
		return absResolved, nil
	}
	if !isPathInside(real, wsReal) {
		return "", fmt.Errorf("access denied: path %s escapes workspace", path)
	}
	return real, nil
}

func isPathInside(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// Read satisfies Filesystem.
func (f *LocalFilesystem) Read(ctx context.Context, path string) (string, error) {
	resolved, err := f.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Write satisfies Filesystem, creating parent directories as needed.
func (f *LocalFilesystem) Write(ctx context.Context, path, content string) error {
	resolved, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fmt.Errorf("write %s: mkdir: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

const grepMaxMatches = 200

// Grep satisfies Filesystem: a recursive, line-oriented regex search
// rooted at path (workspace-relative; empty means the whole workspace),
// capped at grepMaxMatches so a broad pattern never floods a turn.
func (f *LocalFilesystem) Grep(ctx context.Context, pattern, path string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("grep: invalid pattern: %w", err)
	}
	root, err := f.resolve(path)
	if err != nil {
		return nil, err
	}

	var matches []string
	walkErr := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || len(matches) >= grepMaxMatches {
			return nil
		}
		file, openErr := os.Open(p)
		if openErr != nil {
			return nil
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for lineNo := 1; scanner.Scan() && len(matches) < grepMaxMatches; lineNo++ {
			if re.MatchString(scanner.Text()) {
				rel, _ := filepath.Rel(f.workspace, p)
				matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, lineNo, scanner.Text()))
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("grep: walk: %w", walkErr)
	}
	return matches, nil
}

// Glob satisfies Filesystem, resolving pattern relative to the workspace
// root via filepath.Glob (no ** support, matching Go's stdlib glob).
func (f *LocalFilesystem) Glob(ctx context.Context, pattern string) ([]string, error) {
	full := pattern
	if !filepath.IsAbs(pattern) {
		full = filepath.Join(f.workspace, pattern)
	}
	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		rel, err := filepath.Rel(f.workspace, m)
		if err != nil {
			rel = m
		}
		out[i] = rel
	}
	return out, nil
}
