package gatewaytools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFilesystemWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFilesystem(dir, true)

	require.NoError(t, fs.Write(context.Background(), "notes/a.txt", "hello world"))
	got, err := fs.Read(context.Background(), "notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestLocalFilesystemRejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFilesystem(dir, true)

	outside := filepath.Join(filepath.Dir(dir), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0644))

	_, err := fs.Read(context.Background(), "../outside.txt")
	assert.Error(t, err)
}

func TestLocalFilesystemGrepFindsMatches(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFilesystem(dir, true)
	require.NoError(t, fs.Write(context.Background(), "a.go", "func main() {}\n// TODO fix\n"))

	matches, err := fs.Grep(context.Background(), "TODO", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0], "a.go:2:")
}

func TestLocalFilesystemGlobMatchesExtension(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFilesystem(dir, true)
	require.NoError(t, fs.Write(context.Background(), "x.md", "# x"))
	require.NoError(t, fs.Write(context.Background(), "y.txt", "y"))

	matches, err := fs.Glob(context.Background(), "*.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.md"}, matches)
}
