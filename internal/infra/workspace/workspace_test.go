package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsMissingRoots(t *testing.T) {
	_, err := New()
	require.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(file)
	require.Error(t, err)
}

func TestContainment(t *testing.T) {
	ws, err := New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	roots := ws.Directories()
	require.Len(t, roots, 2)

	assert.True(t, ws.IsPathWithinWorkspace(roots[0]))
	assert.True(t, ws.IsPathWithinWorkspace(filepath.Join(roots[1], "a", "b.txt")))
	assert.False(t, ws.IsPathWithinWorkspace(filepath.Join(roots[0], "..", "escape.txt")))
	assert.False(t, ws.IsPathWithinWorkspace("relative/path.txt"))

	root, ok := ws.RootFor(filepath.Join(roots[1], "x"))
	require.True(t, ok)
	assert.Equal(t, roots[1], root)
}

func TestContainmentRejectsSymlinkEscape(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)
	root := ws.Directories()[0]
	outside := t.TempDir()

	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	assert.False(t, ws.IsPathWithinWorkspace(filepath.Join(link, "secret.txt")))
}

func TestDirectoriesReturnsCopy(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)
	dirs := ws.Directories()
	dirs[0] = "/tampered"
	assert.NotEqual(t, "/tampered", ws.Directories()[0])
}

func TestIgnoreFilter(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, GitIgnoreFile), []byte("*.tmp\nbuild/\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, GeminiIgnoreFile), []byte("secrets.env\n"), 0o644))

	filter := NewIgnoreFilter(4)
	assert.True(t, filter.IsGitIgnored(root, filepath.Join(root, "scratch.tmp")))
	assert.True(t, filter.IsGitIgnored(root, filepath.Join(root, "build", "out.bin")))
	assert.True(t, filter.IsGitIgnored(root, filepath.Join(root, ".git", "HEAD")))
	assert.False(t, filter.IsGitIgnored(root, filepath.Join(root, "main.go")))

	assert.True(t, filter.IsGeminiIgnored(root, filepath.Join(root, "secrets.env")))
	assert.False(t, filter.IsGeminiIgnored(root, filepath.Join(root, "scratch.tmp")))
}

func TestIgnoreFilterReloadsOnChange(t *testing.T) {
	root := t.TempDir()
	gi := filepath.Join(root, GitIgnoreFile)
	filter := NewIgnoreFilter(4)

	assert.False(t, filter.IsGitIgnored(root, filepath.Join(root, "a.log")))

	require.NoError(t, os.WriteFile(gi, []byte("*.log\n"), 0o644))
	assert.True(t, filter.IsGitIgnored(root, filepath.Join(root, "a.log")))

	require.NoError(t, os.WriteFile(gi, []byte("*.txt\n"), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(gi, later, later))
	assert.False(t, filter.IsGitIgnored(root, filepath.Join(root, "a.log")))
	assert.True(t, filter.IsGitIgnored(root, filepath.Join(root, "a.txt")))
}
