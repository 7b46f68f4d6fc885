package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveWorkspacePathKeepsMissingComponents(t *testing.T) {
	t.Parallel()

	root, err := workspaceRootDir(t.TempDir())
	require.NoError(t, err)

	got, err := resolveWorkspacePath(root, "a/b/new.txt", true)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "a", "b", "new.txt"), got)

	_, err = resolveWorkspacePath(root, "a/b/new.txt", false)
	require.Error(t, err)
}

func TestResolveWorkspacePathRejectsEscapes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := resolveWorkspacePath(root, "../escape.txt", true)
	require.ErrorIs(t, err, ErrPathOutsideWorkspace)

	_, err = resolveWorkspacePath(root, "link/file.txt", true)
	require.ErrorIs(t, err, ErrPathOutsideWorkspace)

	_, err = resolveWorkspacePath(root, "  ", false)
	require.ErrorContains(t, err, "path is required")
}

func TestWithin(t *testing.T) {
	t.Parallel()

	require.True(t, within("/w", "/w"))
	require.True(t, within("/w", "/w/a/b"))
	require.True(t, within("/w", "/w/..a"))
	require.False(t, within("/w", "/"))
	require.False(t, within("/w", "/wx"))
}
