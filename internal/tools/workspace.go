package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathOutsideWorkspace is returned for tool paths that resolve outside the
// workspace root, symlinks included.
var ErrPathOutsideWorkspace = errors.New("path is outside workspace")

// workspaceRootDir returns the absolute, symlink-free root. An empty root is
// the current directory.
func workspaceRootDir(root string) (string, error) {
	dir := strings.TrimSpace(root)
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve absolute workspace root %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve workspace symlinks %s: %w", abs, err)
	}
	return filepath.Clean(resolved), nil
}

// resolveWorkspacePath maps a tool path argument to an absolute path under
// root. With allowMissing, trailing components that do not exist yet are kept
// so write can create them.
func resolveWorkspacePath(root, input string, allowMissing bool) (string, error) {
	arg := strings.TrimSpace(input)
	if arg == "" {
		return "", errors.New("path is required")
	}
	base, err := workspaceRootDir(root)
	if err != nil {
		return "", err
	}

	target := arg
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	resolved, err := evalExisting(filepath.Clean(target), allowMissing)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", arg, err)
	}
	if !within(base, resolved) {
		return "", fmt.Errorf("%w: %s (workspace: %s)", ErrPathOutsideWorkspace, arg, base)
	}
	return resolved, nil
}

// evalExisting resolves symlinks in the longest existing prefix of path.
func evalExisting(path string, allowMissing bool) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return filepath.Clean(resolved), nil
	}
	if !allowMissing || !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return "", err
	}
	dir, err := evalExisting(parent, true)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(path)), nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
