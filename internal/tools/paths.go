package tools

import (
	"errors"
	"path/filepath"
	"strings"
)

// ResolvePath confines a model-supplied path to the workspace root. Absolute
// inputs are allowed only when they already point inside the root; everything
// else is joined to it. The returned relPath is slash-separated for display.
func ResolvePath(root, path string) (absPath string, relPath string, err error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", "", err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", "", errors.New("path is empty")
	}

	var targetAbs string
	if filepath.IsAbs(path) {
		targetAbs = filepath.Clean(path)
	} else {
		targetAbs = filepath.Clean(filepath.Join(rootAbs, path))
	}

	relToRoot, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", "", err
	}
	relToRoot = filepath.Clean(relToRoot)
	if relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", "", newToolError(KindPathEscape, "", "path escapes the plugin workspace: "+path, nil)
	}
	return targetAbs, filepath.ToSlash(relToRoot), nil
}
