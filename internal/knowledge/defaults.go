package knowledge

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed defaults/*.md
var defaultGuidelines embed.FS

// EnsureDefaultGuidelines writes the built-in guideline documents into dir.
// Files already present are left alone so local edits survive upgrades.
func EnsureDefaultGuidelines(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create guidelines directory: %w", err)
	}

	entries, err := fs.ReadDir(defaultGuidelines, "defaults")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		target := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(target); err == nil {
			continue
		}
		data, err := fs.ReadFile(defaultGuidelines, "defaults/"+entry.Name())
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("write default guideline %s: %w", entry.Name(), err)
		}
	}
	return nil
}
