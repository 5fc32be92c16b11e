package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

func newReadFileTool(env Env) Tool {
	return Tool{
		Name:        "read_file",
		Description: "Read UTF-8 text from a file inside the plugin directory.",
		Schema: schemaObject([]string{"path"}, map[string]string{
			"path": "Relative path to the file within the plugin directory.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			path, err := requiredStringParam(params, "path")
			if err != nil {
				return Result{}, err
			}
			absPath, relPath, err := ResolvePath(env.Root, path)
			if err != nil {
				return Result{}, err
			}
			env.emit(EventReading, "read_file", fmt.Sprintf("reading %s", relPath), map[string]any{"path": relPath})

			content, err := os.ReadFile(absPath)
			if errors.Is(err, fs.ErrNotExist) {
				return Result{}, newToolError(KindNotFound, "read_file", "no such file: "+relPath, err)
			}
			if err != nil {
				return Result{}, err
			}
			return ok(string(content), map[string]any{"path": relPath}), nil
		},
	}
}

func newWriteFileTool(env Env) Tool {
	return Tool{
		Name:        "write_file",
		Description: "Write full file content to a path inside the plugin directory, creating parent directories as needed.",
		Schema: schemaObject([]string{"path", "content"}, map[string]string{
			"path":    "Relative path to the file within the plugin directory.",
			"content": "Full content to write to the file.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			path, err := requiredStringParam(params, "path")
			if err != nil {
				return Result{}, err
			}
			content, err := requiredStringParam(params, "content")
			if err != nil {
				return Result{}, err
			}
			absPath, relPath, err := ResolvePath(env.Root, path)
			if err != nil {
				return Result{}, err
			}

			var oldContent string
			if existing, readErr := os.ReadFile(absPath); readErr == nil {
				oldContent = string(existing)
			} else if !errors.Is(readErr, fs.ErrNotExist) {
				return Result{}, readErr
			}

			env.emit(EventWriting, "write_file", fmt.Sprintf("writing %s", relPath), map[string]any{"path": relPath})

			if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
				return Result{}, err
			}
			if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
				return Result{}, err
			}

			added, removed := diffStats(oldContent, content)
			if oldContent != "" {
				env.emit(EventDiff, "write_file", fmt.Sprintf("%s +%d -%d", relPath, added, removed), map[string]any{
					"path":    relPath,
					"added":   added,
					"removed": removed,
				})
			}
			return ok(fmt.Sprintf("wrote %s (%d bytes)", relPath, len(content)), map[string]any{
				"path":  relPath,
				"bytes": len(content),
			}), nil
		},
	}
}

func newDeleteFileTool(env Env) Tool {
	return Tool{
		Name:        "delete_file",
		Description: "Delete a single file inside the plugin directory.",
		Schema: schemaObject([]string{"path"}, map[string]string{
			"path": "Relative path to the file within the plugin directory.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			path, err := requiredStringParam(params, "path")
			if err != nil {
				return Result{}, err
			}
			absPath, relPath, err := ResolvePath(env.Root, path)
			if err != nil {
				return Result{}, err
			}

			info, err := os.Stat(absPath)
			if errors.Is(err, fs.ErrNotExist) {
				return Result{}, newToolError(KindNotFound, "delete_file", "no such file: "+relPath, err)
			}
			if err != nil {
				return Result{}, err
			}
			if info.IsDir() {
				return Result{}, fmt.Errorf("delete_file only removes files, %s is a directory", relPath)
			}

			env.emit(EventDeleting, "delete_file", fmt.Sprintf("deleting %s", relPath), map[string]any{"path": relPath})

			if err := os.Remove(absPath); err != nil {
				return Result{}, err
			}
			return ok("deleted "+relPath, map[string]any{"path": relPath}), nil
		},
	}
}

func newEnsureDirTool(env Env) Tool {
	return Tool{
		Name:        "ensure_dir",
		Description: "Create a directory (and parents) inside the plugin directory.",
		Schema: schemaObject([]string{"path"}, map[string]string{
			"path": "Relative directory path within the plugin directory.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			path, err := requiredStringParam(params, "path")
			if err != nil {
				return Result{}, err
			}
			absPath, relPath, err := ResolvePath(env.Root, path)
			if err != nil {
				return Result{}, err
			}
			if err := os.MkdirAll(absPath, 0o755); err != nil {
				return Result{}, err
			}
			return ok("created "+relPath, map[string]any{"path": relPath}), nil
		},
	}
}

func newListFilesTool(env Env) Tool {
	return Tool{
		Name:        "list_files",
		Description: "List every file in the plugin directory with sizes, recursively.",
		Schema: schemaObject(nil, map[string]string{
			"path": "Optional subdirectory to list instead of the plugin root.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			start := optionalStringParam(params, "path", ".")
			absStart, relStart, err := ResolvePath(env.Root, start)
			if err != nil {
				return Result{}, err
			}

			var entries []string
			err = filepath.WalkDir(absStart, func(p string, d fs.DirEntry, walkErr error) error {
				if walkErr != nil {
					return walkErr
				}
				if d.IsDir() {
					return nil
				}
				rel, relErr := filepath.Rel(absStart, p)
				if relErr != nil {
					return relErr
				}
				info, infoErr := d.Info()
				if infoErr != nil {
					return infoErr
				}
				entries = append(entries, fmt.Sprintf("%s (%d bytes)", filepath.ToSlash(rel), info.Size()))
				return nil
			})
			if errors.Is(err, fs.ErrNotExist) {
				return Result{}, newToolError(KindNotFound, "list_files", "no such directory: "+relStart, err)
			}
			if err != nil {
				return Result{}, err
			}
			sort.Strings(entries)
			if len(entries) == 0 {
				return ok("(empty)", map[string]any{"count": 0}), nil
			}
			return ok(strings.Join(entries, "\n"), map[string]any{"count": len(entries)}), nil
		},
	}
}

// diffStats counts added and removed lines between two revisions.
func diffStats(oldContent, newContent string) (added, removed int) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, true)
	diffs = dmp.DiffCleanupSemantic(diffs)
	for _, d := range diffs {
		lines := strings.Count(d.Text, "\n")
		if len(d.Text) > 0 && !strings.HasSuffix(d.Text, "\n") {
			lines++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += lines
		case diffmatchpatch.DiffDelete:
			removed += lines
		}
	}
	return added, removed
}
