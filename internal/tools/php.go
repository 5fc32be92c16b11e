package tools

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

func newCheckPHPSyntaxTool(env Env) Tool {
	return Tool{
		Name:        "check_php_syntax",
		Description: "Lint every PHP file in the plugin with `php -l` and report the first errors found.",
		Schema: schemaObject(nil, map[string]string{
			"path": "Optional single file to lint instead of the whole plugin.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}

			var files []string
			if raw := optionalStringParam(params, "path", ""); raw != "" {
				absPath, _, err := ResolvePath(env.Root, raw)
				if err != nil {
					return Result{}, err
				}
				files = []string{absPath}
			} else {
				found, err := phpFiles(env.Root)
				if err != nil {
					return Result{}, err
				}
				files = found
			}
			if len(files) == 0 {
				return failed("no PHP files to lint", nil), nil
			}

			env.emit(EventRunning, "check_php_syntax", fmt.Sprintf("linting %d files", len(files)), nil)

			var problems []string
			for _, file := range files {
				res, err := runProcess(ctx, "check_php_syntax", env.Root, env.Timeouts.Syntax(), "php", "-l", file)
				if err != nil {
					if IsKind(err, KindUnavailable) {
						return unavailable("php binary not installed, syntax check skipped"), nil
					}
					return Result{}, err
				}
				if res.ExitCode != 0 {
					rel, relErr := filepath.Rel(env.Root, file)
					if relErr != nil {
						rel = file
					}
					problems = append(problems, fmt.Sprintf("%s: %s", filepath.ToSlash(rel), firstSyntaxError(res.Combined())))
				}
			}

			if len(problems) > 0 {
				return failed(strings.Join(problems, "\n"), map[string]any{"errors": len(problems)}), nil
			}
			return ok(fmt.Sprintf("all %d PHP files pass lint", len(files)), map[string]any{"files": len(files)}), nil
		},
	}
}

func phpFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			name := d.Name()
			if name == "vendor" || name == "node_modules" || strings.HasPrefix(name, ".") && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".php") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// firstSyntaxError trims `php -l` output down to the diagnostic line.
func firstSyntaxError(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "PHP Parse error") || strings.HasPrefix(line, "Parse error") ||
			strings.HasPrefix(line, "PHP Fatal error") || strings.HasPrefix(line, "Fatal error") {
			return line
		}
	}
	return strings.TrimSpace(output)
}
