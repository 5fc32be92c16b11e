package tools

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
)

// defaultZipExcludes keeps build scaffolding out of the distributable even
// when the plugin carries no .gitignore.
var defaultZipExcludes = []string{
	".git/",
	".gitignore",
	"node_modules/",
	"vendor/",
	"tests/",
	"phpunit.xml",
	"dist/",
	"*.zip",
	".DS_Store",
}

func newCreatePluginZipTool(env Env) Tool {
	return Tool{
		Name:        "create_plugin_zip",
		Description: "Package the plugin into dist/<slug>.zip, excluding development files.",
		Schema: schemaObject([]string{"slug"}, map[string]string{
			"slug": "Plugin slug, used as the archive's top-level directory.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			slug, err := requiredStringParam(params, "slug")
			if err != nil {
				return Result{}, err
			}

			distDir := filepath.Join(env.Root, "dist")
			if err := os.MkdirAll(distDir, 0o755); err != nil {
				return Result{}, err
			}
			zipPath := filepath.Join(distDir, slug+".zip")

			env.emit(EventWriting, "create_plugin_zip", "packaging "+slug+".zip", map[string]any{"slug": slug})

			count, err := writePluginZip(env.Root, slug, zipPath)
			if err != nil {
				return Result{}, err
			}

			info, err := os.Stat(zipPath)
			if err != nil {
				return Result{}, err
			}
			return ok(fmt.Sprintf("packaged %d files into dist/%s.zip (%d bytes)", count, slug, info.Size()), map[string]any{
				"path":  filepath.ToSlash(filepath.Join("dist", slug+".zip")),
				"files": count,
				"bytes": info.Size(),
			}), nil
		},
	}
}

// writePluginZip archives root under a <slug>/ prefix, the layout WordPress
// expects when a zip is uploaded through the admin.
func writePluginZip(root, slug, zipPath string) (int, error) {
	matcher := zipExcludeMatcher(root)

	out, err := os.Create(zipPath)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	count := 0

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if matcher.MatchesPath(rel) {
			return nil
		}

		src, openErr := os.Open(p)
		if openErr != nil {
			return openErr
		}
		defer src.Close()

		w, createErr := zw.Create(slug + "/" + rel)
		if createErr != nil {
			return createErr
		}
		if _, copyErr := io.Copy(w, src); copyErr != nil {
			return copyErr
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return count, nil
}

// zipExcludeMatcher combines the built-in excludes with the plugin's own
// .gitignore when present.
func zipExcludeMatcher(root string) *ignore.GitIgnore {
	rules := append([]string{}, defaultZipExcludes...)
	if file, err := os.Open(filepath.Join(root, ".gitignore")); err == nil {
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			rules = append(rules, scanner.Text())
		}
		file.Close()
	}
	return ignore.CompileIgnoreLines(rules...)
}
