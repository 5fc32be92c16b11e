package knowledge

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxDigestTitles = 12

// Digest summarizes the guideline corpus for `wpforge doctor` and the config
// display: how many documents exist and what they cover.
func Digest(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = defaultGuidelinesDir()
	}

	type doc struct {
		name  string
		title string
	}
	var docs []doc

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || !isGuidelineFile(path) {
			return nil
		}
		docs = append(docs, doc{
			name:  d.Name(),
			title: documentTitle(path),
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(docs) == 0 {
		return fmt.Sprintf("no guideline documents in %s", dir), nil
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].name < docs[j].name })

	var b strings.Builder
	fmt.Fprintf(&b, "%d guideline documents in %s\n", len(docs), dir)
	shown := docs
	if len(shown) > maxDigestTitles {
		shown = shown[:maxDigestTitles]
	}
	for _, d := range shown {
		if d.title != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", d.title, d.name)
		} else {
			fmt.Fprintf(&b, "- %s\n", d.name)
		}
	}
	if len(docs) > len(shown) {
		fmt.Fprintf(&b, "- ... (%d more)\n", len(docs)-len(shown))
	}
	return strings.TrimSpace(b.String()), nil
}

// documentTitle returns the first markdown heading, or empty when the file
// has none.
func documentTitle(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			break
		}
	}
	return ""
}
