package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	t.Parallel()

	env := Env{Root: t.TempDir()}
	write := newWriteFileTool(env)
	read := newReadFileTool(env)

	ctx := context.Background()
	content := "<?php\n// Demo plugin main file\n"

	res, err := write.Execute(ctx, map[string]any{"path": "demo-widget/demo-widget.php", "content": content})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("expected ok outcome, got %s", res.Outcome)
	}

	res, err = read.Execute(ctx, map[string]any{"path": "demo-widget/demo-widget.php"})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if res.Output != content {
		t.Fatalf("round trip mismatch: %q", res.Output)
	}
}

func TestWriteFileRejectsEscape(t *testing.T) {
	t.Parallel()

	env := Env{Root: t.TempDir()}
	write := newWriteFileTool(env)

	_, err := write.Execute(context.Background(), map[string]any{
		"path":    "../../outside.php",
		"content": "<?php",
	})
	if err == nil {
		t.Fatal("expected escape rejection")
	}
	if !IsKind(err, KindPathEscape) {
		t.Fatalf("expected KindPathEscape, got %v", err)
	}
}

func TestWriteFileEmitsDiffOnOverwrite(t *testing.T) {
	t.Parallel()

	var events []Event
	env := Env{
		Root: t.TempDir(),
		Emit: func(e Event) { events = append(events, e) },
	}
	write := newWriteFileTool(env)
	ctx := context.Background()

	if _, err := write.Execute(ctx, map[string]any{"path": "style.css", "content": "a { color: red; }\n"}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := write.Execute(ctx, map[string]any{"path": "style.css", "content": "a { color: blue; }\n"}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	sawDiff := false
	for _, e := range events {
		if e.Kind == EventDiff && strings.Contains(e.Detail, "style.css") {
			sawDiff = true
		}
	}
	if !sawDiff {
		t.Fatalf("expected a diff event on overwrite, got %#v", events)
	}
}

func TestWriteFileNoDiffEventOnCreate(t *testing.T) {
	t.Parallel()

	var events []Event
	env := Env{
		Root: t.TempDir(),
		Emit: func(e Event) { events = append(events, e) },
	}
	write := newWriteFileTool(env)

	if _, err := write.Execute(context.Background(), map[string]any{"path": "new.php", "content": "<?php\n"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, e := range events {
		if e.Kind == EventDiff {
			t.Fatalf("unexpected diff event for a brand new file: %+v", e)
		}
	}
}

func TestReadFileMissingCarriesNotFound(t *testing.T) {
	t.Parallel()

	read := newReadFileTool(Env{Root: t.TempDir()})
	_, err := read.Execute(context.Background(), map[string]any{"path": "ghost.php"})
	if !IsKind(err, KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestDeleteFileRefusesDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "includes"), 0o755); err != nil {
		t.Fatal(err)
	}

	del := newDeleteFileTool(Env{Root: root})
	if _, err := del.Execute(context.Background(), map[string]any{"path": "includes"}); err == nil {
		t.Fatal("expected directory deletion to be rejected")
	}
}

func TestDeleteFileRemovesFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	target := filepath.Join(root, "old.php")
	if err := os.WriteFile(target, []byte("<?php"), 0o644); err != nil {
		t.Fatal(err)
	}

	del := newDeleteFileTool(Env{Root: root})
	if _, err := del.Execute(context.Background(), map[string]any{"path": "old.php"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("file still exists: %v", err)
	}
}

func TestListFilesReportsRelativePaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, p := range []string{"demo.php", "includes/helper.php", "readme.txt"} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	list := newListFilesTool(Env{Root: root})
	res, err := list.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"demo.php", "includes/helper.php", "readme.txt"} {
		if !strings.Contains(res.Output, want) {
			t.Fatalf("expected %q in listing:\n%s", want, res.Output)
		}
	}
	if res.Data["count"] != 3 {
		t.Fatalf("expected count 3, got %v", res.Data["count"])
	}
}

func TestEnsureDirCreatesNestedDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ensure := newEnsureDirTool(Env{Root: root})
	if _, err := ensure.Execute(context.Background(), map[string]any{"path": "admin/css"}); err != nil {
		t.Fatalf("ensure_dir: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "admin", "css"))
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestDiffStats(t *testing.T) {
	t.Parallel()

	added, removed := diffStats("line one\nline two\n", "line one\nline two changed\nline three\n")
	if added == 0 {
		t.Fatalf("expected added lines, got added=%d removed=%d", added, removed)
	}
}
