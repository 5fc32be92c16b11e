package tools

import (
	"path/filepath"
	"testing"
)

func TestResolvePathConfinement(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantRel string
		wantErr bool
	}{
		{name: "simple relative", path: "demo.php", wantRel: "demo.php"},
		{name: "nested relative", path: "includes/class-demo.php", wantRel: "includes/class-demo.php"},
		{name: "dot slash prefix", path: "./readme.txt", wantRel: "readme.txt"},
		{name: "internal dotdot that stays inside", path: "includes/../readme.txt", wantRel: "readme.txt"},
		{name: "parent escape", path: "../outside.php", wantErr: true},
		{name: "deep escape", path: "../../etc/passwd", wantErr: true},
		{name: "sneaky escape through subdir", path: "includes/../../outside.php", wantErr: true},
		{name: "absolute outside", path: "/etc/passwd", wantErr: true},
		{name: "absolute inside", path: filepath.Join(root, "style.css"), wantRel: "style.css"},
		{name: "empty", path: "", wantErr: true},
		{name: "whitespace", path: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, rel, err := ResolvePath(root, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got abs=%q", tt.path, abs)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.path, err)
			}
			if rel != tt.wantRel {
				t.Fatalf("expected rel %q, got %q", tt.wantRel, rel)
			}
		})
	}
}

func TestResolvePathEscapeCarriesKind(t *testing.T) {
	t.Parallel()

	_, _, err := ResolvePath(t.TempDir(), "../../secrets.txt")
	if err == nil {
		t.Fatal("expected path escape error")
	}
	if !IsKind(err, KindPathEscape) {
		t.Fatalf("expected KindPathEscape, got %v", err)
	}
}
