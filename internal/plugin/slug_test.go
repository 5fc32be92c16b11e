package plugin

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Footer Message", "footer-message"},
		{"already slug", "footer-message", "footer-message"},
		{"extra whitespace", "  My   Plugin  ", "my-plugin"},
		{"slashes", "evil/../../etc/passwd", "evil-etc-passwd"},
		{"backslashes", `a\b\c`, "a-b-c"},
		{"unicode accents", "Café Menü Widget", "cafe-menu-widget"},
		{"emoji and symbols", "Rocket 🚀 Launcher!!", "rocket-launcher"},
		{"dots", "my.plugin.name", "my-plugin-name"},
		{"leading punctuation", "...Hello World", "hello-world"},
		{"numbers kept", "SEO Tool 2000", "seo-tool-2000"},
		{"empty", "", "wp-plugin"},
		{"only symbols", "!!!***", "wp-plugin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slugify(tt.in)
			if got != tt.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlugifyNeverContainsSeparators(t *testing.T) {
	t.Parallel()

	adversarial := []string{
		"../../etc/passwd",
		"/absolute/path/plugin",
		"name with / and \\ mixed",
		"..",
		"C:\\Windows\\System32",
		strings.Repeat("very long name ", 40),
	}
	for _, in := range adversarial {
		slug := Slugify(in)
		if strings.ContainsAny(slug, "/\\") {
			t.Fatalf("slug %q from %q contains a path separator", slug, in)
		}
		if strings.Contains(slug, "..") {
			t.Fatalf("slug %q from %q contains a dot-dot sequence", slug, in)
		}
		if len(slug) > maxSlugLength {
			t.Fatalf("slug %q exceeds max length %d", slug, maxSlugLength)
		}
		if slug != strings.ToLower(slug) {
			t.Fatalf("slug %q is not lowercase", slug)
		}
	}
}
