package plugin

import "path/filepath"

// Layout is the on-disk contract the generation phase writes and the
// compliance and testing phases consume.
type Layout struct {
	Root string
	Slug string
}

func NewLayout(pluginsDir, slug string) Layout {
	return Layout{Root: filepath.Join(pluginsDir, slug), Slug: slug}
}

// MainFile is the bootstrap file WordPress loads, plugins/<slug>/<slug>.php.
func (l Layout) MainFile() string {
	return filepath.Join(l.Root, l.Slug+".php")
}

func (l Layout) Readme() string {
	return filepath.Join(l.Root, "readme.txt")
}

func (l Layout) TranslationTemplate() string {
	return filepath.Join(l.Root, "languages", l.Slug+".pot")
}

// StandardDirs lists every directory the layout guarantees to exist after a
// successful generation phase.
func (l Layout) StandardDirs() []string {
	return []string{
		filepath.Join(l.Root, "includes"),
		filepath.Join(l.Root, "admin", "css"),
		filepath.Join(l.Root, "admin", "js"),
		filepath.Join(l.Root, "public", "css"),
		filepath.Join(l.Root, "public", "js"),
		filepath.Join(l.Root, "languages"),
	}
}

// RequiredFiles lists the paths, relative to Root, that must exist for the
// layout to be considered complete.
func (l Layout) RequiredFiles() []string {
	return []string{
		l.Slug + ".php",
		"readme.txt",
		filepath.Join("languages", l.Slug+".pot"),
	}
}
