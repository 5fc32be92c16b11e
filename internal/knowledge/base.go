package knowledge

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Snippet is one guideline passage returned from a lookup.
type Snippet struct {
	Source  string
	Content string
}

// Options configures Open. Zero values fall back to the defaults the CLI
// ships with.
type Options struct {
	// Dir holds the guideline documents. Empty resolves to
	// ~/.config/wpforge/guidelines and seeds it with the built-in docs.
	Dir string
	// DBPath is the index database. Empty derives a sibling of Dir.
	DBPath       string
	OllamaHost   string
	Model        string
	ChunkSize    int
	ChunkOverlap int
	Log          *zap.Logger
}

// Base ties the store, embedder, and indexer into the lookup surface the
// rest of the CLI uses.
type Base struct {
	store    *Store
	embedder *Embedder
	indexer  *Indexer
	dir      string
	log      *zap.Logger
}

func defaultGuidelinesDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "wpforge", "guidelines")
}

// Open prepares the knowledge base: ensures the guidelines directory exists
// with the default documents, opens the index, and wires the embedder. It
// does not contact Ollama; Refresh does that.
func Open(opts Options) (*Base, error) {
	dir := opts.Dir
	if dir == "" {
		dir = defaultGuidelinesDir()
	}
	if err := EnsureDefaultGuidelines(dir); err != nil {
		return nil, err
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(filepath.Dir(filepath.Clean(dir)), "knowledge.db")
	}
	store, err := OpenStore(dbPath)
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(opts.OllamaHost, opts.Model)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger := opts.Log
	if logger == nil {
		logger = zap.NewNop()
	}

	indexer := NewIndexer(store, embedder, dir)
	indexer.Log = logger
	if opts.ChunkSize > 0 {
		indexer.ChunkSize = opts.ChunkSize
	}
	if opts.ChunkOverlap > 0 {
		indexer.ChunkOverlap = opts.ChunkOverlap
	}

	return &Base{
		store:    store,
		embedder: embedder,
		indexer:  indexer,
		dir:      dir,
		log:      logger,
	}, nil
}

// Dir returns the guidelines directory backing this base.
func (b *Base) Dir() string {
	return b.dir
}

// Refresh probes the embedder and brings the index up to date with the
// documents on disk. Callers treat an error as "knowledge base unavailable"
// and run without it.
func (b *Base) Refresh(ctx context.Context) error {
	return b.indexer.Reindex(ctx)
}

// Watch keeps the index in sync while the process stays open.
func (b *Base) Watch(ctx context.Context) error {
	return b.indexer.Watch(ctx)
}

// Lookup embeds the query and returns the closest guideline passages.
func (b *Base) Lookup(ctx context.Context, query string, limit int) ([]Snippet, error) {
	embedding, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	chunks, err := b.store.Search(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	snippets := make([]Snippet, 0, len(chunks))
	for _, chunk := range chunks {
		snippets = append(snippets, Snippet{
			Source:  filepath.Base(chunk.Source),
			Content: chunk.Content,
		})
	}
	return snippets, nil
}

func (b *Base) Close() error {
	if b == nil {
		return nil
	}
	return b.store.Close()
}
