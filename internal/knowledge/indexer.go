package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Indexer keeps the store in sync with the guideline documents on disk. A
// full Reindex runs at startup; Watch keeps the index fresh while the CLI
// stays open.
type Indexer struct {
	Store    *Store
	Embedder *Embedder
	Dir      string
	Done     chan struct{}

	ChunkSize    int
	ChunkOverlap int
	Log          *zap.Logger

	mu    sync.Mutex
	dirty map[string]bool
}

var ErrIndexerNotReady = errors.New("knowledge indexer is not initialized")

const watchDebounce = 2 * time.Second

func NewIndexer(store *Store, embedder *Embedder, dir string) *Indexer {
	return &Indexer{
		Store:        store,
		Embedder:     embedder,
		Dir:          dir,
		Done:         make(chan struct{}),
		ChunkSize:    512,
		ChunkOverlap: 64,
		dirty:        make(map[string]bool),
	}
}

func (i *Indexer) log() *zap.Logger {
	if i != nil && i.Log != nil {
		return i.Log
	}
	return zap.NewNop()
}

func (i *Indexer) ensureDependencies(ctx context.Context) error {
	if i == nil {
		return ErrIndexerNotReady
	}
	if strings.TrimSpace(i.Dir) == "" {
		return errors.New("knowledge indexer directory is empty")
	}
	if err := i.Store.EnsureReady(ctx); err != nil {
		return fmt.Errorf("knowledge store not ready: %w", err)
	}
	if i.Embedder == nil {
		return ErrEmbedderNotReady
	}
	return nil
}

// chunkText splits on word boundaries, sliding by chunkSize minus overlap so
// passages keep enough leading context to match on their own.
func chunkText(text string, chunkSize, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if chunkSize <= overlap {
		chunkSize = overlap + 1
	}
	step := chunkSize - overlap

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+chunkSize, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

func isGuidelineFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		return true
	}
	return false
}

func (i *Indexer) indexFile(ctx context.Context, path string) error {
	if err := i.ensureDependencies(ctx); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Drop the document's previous chunks so a shrinking file cannot leave
	// orphan passages behind.
	if err := i.Store.DeleteSource(ctx, path); err != nil {
		return err
	}

	for seq, passage := range chunkText(string(raw), i.ChunkSize, i.ChunkOverlap) {
		embedding, err := i.Embedder.Embed(ctx, passage)
		if err != nil {
			return fmt.Errorf("embed %s: %w", filepath.Base(path), err)
		}
		chunk := Chunk{
			ID:      fmt.Sprintf("%s:%d", path, seq),
			Source:  path,
			Seq:     seq,
			Content: passage,
		}
		if err := i.Store.SaveChunk(ctx, chunk, embedding); err != nil {
			return err
		}
	}

	return i.Store.MarkSource(ctx, path, info.ModTime().Unix())
}

// Reindex walks the guidelines directory and indexes every document whose
// modification time changed since the last pass. Documents deleted from disk
// are dropped from the store.
func (i *Indexer) Reindex(ctx context.Context) error {
	if err := i.ensureDependencies(ctx); err != nil {
		return err
	}
	if err := i.Embedder.EnsureReady(ctx); err != nil {
		return err
	}

	seen := make(map[string]bool)
	err := filepath.WalkDir(i.Dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || !isGuidelineFile(path) {
			return nil
		}
		seen[path] = true

		info, err := d.Info()
		if err != nil {
			return nil
		}
		stamp, known, err := i.Store.SourceStamp(ctx, path)
		if err != nil {
			return err
		}
		if known && stamp == info.ModTime().Unix() {
			return nil
		}

		i.log().Debug("indexing guideline", zap.String("source", filepath.Base(path)))
		if err := i.indexFile(ctx, path); err != nil {
			return err
		}
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	indexed, err := i.Store.Sources(ctx)
	if err != nil {
		return err
	}
	for _, source := range indexed {
		if !seen[source] {
			if err := i.Store.DeleteSource(ctx, source); err != nil {
				return err
			}
		}
	}
	return nil
}

// Watch re-indexes edited documents while the process idles. Events collect
// into a dirty set and flush after a quiet period.
func (i *Indexer) Watch(ctx context.Context) error {
	if err := i.ensureDependencies(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(i.Dir); err != nil {
		watcher.Close()
		return err
	}

	go i.watchLoop(ctx, watcher)
	return nil
}

func (i *Indexer) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	defer close(i.Done)

	debounce := time.NewTimer(watchDebounce)
	defer debounce.Stop()
	rearm := func() {
		if !debounce.Stop() {
			select {
			case <-debounce.C:
			default:
			}
		}
		debounce.Reset(watchDebounce)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			i.noteEvent(ctx, event)
			rearm()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			i.log().Warn("guideline watcher error", zap.Error(err))
		case <-debounce.C:
			i.flushDirty(ctx)
		}
	}
}

func (i *Indexer) noteEvent(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		if !isGuidelineFile(event.Name) {
			return
		}
		i.mu.Lock()
		i.dirty[event.Name] = true
		i.mu.Unlock()
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if err := i.Store.DeleteSource(ctx, event.Name); err != nil {
			i.log().Warn("drop removed guideline", zap.String("source", event.Name), zap.Error(err))
		}
	}
}

func (i *Indexer) flushDirty(ctx context.Context) {
	i.mu.Lock()
	pending := i.dirty
	i.dirty = make(map[string]bool)
	i.mu.Unlock()

	for path := range pending {
		if err := i.indexFile(ctx, path); err != nil {
			i.log().Warn("re-index guideline", zap.String("source", path), zap.Error(err))
		}
	}
}
