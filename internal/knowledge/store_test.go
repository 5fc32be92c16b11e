package knowledge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestStoreGuardsUninitializedReceivers(t *testing.T) {
	ctx := context.Background()
	for name, store := range map[string]*Store{"nil": nil, "zero": {}} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, store.Close())
			assert.ErrorIs(t, store.EnsureReady(ctx), ErrStoreNotReady)
			assert.ErrorIs(t, store.SaveChunk(ctx, Chunk{ID: "c1"}, []float32{1}), ErrStoreNotReady)
			assert.ErrorIs(t, store.DeleteSource(ctx, "security.md"), ErrStoreNotReady)
			_, err := store.Search(ctx, []float32{1}, 1)
			assert.ErrorIs(t, err, ErrStoreNotReady)
		})
	}
}

func TestStoreSaveSearchAndDeleteWithoutExtensions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Three dimensional vectors never fit the vec0 table, forcing the
	// embedding-scan path.
	require.NoError(t, store.SaveChunk(ctx, Chunk{
		ID:      "security.md:0",
		Source:  "security.md",
		Seq:     0,
		Content: "sanitize input, escape output",
	}, []float32{1, 0, 0}))
	require.NoError(t, store.SaveChunk(ctx, Chunk{
		ID:      "i18n.md:0",
		Source:  "i18n.md",
		Seq:     0,
		Content: "text domain matches the slug",
	}, []float32{0, 1, 0}))

	matches, err := store.Search(ctx, []float32{0.9, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "security.md:0", matches[0].ID)

	require.NoError(t, store.DeleteSource(ctx, "security.md"))
	matches, err = store.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStoreSearchOrdersByDistanceAndHonorsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chunks := []struct {
		id  string
		vec []float32
	}{
		{"a:0", []float32{1, 0, 0}},
		{"b:0", []float32{0.8, 0.6, 0}},
		{"c:0", []float32{0.6, 0.8, 0}},
	}
	for seq, c := range chunks {
		require.NoError(t, store.SaveChunk(ctx, Chunk{
			ID: c.id, Source: c.id, Seq: seq, Content: c.id,
		}, c.vec))
	}

	matches, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a:0", matches[0].ID)
	assert.Equal(t, "b:0", matches[1].ID)
}

func TestStoreReplacesChunkOnSameID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveChunk(ctx, Chunk{
		ID: "hooks.md:0", Source: "hooks.md", Content: "stale",
	}, []float32{1, 0}))
	require.NoError(t, store.SaveChunk(ctx, Chunk{
		ID: "hooks.md:0", Source: "hooks.md", Content: "fresh",
	}, []float32{1, 0}))

	matches, err := store.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "fresh", matches[0].Content)
}

func TestStoreSourceStamps(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, known, err := store.SourceStamp(ctx, "security.md")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, store.MarkSource(ctx, "security.md", 1700000000))
	stamp, known, err := store.SourceStamp(ctx, "security.md")
	require.NoError(t, err)
	assert.True(t, known)
	assert.EqualValues(t, 1700000000, stamp)

	sources, err := store.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"security.md"}, sources)

	require.NoError(t, store.DeleteSource(ctx, "security.md"))
	sources, err = store.Sources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestCosineDistance(t *testing.T) {
	_, err := cosineDistance(nil, []float32{1})
	assert.Error(t, err)

	_, err = cosineDistance([]float32{1, 0}, []float32{1})
	assert.ErrorContains(t, err, "length mismatch")

	identical, err := cosineDistance([]float32{0.5, 0.5}, []float32{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, identical, 1e-9)

	orthogonal, err := cosineDistance([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, orthogonal, 1e-9)
}

func TestSQLiteVecExtensionLoads(t *testing.T) {
	store := openTestStore(t)

	// The build links sqlite-vec in, so the vec0 table creation in
	// OpenStore must have succeeded.
	assert.True(t, store.vec.Load())

	var vecVersion string
	require.NoError(t, store.db.QueryRow("SELECT vec_version()").Scan(&vecVersion))
	assert.NotEmpty(t, vecVersion)
}
