package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkText(t *testing.T) {
	tests := map[string]struct {
		input   string
		size    int
		overlap int
		want    []string
	}{
		"fits one chunk": {
			input: "word1 word2 word3",
			size:  10, overlap: 2,
			want: []string{"word1 word2 word3"},
		},
		"boundary exactly at size": {
			input: "w1 w2 w3 w4 w5",
			size:  5, overlap: 1,
			want: []string{"w1 w2 w3 w4 w5"},
		},
		"overlap repeats trailing words": {
			input: "w1 w2 w3 w4 w5",
			size:  4, overlap: 2,
			want: []string{"w1 w2 w3 w4", "w3 w4 w5"},
		},
		"blank input": {
			input: "   ",
			size:  4, overlap: 2,
			want: nil,
		},
		"overlap wider than size still advances": {
			input: "w1 w2 w3",
			size:  1, overlap: 2,
			want: []string{"w1 w2 w3"},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunkText(tt.input, tt.size, tt.overlap))
		})
	}
}

func TestIsGuidelineFile(t *testing.T) {
	assert.True(t, isGuidelineFile("security.md"))
	assert.True(t, isGuidelineFile("notes.TXT"))
	assert.False(t, isGuidelineFile("knowledge.db"))
	assert.False(t, isGuidelineFile("plugin.php"))
	assert.False(t, isGuidelineFile("README"))
}

func TestIndexerGuards(t *testing.T) {
	ctx := context.Background()

	var indexer *Indexer
	assert.ErrorIs(t, indexer.Reindex(ctx), ErrIndexerNotReady)

	indexer = NewIndexer(nil, nil, "")
	assert.ErrorContains(t, indexer.Reindex(ctx), "directory is empty")
}
