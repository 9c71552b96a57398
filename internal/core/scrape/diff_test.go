package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFingerprint(t *testing.T, text string) string {
	t.Helper()
	hash, err := Fingerprint(text)
	require.NoError(t, err)
	return hash
}

func seedChunks(t *testing.T, store *memoryStore, url string, texts ...string) {
	t.Helper()
	for i, text := range texts {
		require.NoError(t, store.Upsert(context.Background(), &ChunkRecord{
			ID:          "seed",
			URL:         url,
			Description: "stored description",
			Owner:       "stored owner",
			ChunkNumber: i,
			ChunkHash:   mustFingerprint(t, text),
			Content:     text,
		}))
	}
	store.ops = nil
}

func TestDiffEngineNewPage(t *testing.T) {
	store := newMemoryStore()
	engine := NewDiffEngine(store, runeTokenCounter{}, nil)

	req := PageRequest{URL: "https://example.com/a"}.WithPlaceholders()
	chunks := []string{"first chunk", "second chunk"}

	diff, err := engine.Build(context.Background(), req, "full text", "pagehash", chunks, true)
	require.NoError(t, err)

	assert.Equal(t, NewPageSentinel, diff.ExistingChunkCount)
	assert.Equal(t, 2, diff.NewChunkCount)
	require.Len(t, diff.Changed, 2)

	for i, chunk := range diff.Changed {
		assert.Equal(t, i, chunk.Number)
		assert.Equal(t, chunks[i], chunk.Content)
		assert.Equal(t, mustFingerprint(t, chunks[i]), chunk.Hash)
		assert.Equal(t, len([]rune(chunks[i])), chunk.Tokens)
		assert.False(t, chunk.DeleteOld, "new pages have no old chunks to delete")
	}
}

func TestDiffEngineUnchangedChunksSkipped(t *testing.T) {
	store := newMemoryStore()
	url := "https://example.com/a"
	seedChunks(t, store, url, "alpha", "beta", "gamma")

	engine := NewDiffEngine(store, runeTokenCounter{}, nil)
	req := PageRequest{URL: url}.WithPlaceholders()

	// 真ん中のチャンクだけ変更
	diff, err := engine.Build(context.Background(), req, "text", "hash", []string{"alpha", "BETA!", "gamma"}, false)
	require.NoError(t, err)

	assert.Equal(t, 3, diff.ExistingChunkCount)
	require.Len(t, diff.Changed, 1)
	assert.Equal(t, 1, diff.Changed[0].Number)
	assert.Equal(t, "BETA!", diff.Changed[0].Content)
	assert.True(t, diff.Changed[0].DeleteOld, "changed chunk in existing range must replace the old row")
}

func TestDiffEngineAppendedChunks(t *testing.T) {
	store := newMemoryStore()
	url := "https://example.com/a"
	seedChunks(t, store, url, "alpha", "beta")

	engine := NewDiffEngine(store, runeTokenCounter{}, nil)
	req := PageRequest{URL: url}.WithPlaceholders()

	diff, err := engine.Build(context.Background(), req, "text", "hash", []string{"alpha", "beta", "gamma", "delta"}, false)
	require.NoError(t, err)

	require.Len(t, diff.Changed, 2)
	for _, chunk := range diff.Changed {
		assert.False(t, chunk.DeleteOld, "appended chunks are beyond the existing range")
	}
	assert.Equal(t, 2, diff.Changed[0].Number)
	assert.Equal(t, 3, diff.Changed[1].Number)
}

func TestDiffEngineShrunkPage(t *testing.T) {
	store := newMemoryStore()
	url := "https://example.com/a"
	seedChunks(t, store, url, "c0", "c1", "c2", "c3", "c4")

	engine := NewDiffEngine(store, runeTokenCounter{}, nil)
	req := PageRequest{URL: url}.WithPlaceholders()

	// 5チャンクから3チャンクへ縮小、内容は同一
	diff, err := engine.Build(context.Background(), req, "text", "hash", []string{"c0", "c1", "c2"}, false)
	require.NoError(t, err)

	assert.Equal(t, 5, diff.ExistingChunkCount)
	assert.Equal(t, 3, diff.NewChunkCount)
	assert.Empty(t, diff.Changed, "identical chunks need no re-embedding")
}

func TestDiffEngineCarryForward(t *testing.T) {
	store := newMemoryStore()
	url := "https://example.com/a"
	seedChunks(t, store, url, "alpha")

	engine := NewDiffEngine(store, runeTokenCounter{}, nil)

	t.Run("プレースホルダは保存済みメタデータを引き継ぐ", func(t *testing.T) {
		req := PageRequest{URL: url}.WithPlaceholders()
		diff, err := engine.Build(context.Background(), req, "text", "hash", []string{"changed"}, false)
		require.NoError(t, err)

		assert.Equal(t, "stored description", diff.Description)
		assert.Equal(t, "stored owner", diff.Owner)
	})

	t.Run("明示的なメタデータはそのまま使う", func(t *testing.T) {
		req := PageRequest{URL: url, Description: "fresh description", Owner: "fresh owner"}
		diff, err := engine.Build(context.Background(), req, "text", "hash", []string{"changed"}, false)
		require.NoError(t, err)

		assert.Equal(t, "fresh description", diff.Description)
		assert.Equal(t, "fresh owner", diff.Owner)
	})
}
