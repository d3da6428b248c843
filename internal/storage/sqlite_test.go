package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kbserve/internal/models"
)

func newTestStorage(t *testing.T) (*SQLiteStorage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge_base.db")
	store, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestSQLiteStorage_InsertAndGet(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	chunk := &models.Chunk{
		Collection: models.CollectionDiscourse,
		Title:      "Topic",
		URL:        "https://discourse.example.com/t/1",
		Content:    "post body",
		Embedding:  []float32{0.25, -1, 3.5},
	}
	require.NoError(t, store.InsertChunk(ctx, chunk))
	assert.NotEmpty(t, chunk.ID, "ID should be assigned")
	assert.False(t, chunk.CreatedAt.IsZero())

	got, err := store.GetChunk(ctx, models.CollectionDiscourse, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Topic", got.Title)
	assert.Equal(t, "post body", got.Content)
	assert.Equal(t, []float32{0.25, -1, 3.5}, got.Embedding)
	assert.Equal(t, models.CollectionDiscourse, got.Collection)

	_, err = store.GetChunk(ctx, models.CollectionMarkdown, chunk.ID)
	assert.True(t, errors.Is(err, ErrChunkNotFound))
}

func TestSQLiteStorage_EmptyEmbeddingStoredAsNull(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	chunk := &models.Chunk{ID: "m1", Collection: models.CollectionMarkdown, Content: "c", Embedding: []float32{}}
	require.NoError(t, store.InsertChunk(ctx, chunk))

	n, err := store.CountEmbedded(ctx, models.CollectionMarkdown)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := store.GetChunk(ctx, models.CollectionMarkdown, "m1")
	require.NoError(t, err)
	assert.Nil(t, got.Embedding)
	assert.False(t, got.HasEmbedding())
}

func TestSQLiteStorage_UnknownCollection(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	err := store.InsertChunk(ctx, &models.Chunk{Collection: "wiki", Content: "c"})
	assert.ErrorIs(t, err, ErrUnknownCollection)

	_, err = store.CountChunks(ctx, "wiki")
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestSQLiteStorage_BatchAndCounts(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	vec := []float32{1, 2}
	chunks := []*models.Chunk{
		{Collection: models.CollectionDiscourse, Content: "d1", Embedding: vec},
		{Collection: models.CollectionDiscourse, Content: "d2"},
		{Collection: models.CollectionDiscourse, Content: "d3", Embedding: vec},
		{Collection: models.CollectionMarkdown, Content: "m1", Embedding: vec},
		{Collection: models.CollectionMarkdown, Content: "m2"},
	}
	require.NoError(t, store.BatchInsertChunks(ctx, chunks))

	n, err := store.CountChunks(ctx, models.CollectionDiscourse)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = store.CountEmbedded(ctx, models.CollectionDiscourse)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{
		DiscourseChunks:     3,
		MarkdownChunks:      2,
		DiscourseEmbeddings: 2,
		MarkdownEmbeddings:  1,
	}, stats)
}

func TestSQLiteStorage_BatchRollsBackOnError(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	chunks := []*models.Chunk{
		{Collection: models.CollectionDiscourse, Content: "ok"},
		{Collection: "wiki", Content: "bad"},
	}
	require.Error(t, store.BatchInsertChunks(ctx, chunks))

	n, err := store.CountChunks(ctx, models.CollectionDiscourse)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent.db")
		_, err := OpenReadOnly(ctx, path)
		require.Error(t, err)
		assert.NoFileExists(t, path, "read-only open must not create the database")
	})

	t.Run("reads existing store", func(t *testing.T) {
		store, path := newTestStorage(t)
		require.NoError(t, store.InsertChunk(ctx, &models.Chunk{Collection: models.CollectionMarkdown, Content: "m"}))

		ro, err := OpenReadOnly(ctx, path)
		require.NoError(t, err)
		defer ro.Close()

		stats, err := ro.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.MarkdownChunks)

		err = ro.InsertChunk(ctx, &models.Chunk{Collection: models.CollectionMarkdown, Content: "x"})
		assert.Error(t, err, "read-only store must reject writes")
	})
}

func TestSQLiteStorage_StatsMissingTable(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `DROP TABLE markdown_chunks`)
	require.NoError(t, err)

	_, err = store.Stats(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.Equal(t, "markdown_chunks not found", err.Error())
}

func TestSQLiteStorage_URIDelimitersInPath(t *testing.T) {
	ctx := context.Background()
	for _, dirName := range []string{"kb#1", "kb?v1", "kb%231"} {
		t.Run(dirName, func(t *testing.T) {
			root := t.TempDir()
			path := filepath.Join(root, dirName, "knowledge_base.db")

			store, err := NewSQLiteStorage(path)
			require.NoError(t, err)
			require.NoError(t, store.InsertChunk(ctx, &models.Chunk{Collection: models.CollectionDiscourse, Content: "d"}))
			require.NoError(t, store.Close())
			require.FileExists(t, path)

			ro, err := OpenReadOnly(ctx, path)
			require.NoError(t, err)
			defer ro.Close()
			stats, err := ro.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.DiscourseChunks)

			assert.NoFileExists(t, filepath.Join(root, "kb"))
		})
	}
}

func TestFileDSN(t *testing.T) {
	dsn, err := fileDSN("/data/kb#1/x?y.db", "ro")
	require.NoError(t, err)
	assert.Equal(t, "file:///data/kb%231/x%3Fy.db?mode=ro", dsn)
}
