package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

func doc(path string, start int, vec ...float32) vectorstore.Document {
	return vectorstore.Document{
		Chunk:  types.NewCodeChunk(path, "content of "+path, start, start+1, "go"),
		Vector: vec,
	}
}

func TestStore_InsertSearch(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "c", Dimension: 2}))

	require.NoError(t, s.Insert(ctx, "c", []vectorstore.Document{
		doc("a.go", 1, 1, 0),
		doc("b.go", 1, 0, 1),
		doc("c.py", 1, 0.9, 0.1),
	}))

	hs, err := s.Search(ctx, "c", []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hs.Hits, 2)
	assert.Equal(t, vectorstore.MetricCosineSimilarity, hs.Metric)
	assert.Equal(t, "a.go", hs.Hits[0].Chunk.RelativePath)
	assert.Equal(t, "c.py", hs.Hits[1].Chunk.RelativePath)

	hs, err = s.Search(ctx, "c", []float32{1, 0}, 10, &vectorstore.Filter{Extensions: []string{".py"}})
	require.NoError(t, err)
	require.Len(t, hs.Hits, 1)
	assert.Equal(t, "c.py", hs.Hits[0].Chunk.RelativePath)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Count(ctx, "missing")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	require.NoError(t, s.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "c", Dimension: 3}))
	err = s.Insert(ctx, "c", []vectorstore.Document{doc("a.go", 1, 1, 0)})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	require.NoError(t, s.Close())
	_, err = s.HasCollection(ctx, "c")
	assert.ErrorIs(t, err, vectorstore.ErrVectorStoreUnavailable)
}

func TestStore_DeleteAndQuery(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "c", Dimension: 1}))

	a1, a2, b := doc("a.go", 1, 1), doc("a.go", 5, 1), doc("b.go", 1, 1)
	require.NoError(t, s.Insert(ctx, "c", []vectorstore.Document{a1, a2, b}))

	got, err := s.Query(ctx, "c", vectorstore.Filter{RelativePath: "a.go"}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.Delete(ctx, "c", []string{a1.Chunk.ID}))
	n, err := s.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err = s.Query(ctx, "c", vectorstore.Filter{}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a2.Chunk.ID, got[0].ID)
}
