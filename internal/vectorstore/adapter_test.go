package vectorstore_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/internal/vectorstore/memory"
	"github.com/dshills/semindex/pkg/types"
)

// fusingStore adds the optional capabilities on top of the memory backend
type fusingStore struct {
	*memory.Store
	fullText       map[string]bool
	provisionErr   error
	hasFullTextHit atomic.Int32
	hybridCalls    atomic.Int32
	filteredCalls  atomic.Int32
}

func newFusingStore() *fusingStore {
	return &fusingStore{Store: memory.New(), fullText: make(map[string]bool)}
}

func (f *fusingStore) ProvisionFullText(ctx context.Context, collection string) error {
	if f.provisionErr != nil {
		return f.provisionErr
	}
	f.fullText[collection] = true
	return nil
}

func (f *fusingStore) HasFullText(ctx context.Context, collection string) (bool, error) {
	f.hasFullTextHit.Add(1)
	return f.fullText[collection], nil
}

func (f *fusingStore) HybridSearch(ctx context.Context, collection string, req vectorstore.HybridRequest, topK int, filter *vectorstore.Filter) (vectorstore.HitSet, error) {
	f.hybridCalls.Add(1)
	dense, err := f.Search(ctx, collection, req.Vector, topK, filter)
	if err != nil {
		return vectorstore.HitSet{}, err
	}
	return vectorstore.FuseRRF(req.RRFConstant, dense.Hits), nil
}

func (f *fusingStore) DeleteByFilter(ctx context.Context, collection string, filter vectorstore.Filter) (int, error) {
	f.filteredCalls.Add(1)
	chunks, err := f.Query(ctx, collection, filter, 0)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}
	return len(ids), f.Delete(ctx, collection, ids)
}

func docs() []vectorstore.Document {
	mk := func(path string, start int, vec ...float32) vectorstore.Document {
		return vectorstore.Document{
			Chunk:  types.NewCodeChunk(path, "body of "+path, start, start+2, "go"),
			Vector: vec,
		}
	}
	return []vectorstore.Document{
		mk("auth/login.go", 1, 1, 0, 0),
		mk("auth/login.go", 4, 0.8, 0.2, 0),
		mk("db/conn.go", 1, 0, 1, 0),
		mk("README.md", 1, 0, 0, 1),
	}
}

func TestAdapter_DenseBackendFallsBack(t *testing.T) {
	ctx := context.Background()
	a := vectorstore.NewAdapter(memory.New(), nil)

	caps, err := a.CreateHybridCollection(ctx, "code", 3)
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Capabilities{}, caps)

	require.NoError(t, a.Insert(ctx, "code", docs()))

	resp, err := a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{1, 0, 0}, Text: "login"}, 3, nil)
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	require.Len(t, resp.Results, 3)

	dense, err := a.Search(ctx, "code", []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, dense, resp.Results)

	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		require.NoError(t, r.Validate())
	}
	assert.Equal(t, "auth/login.go", resp.Results[0].RelativePath)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
}

func TestAdapter_NativeFusion(t *testing.T) {
	ctx := context.Background()
	store := newFusingStore()
	a := vectorstore.NewAdapter(store, nil)

	caps, err := a.CreateHybridCollection(ctx, "code", 3)
	require.NoError(t, err)
	assert.True(t, caps.FullText)
	assert.True(t, caps.NativeFusion)
	assert.True(t, caps.FilteredDelete)

	require.NoError(t, a.Insert(ctx, "code", docs()))
	lookups := store.hasFullTextHit.Load()

	resp, err := a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{1, 0, 0}, Text: "login"}, 2, nil)
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int32(1), store.hybridCalls.Load())
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-9)
	assert.Greater(t, resp.Results[0].Score, resp.Results[1].Score)

	for i := 0; i < 3; i++ {
		_, err := a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{0, 1, 0}, Text: "conn"}, 2, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(4), store.hybridCalls.Load())
	assert.Equal(t, lookups, store.hasFullTextHit.Load())
}

func TestAdapter_ProvisionFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newFusingStore()
	store.provisionErr = errors.New("fts5 not compiled in")
	a := vectorstore.NewAdapter(store, nil)

	caps, err := a.CreateHybridCollection(ctx, "code", 3)
	require.NoError(t, err)
	assert.False(t, caps.FullText)
	assert.False(t, caps.NativeFusion)

	require.NoError(t, a.Insert(ctx, "code", docs()))
	resp, err := a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{0, 1, 0}, Text: "conn"}, 5, nil)
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.Equal(t, int32(0), store.hybridCalls.Load())
}

func TestAdapter_CapabilitiesCached(t *testing.T) {
	ctx := context.Background()
	store := newFusingStore()
	a := vectorstore.NewAdapter(store, nil)

	_, err := a.CreateHybridCollection(ctx, "code", 3)
	require.NoError(t, err)
	calls := store.hasFullTextHit.Load()

	for i := 0; i < 5; i++ {
		_, err := a.Capabilities(ctx, "code")
		require.NoError(t, err)
	}
	assert.Equal(t, calls, store.hasFullTextHit.Load())

	require.NoError(t, a.DropCollection(ctx, "code"))
	_, err = a.Capabilities(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, calls+1, store.hasFullTextHit.Load())
}

func TestAdapter_DeleteByPath(t *testing.T) {
	ctx := context.Background()

	t.Run("scan fallback", func(t *testing.T) {
		a := vectorstore.NewAdapter(memory.New(), nil)
		require.NoError(t, a.CreateCollection(ctx, "code", 3))
		require.NoError(t, a.Insert(ctx, "code", docs()))

		n, err := a.DeleteByPath(ctx, "code", "auth/login.go")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		count, err := a.Count(ctx, "code")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		n, err = a.DeleteByPath(ctx, "code", "missing.go")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("native", func(t *testing.T) {
		store := newFusingStore()
		a := vectorstore.NewAdapter(store, nil)
		require.NoError(t, a.CreateCollection(ctx, "code", 3))
		require.NoError(t, a.Insert(ctx, "code", docs()))

		n, err := a.DeleteByPath(ctx, "code", "db/conn.go")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, int32(1), store.filteredCalls.Load())

		left, err := a.Query(ctx, "code", vectorstore.Filter{RelativePath: "db/conn.go"}, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, left)
	})
}

func TestAdapter_ReplaceFile(t *testing.T) {
	ctx := context.Background()
	a := vectorstore.NewAdapter(memory.New(), nil)
	require.NoError(t, a.CreateCollection(ctx, "code", 3))
	require.NoError(t, a.Insert(ctx, "code", docs()))

	replacement := vectorstore.Document{
		Chunk:  types.NewCodeChunk("auth/login.go", "new body", 1, 9, "go"),
		Vector: []float32{1, 1, 0},
	}
	require.NoError(t, a.ReplaceFile(ctx, "code", "auth/login.go", []vectorstore.Document{replacement}))

	got, err := a.Query(ctx, "code", vectorstore.Filter{RelativePath: "auth/login.go"}, nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, replacement.Chunk.ID, got[0].ID)
}

func TestAdapter_QueryProjection(t *testing.T) {
	ctx := context.Background()
	a := vectorstore.NewAdapter(memory.New(), nil)
	require.NoError(t, a.CreateCollection(ctx, "code", 3))
	require.NoError(t, a.Insert(ctx, "code", docs()))

	got, err := a.Query(ctx, "code", vectorstore.Filter{}, []string{vectorstore.FieldPath}, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, c := range got {
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.RelativePath)
		assert.Empty(t, c.Content)
		assert.Zero(t, c.StartLine)
	}
}

func TestAdapter_EnsureCollection(t *testing.T) {
	ctx := context.Background()
	a := vectorstore.NewAdapter(newFusingStore(), nil)

	caps, err := a.EnsureCollection(ctx, "code", 3, true)
	require.NoError(t, err)
	assert.True(t, caps.FullText)

	// existing collection keeps its capabilities
	caps, err = a.EnsureCollection(ctx, "code", 3, false)
	require.NoError(t, err)
	assert.True(t, caps.FullText)

	has, err := a.HasCollection(ctx, "code")
	require.NoError(t, err)
	assert.True(t, has)

	names, err := a.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, names)
}

func TestAdapter_EnsureCollectionAddsFullText(t *testing.T) {
	ctx := context.Background()
	store := newFusingStore()
	a := vectorstore.NewAdapter(store, nil)

	caps, err := a.EnsureCollection(ctx, "code", 3, false)
	require.NoError(t, err)
	assert.False(t, caps.FullText)
	require.NoError(t, a.Insert(ctx, "code", docs()))

	resp, err := a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{1, 0, 0}, Text: "login"}, 2, nil)
	require.NoError(t, err)
	assert.True(t, resp.Fallback)

	caps, err = a.EnsureCollection(ctx, "code", 3, true)
	require.NoError(t, err)
	assert.True(t, caps.FullText)
	assert.True(t, caps.NativeFusion)

	resp, err = a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{1, 0, 0}, Text: "login"}, 2, nil)
	require.NoError(t, err)
	assert.False(t, resp.Fallback)

	count, err := a.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestAdapter_EnsureCollectionProvisionFailure(t *testing.T) {
	ctx := context.Background()
	store := newFusingStore()
	a := vectorstore.NewAdapter(store, nil)

	_, err := a.EnsureCollection(ctx, "code", 3, false)
	require.NoError(t, err)

	store.provisionErr = errors.New("fts5 not compiled in")
	caps, err := a.EnsureCollection(ctx, "code", 3, true)
	require.NoError(t, err)
	assert.False(t, caps.FullText)
	assert.False(t, caps.NativeFusion)
	assert.True(t, caps.FilteredDelete)
}

func TestAdapter_ZeroTopK(t *testing.T) {
	ctx := context.Background()
	a := vectorstore.NewAdapter(memory.New(), nil)
	require.NoError(t, a.CreateCollection(ctx, "code", 3))

	res, err := a.Search(ctx, "code", []float32{1, 0, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}
