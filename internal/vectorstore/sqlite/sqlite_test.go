package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

func setupTestDB(t *testing.T) *Store {
	// Use in-memory database for testing
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDocs() []vectorstore.Document {
	mk := func(path, content string, start int, vec ...float32) vectorstore.Document {
		c := types.NewCodeChunk(path, content, start, start+2, "go")
		c.Metadata = map[string]string{types.MetaSplitter: "ast"}
		return vectorstore.Document{Chunk: c, Vector: vec}
	}
	return []vectorstore.Document{
		mk("auth/login.go", "func Login(user string) error { return checkPassword(user) }", 1, 1, 0, 0),
		mk("auth/login.go", "func Logout(session string) {}", 4, 0.7, 0.3, 0),
		mk("db/conn.go", "func Connect(dsn string) (*sql.DB, error)", 1, 0, 1, 0),
		mk("docs/README.md", "Project overview and setup", 1, 0, 0, 1),
	}
}

func TestOpen_Migrations(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	v, err := SchemaVersion(ctx, store.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	// idempotent
	require.NoError(t, ApplyMigrations(ctx, store.DB()))

	require.NoError(t, RollbackMigration(ctx, store.DB()))
	v, err = SchemaVersion(ctx, store.DB())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v)

	require.NoError(t, ApplyMigrations(ctx, store.DB()))
	v, err = SchemaVersion(ctx, store.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}

func TestCollections(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "b", Dimension: 3}))
	require.NoError(t, store.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "a", Dimension: 3}))
	require.NoError(t, store.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "a", Dimension: 3}))

	err := store.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "a", Dimension: 4})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, store.DropCollection(ctx, "a"))
	has, err := store.HasCollection(ctx, "a")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = store.Count(ctx, "a")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestInsertQueryDelete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "code", Dimension: 3}))

	docs := testDocs()
	require.NoError(t, store.Insert(ctx, "code", docs))
	// upsert of the same IDs does not duplicate
	require.NoError(t, store.Insert(ctx, "code", docs[:2]))

	n, err := store.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := store.Query(ctx, "code", vectorstore.Filter{RelativePath: "auth/login.go"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, docs[0].Chunk.ID, got[0].ID)
	assert.Equal(t, ".go", got[0].FileExtension)
	assert.Equal(t, "ast", got[0].Metadata[types.MetaSplitter])

	got, err = store.Query(ctx, "code", vectorstore.Filter{Extensions: []string{".MD"}}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "docs/README.md", got[0].RelativePath)

	removed, err := store.DeleteByFilter(ctx, "code", vectorstore.Filter{RelativePath: "auth/login.go"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	require.NoError(t, store.Delete(ctx, "code", []string{docs[2].Chunk.ID}))
	n, err = store.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = store.Insert(ctx, "code", []vectorstore.Document{{Chunk: docs[0].Chunk, Vector: []float32{1}}})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestSearch(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "code", Dimension: 3}))
	require.NoError(t, store.Insert(ctx, "code", testDocs()))

	hs, err := store.Search(ctx, "code", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hs.Hits, 2)
	assert.Equal(t, "auth/login.go", hs.Hits[0].Chunk.RelativePath)
	assert.Equal(t, 1, hs.Hits[0].Chunk.StartLine)

	best := vectorstore.NormalizeScore(hs.Hits[0].Score, hs.Metric, hs.Scale)
	second := vectorstore.NormalizeScore(hs.Hits[1].Score, hs.Metric, hs.Scale)
	assert.InDelta(t, 1.0, best, 1e-6)
	assert.Greater(t, best, second)

	hs, err = store.Search(ctx, "code", []float32{1, 0, 0}, 10, &vectorstore.Filter{RelativePath: "db/conn.go"})
	require.NoError(t, err)
	require.Len(t, hs.Hits, 1)

	_, err = store.Search(ctx, "code", []float32{1, 0}, 10, nil)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestHybridSearch(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "code", Dimension: 3}))
	require.NoError(t, store.Insert(ctx, "code", testDocs()))

	ft, err := store.HasFullText(ctx, "code")
	require.NoError(t, err)
	assert.False(t, ft)

	require.NoError(t, store.ProvisionFullText(ctx, "code"))
	ft, err = store.HasFullText(ctx, "code")
	require.NoError(t, err)
	assert.True(t, ft)

	hs, err := store.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{0, 1, 0}, Text: "Connect dsn"}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, vectorstore.MetricRRF, hs.Metric)
	require.NotEmpty(t, hs.Hits)
	assert.Equal(t, "db/conn.go", hs.Hits[0].Chunk.RelativePath)
	assert.LessOrEqual(t, len(hs.Hits), 3)
	assert.InDelta(t, 1.0, vectorstore.NormalizeScore(hs.Hits[0].Score, hs.Metric, hs.Scale), 1e-9)

	// rows inserted after provisioning are indexed by the triggers
	late := types.NewCodeChunk("auth/token.go", "func RefreshToken() string", 1, 1, "go")
	require.NoError(t, store.Insert(ctx, "code", []vectorstore.Document{{Chunk: late, Vector: []float32{0, 0, 1}}}))
	hits, err := store.searchText(ctx, "code", "RefreshToken", 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, late.ID, hits[0].Chunk.ID)
	assert.Greater(t, hits[0].Score, 0.0)

	// deletes are removed from the index
	_, err = store.DeleteByFilter(ctx, "code", vectorstore.Filter{RelativePath: "auth/token.go"})
	require.NoError(t, err)
	hits, err = store.searchText(ctx, "code", "RefreshToken", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAdapterOverSQLite(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	a := vectorstore.NewAdapter(store, nil)

	caps, err := a.CreateHybridCollection(ctx, "code", 3)
	require.NoError(t, err)
	assert.True(t, caps.FullText)
	assert.True(t, caps.NativeFusion)
	assert.True(t, caps.FilteredDelete)

	require.NoError(t, a.Insert(ctx, "code", testDocs()))
	resp, err := a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{1, 0, 0}, Text: "Login user"}, 2, nil)
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, "auth/login.go", resp.Results[0].RelativePath)
	for _, r := range resp.Results {
		require.NoError(t, r.Validate())
	}

	// the full-text flag is read once per collection, not per query
	_, err = store.db.ExecContext(ctx, "UPDATE collections SET full_text = 0 WHERE name = ?", "code")
	require.NoError(t, err)
	resp, err = a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{0, 1, 0}, Text: "Connect dsn"}, 2, nil)
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "db/conn.go", resp.Results[0].RelativePath)
}

func TestAdapterOverSQLite_AddsFullTextToExistingCollection(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	a := vectorstore.NewAdapter(store, nil)

	caps, err := a.EnsureCollection(ctx, "code", 3, false)
	require.NoError(t, err)
	assert.False(t, caps.FullText)
	require.NoError(t, a.Insert(ctx, "code", testDocs()))

	caps, err = a.EnsureCollection(ctx, "code", 3, true)
	require.NoError(t, err)
	assert.True(t, caps.FullText)
	assert.True(t, caps.NativeFusion)

	// rows stored before provisioning are searchable by text
	hits, err := store.searchText(ctx, "code", "Connect", 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "db/conn.go", hits[0].Chunk.RelativePath)

	resp, err := a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{0, 1, 0}, Text: "Connect"}, 2, nil)
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, "", ftsQuery("  ()* "))
	assert.Equal(t, `"login" OR "handler"`, ftsQuery("login handler"))
	assert.Equal(t, `"a" OR "NOT" OR "b"`, ftsQuery(`a NOT "b"`))
	assert.Equal(t, `"read_file"`, ftsQuery("read_file()"))
}

func TestSerializeVector(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	assert.Equal(t, v, deserializeVector(serializeVector(v)))
	assert.Len(t, serializeVector(v), 12)
}
