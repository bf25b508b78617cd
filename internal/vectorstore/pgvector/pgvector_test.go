package pgvector

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

func TestTableName(t *testing.T) {
	name, err := tableName("code_chunks_abc123")
	require.NoError(t, err)
	assert.Equal(t, `"semindex_code_chunks_abc123"`, name)

	_, err = tableName(`x"; DROP TABLE y; --`)
	assert.Error(t, err)
	_, err = tableName("")
	assert.Error(t, err)
}

func TestBuilderFilter(t *testing.T) {
	b := &builder{}
	assert.Empty(t, b.filter(nil))
	assert.Empty(t, b.filter(&vectorstore.Filter{}))

	first := b.add("x")
	assert.Equal(t, "$1", first)
	clause := b.filter(&vectorstore.Filter{RelativePath: "a.go", Language: "go", Extensions: []string{".GO"}})
	assert.Equal(t, " AND relative_path = $2 AND language = $3 AND lower(file_extension) = ANY($4)", clause)
	assert.Len(t, b.args, 4)
}

func TestTSQuery(t *testing.T) {
	assert.Equal(t, "parse | config | file", tsQuery("parse config-file!"))
	assert.Equal(t, "", tsQuery("&|!()"))
}

func TestHybridQuery(t *testing.T) {
	q, args := hybridQuery(`"semindex_c"`, vectorstore.HybridRequest{Vector: []float32{1, 0}, Text: "open db"}, 60, 5,
		&vectorstore.Filter{Language: "go"})

	assert.True(t, strings.HasPrefix(q, "WITH dense AS"))
	assert.Contains(t, q, "lexical AS")
	assert.Contains(t, q, "ORDER BY score DESC LIMIT $7")
	// vector, candidates, tsquery, k, filter (dense), filter (lexical), topK
	require.Len(t, args, 7)
	assert.Equal(t, 15, args[1])
	assert.Equal(t, "open | db", args[2])
	assert.Equal(t, 60.0, args[3])
	assert.Equal(t, 5, args[6])
}

// TestStore_Postgres runs against a live server when SEMINDEX_TEST_POSTGRES_DSN is set
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("SEMINDEX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SEMINDEX_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	const coll = "semindex_test_collection"
	_ = s.DropCollection(ctx, coll)
	defer func() { _ = s.DropCollection(ctx, coll) }()

	a := vectorstore.NewAdapter(s, nil)
	caps, err := a.CreateHybridCollection(ctx, coll, 3)
	require.NoError(t, err)
	assert.True(t, caps.NativeFusion)

	docs := []vectorstore.Document{
		{Chunk: types.NewCodeChunk("db/open.go", "func OpenDatabase(path string) error", 1, 3, "go"), Vector: []float32{1, 0, 0}},
		{Chunk: types.NewCodeChunk("http/server.go", "func ListenAndServe() error", 1, 3, "go"), Vector: []float32{0, 1, 0}},
	}
	require.NoError(t, a.Insert(ctx, coll, docs))

	resp, err := a.HybridSearch(ctx, coll, vectorstore.HybridRequest{Vector: []float32{1, 0, 0}, Text: "OpenDatabase"}, 2, nil)
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "db/open.go", resp.Results[0].RelativePath)

	n, err := a.DeleteByPath(ctx, coll, "db/open.go")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
