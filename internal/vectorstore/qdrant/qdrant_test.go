package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

type fakePoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// fakeQdrant implements the subset of the REST API the client uses
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]fakePoint
	apiKeys     []string
	deletes     []map[string]any
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: make(map[string]map[string]fakePoint)}
}

func matches(p fakePoint, filter map[string]any) bool {
	if filter == nil {
		return true
	}
	must, _ := filter["must"].([]any)
	for _, m := range must {
		cond := m.(map[string]any)
		key := cond["key"].(string)
		match := cond["match"].(map[string]any)
		if v, ok := match["value"]; ok && p.Payload[key] != v {
			return false
		}
		if anyOf, ok := match["any"].([]any); ok {
			found := false
			for _, a := range anyOf {
				if p.Payload[key] == a {
					found = true
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	reply := func(result any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 1 && parts[0] == "collections" {
		var cs []map[string]string
		for name := range f.collections {
			cs = append(cs, map[string]string{"name": name})
		}
		reply(map[string]any{"collections": cs})
		return
	}

	name := parts[1]
	points, exists := f.collections[name]

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodPut:
			f.collections[name] = make(map[string]fakePoint)
			reply(true)
		case http.MethodGet, http.MethodDelete:
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if r.Method == http.MethodDelete {
				delete(f.collections, name)
			}
			reply(true)
		}
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	filter, _ := body["filter"].(map[string]any)
	switch strings.Join(parts[2:], "/") {
	case "index":
		reply(true)
	case "points":
		raw, _ := json.Marshal(body["points"])
		var ps []fakePoint
		_ = json.Unmarshal(raw, &ps)
		for _, p := range ps {
			points[p.ID] = p
		}
		reply(true)
	case "points/delete":
		f.deletes = append(f.deletes, body)
		if ids, ok := body["points"].([]any); ok {
			for _, id := range ids {
				delete(points, id.(string))
			}
		} else {
			for id, p := range points {
				if matches(p, filter) {
					delete(points, id)
				}
			}
		}
		reply(true)
	case "points/count":
		n := 0
		for _, p := range points {
			if matches(p, filter) {
				n++
			}
		}
		reply(map[string]int{"count": n})
	case "points/scroll":
		var out []fakePoint
		for _, p := range points {
			if matches(p, filter) {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		reply(map[string]any{"points": out, "next_page_offset": nil})
	case "points/search":
		raw, _ := json.Marshal(body["vector"])
		var q []float32
		_ = json.Unmarshal(raw, &q)
		type scored struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		}
		var out []scored
		for _, p := range points {
			if matches(p, filter) {
				out = append(out, scored{Score: vectorstore.CosineSimilarity(q, p.Vector), Payload: p.Payload})
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		if limit := int(body["limit"].(float64)); len(out) > limit {
			out = out[:limit]
		}
		reply(out)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func setup(t *testing.T) (*Store, *fakeQdrant) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL + "/", APIKey: "secret"}), fake
}

func docs() []vectorstore.Document {
	mk := func(path string, start int, vec ...float32) vectorstore.Document {
		c := types.NewCodeChunk(path, "content "+path, start, start+3, "go")
		c.Metadata = map[string]string{types.MetaSplitter: "fallback"}
		return vectorstore.Document{Chunk: c, Vector: vec}
	}
	return []vectorstore.Document{
		mk("a/one.go", 1, 1, 0),
		mk("a/one.go", 10, 0.9, 0.1),
		mk("b/TWO.GO", 1, 0, 1),
	}
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, fake := setup(t)

	has, err := s.HasCollection(ctx, "code")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "code", Dimension: 2}))
	require.NoError(t, s.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "code", Dimension: 2}))

	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, names)

	require.NoError(t, s.Insert(ctx, "code", docs()))
	n, err := s.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.DropCollection(ctx, "code"))
	require.NoError(t, s.DropCollection(ctx, "code"))

	_, err = s.Count(ctx, "code")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	for _, k := range fake.apiKeys {
		assert.Equal(t, "secret", k)
	}
}

func TestStore_SearchAndQuery(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t)
	require.NoError(t, s.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "code", Dimension: 2}))
	d := docs()
	require.NoError(t, s.Insert(ctx, "code", d))

	hs, err := s.Search(ctx, "code", []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, vectorstore.MetricCosineSimilarity, hs.Metric)
	require.Len(t, hs.Hits, 2)
	assert.Equal(t, d[0].Chunk, hs.Hits[0].Chunk)

	hs, err = s.Search(ctx, "code", []float32{1, 0}, 5, &vectorstore.Filter{Extensions: []string{".go"}})
	require.NoError(t, err)
	assert.Len(t, hs.Hits, 3)

	got, err := s.Query(ctx, "code", vectorstore.Filter{RelativePath: "a/one.go"}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Query(ctx, "code", vectorstore.Filter{}, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_DeleteByFilter(t *testing.T) {
	ctx := context.Background()
	s, fake := setup(t)
	require.NoError(t, s.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "code", Dimension: 2}))
	d := docs()
	require.NoError(t, s.Insert(ctx, "code", d))

	n, err := s.DeleteByFilter(ctx, "code", vectorstore.Filter{RelativePath: "a/one.go"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, fake.deletes, 1)
	assert.Contains(t, fake.deletes[0], "filter")

	n, err = s.DeleteByFilter(ctx, "code", vectorstore.Filter{RelativePath: "a/one.go"})
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Delete(ctx, "code", []string{d[2].Chunk.ID}))
	count, err := s.Count(ctx, "code")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_AdapterFallsBackToDense(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t)
	a := vectorstore.NewAdapter(s, nil)

	caps, err := a.CreateHybridCollection(ctx, "code", 2)
	require.NoError(t, err)
	assert.False(t, caps.FullText)
	assert.True(t, caps.FilteredDelete)

	require.NoError(t, a.Insert(ctx, "code", docs()))
	resp, err := a.HybridSearch(ctx, "code", vectorstore.HybridRequest{Vector: []float32{0, 1}, Text: "two"}, 1, nil)
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "b/TWO.GO", resp.Results[0].RelativePath)
}

func TestStore_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := New(Config{URL: srv.URL})
	_, err := s.Count(context.Background(), "code")
	assert.ErrorIs(t, err, vectorstore.ErrVectorStoreUnavailable)

	srv.Close()
	_, err = s.ListCollections(context.Background())
	assert.ErrorIs(t, err, vectorstore.ErrVectorStoreUnavailable)
}

func TestPointID(t *testing.T) {
	assert.Equal(t, PointID("chunk_abc"), PointID("chunk_abc"))
	assert.NotEqual(t, PointID("chunk_abc"), PointID("chunk_abd"))
	assert.Len(t, PointID("chunk_abc"), 36)
}
