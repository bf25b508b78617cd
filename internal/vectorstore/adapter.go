package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/semindex/pkg/types"
)

// Query field names
const (
	FieldPath     = "relative_path"
	FieldContent  = "content"
	FieldLines    = "lines"
	FieldLanguage = "language"
	FieldMetadata = "metadata"
)

// Capabilities records what a backend can do for one collection.
// They are detected once per collection and cached.
type Capabilities struct {
	FullText       bool // a lexical index is provisioned
	NativeFusion   bool // hybrid search is fused by the backend
	FilteredDelete bool // delete by path without scanning
}

// HybridResponse is the result of a hybrid search
type HybridResponse struct {
	Results []types.SearchResult
	// Fallback is set when the backend could not fuse and only the dense
	// ranking was used
	Fallback bool
}

// Adapter presents one Backend through a uniform API. It owns capability
// negotiation, the hybrid fallback policy, score normalization and per
// collection write serialization.
type Adapter struct {
	backend Backend
	logger  *zap.Logger

	mu    sync.Mutex
	caps  map[string]Capabilities
	locks map[string]*sync.Mutex
}

// NewAdapter wraps backend
func NewAdapter(backend Backend, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		backend: backend,
		logger:  logger.With(zap.String("backend", backend.Name())),
		caps:    make(map[string]Capabilities),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Backend returns the wrapped backend
func (a *Adapter) Backend() Backend {
	return a.backend
}

// writeLock returns the mutex serializing writes to collection
func (a *Adapter) writeLock(collection string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		a.locks[collection] = l
	}
	return l
}

func (a *Adapter) forget(collection string) {
	a.mu.Lock()
	delete(a.caps, collection)
	a.mu.Unlock()
}

// CreateCollection creates a dense-only collection
func (a *Adapter) CreateCollection(ctx context.Context, name string, dimension int) error {
	if err := a.backend.CreateCollection(ctx, CollectionSpec{Name: name, Dimension: dimension}); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	a.forget(name)
	return nil
}

// CreateHybridCollection creates a collection and tries to add a lexical
// index. Failing to add the index is not an error; it shows up as
// Capabilities.FullText == false.
func (a *Adapter) CreateHybridCollection(ctx context.Context, name string, dimension int) (Capabilities, error) {
	if err := a.CreateCollection(ctx, name, dimension); err != nil {
		return Capabilities{}, err
	}
	return a.provisionFullText(ctx, name)
}

// provisionFullText adds the lexical index when the backend can and
// renegotiates. A failure leaves the collection dense-only.
func (a *Adapter) provisionFullText(ctx context.Context, name string) (Capabilities, error) {
	if p, ok := a.backend.(FullTextProvisioner); ok {
		if err := p.ProvisionFullText(ctx, name); err != nil {
			a.logger.Warn("full-text index not provisioned, hybrid search will use dense ranking",
				zap.String("collection", name),
				zap.Error(err))
		}
		a.forget(name)
	}
	return a.Capabilities(ctx, name)
}

// EnsureCollection creates the collection if it does not exist. An existing
// dense-only collection gets a lexical index when hybrid is requested.
func (a *Adapter) EnsureCollection(ctx context.Context, name string, dimension int, hybrid bool) (Capabilities, error) {
	exists, err := a.backend.HasCollection(ctx, name)
	if err != nil {
		return Capabilities{}, err
	}
	if exists {
		caps, err := a.Capabilities(ctx, name)
		if err != nil || !hybrid || caps.FullText {
			return caps, err
		}
		if _, ok := a.backend.(FullTextProvisioner); !ok {
			return caps, nil
		}
		a.logger.Info("adding full-text index to existing collection", zap.String("collection", name))
		return a.provisionFullText(ctx, name)
	}
	if hybrid {
		return a.CreateHybridCollection(ctx, name, dimension)
	}
	if err := a.CreateCollection(ctx, name, dimension); err != nil {
		return Capabilities{}, err
	}
	return a.Capabilities(ctx, name)
}

// Capabilities detects, once per collection, what the backend supports
func (a *Adapter) Capabilities(ctx context.Context, collection string) (Capabilities, error) {
	a.mu.Lock()
	c, ok := a.caps[collection]
	a.mu.Unlock()
	if ok {
		return c, nil
	}

	if p, ok := a.backend.(FullTextProvisioner); ok {
		ft, err := p.HasFullText(ctx, collection)
		if err != nil {
			return Capabilities{}, err
		}
		c.FullText = ft
	}
	if _, ok := a.backend.(HybridSearcher); ok {
		c.NativeFusion = c.FullText
	}
	if _, ok := a.backend.(FilteredDeleter); ok {
		c.FilteredDelete = true
	}

	a.mu.Lock()
	a.caps[collection] = c
	a.mu.Unlock()

	a.logger.Debug("negotiated capabilities",
		zap.String("collection", collection),
		zap.Bool("full_text", c.FullText),
		zap.Bool("native_fusion", c.NativeFusion),
		zap.Bool("filtered_delete", c.FilteredDelete))
	return c, nil
}

// DropCollection removes a collection and everything in it
func (a *Adapter) DropCollection(ctx context.Context, name string) error {
	l := a.writeLock(name)
	l.Lock()
	defer l.Unlock()

	if err := a.backend.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	a.forget(name)
	return nil
}

// ListCollections returns the names of all collections
func (a *Adapter) ListCollections(ctx context.Context) ([]string, error) {
	return a.backend.ListCollections(ctx)
}

// HasCollection reports whether name exists
func (a *Adapter) HasCollection(ctx context.Context, name string) (bool, error) {
	return a.backend.HasCollection(ctx, name)
}

// Count returns the number of chunks stored in collection
func (a *Adapter) Count(ctx context.Context, collection string) (int, error) {
	return a.backend.Count(ctx, collection)
}

// Insert stores documents
func (a *Adapter) Insert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	l := a.writeLock(collection)
	l.Lock()
	defer l.Unlock()
	return a.backend.Insert(ctx, collection, docs)
}

// Delete removes chunks by ID
func (a *Adapter) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	l := a.writeLock(collection)
	l.Lock()
	defer l.Unlock()
	return a.backend.Delete(ctx, collection, ids)
}

// DeleteByPath removes every chunk of one file and returns how many were removed
func (a *Adapter) DeleteByPath(ctx context.Context, collection, relPath string) (int, error) {
	l := a.writeLock(collection)
	l.Lock()
	defer l.Unlock()
	return a.deleteByPath(ctx, collection, relPath)
}

// ReplaceFile removes the stored chunks of relPath and inserts docs, under
// one write lock so no other writer interleaves.
func (a *Adapter) ReplaceFile(ctx context.Context, collection, relPath string, docs []Document) error {
	l := a.writeLock(collection)
	l.Lock()
	defer l.Unlock()

	if _, err := a.deleteByPath(ctx, collection, relPath); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	return a.backend.Insert(ctx, collection, docs)
}

// deleteByPath uses the backend's filtered delete when it has one. Otherwise
// it scans the collection for the file's chunk IDs and deletes those, which
// costs a read of the whole collection.
func (a *Adapter) deleteByPath(ctx context.Context, collection, relPath string) (int, error) {
	filter := Filter{RelativePath: relPath}

	caps, err := a.Capabilities(ctx, collection)
	if err != nil {
		return 0, err
	}
	if caps.FilteredDelete {
		return a.backend.(FilteredDeleter).DeleteByFilter(ctx, collection, filter)
	}

	chunks, err := a.backend.Query(ctx, collection, Filter{}, 0)
	if err != nil {
		return 0, err
	}
	var ids []string
	for i := range chunks {
		if filter.Matches(&chunks[i]) {
			ids = append(ids, chunks[i].ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := a.backend.Delete(ctx, collection, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Search returns up to topK chunks nearest to vector with normalized scores
func (a *Adapter) Search(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) ([]types.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	hs, err := a.backend.Search(ctx, collection, vector, topK, filter)
	if err != nil {
		return nil, err
	}
	return rank(hs, topK), nil
}

// HybridSearch fuses dense and lexical ranking when the backend can. When it
// cannot, the dense ranking is returned in the same shape and Fallback is set.
func (a *Adapter) HybridSearch(ctx context.Context, collection string, req HybridRequest, topK int, filter *Filter) (*HybridResponse, error) {
	if topK <= 0 {
		return &HybridResponse{}, nil
	}
	caps, err := a.Capabilities(ctx, collection)
	if err != nil {
		return nil, err
	}

	if caps.NativeFusion && req.Text != "" {
		hs, err := a.backend.(HybridSearcher).HybridSearch(ctx, collection, req, topK, filter)
		if err != nil {
			return nil, err
		}
		return &HybridResponse{Results: rank(hs, topK)}, nil
	}

	hs, err := a.backend.Search(ctx, collection, req.Vector, topK, filter)
	if err != nil {
		return nil, err
	}
	return &HybridResponse{Results: rank(hs, topK), Fallback: true}, nil
}

// Query returns stored chunks matching filter. Only the requested fields are
// populated; the ID is always set. No fields means all fields.
func (a *Adapter) Query(ctx context.Context, collection string, filter Filter, fields []string, limit int) ([]types.CodeChunk, error) {
	chunks, err := a.backend.Query(ctx, collection, filter, limit)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return chunks, nil
	}
	for i := range chunks {
		chunks[i] = project(chunks[i], fields)
	}
	return chunks, nil
}

// Close closes the backend
func (a *Adapter) Close() error {
	return a.backend.Close()
}

func project(c types.CodeChunk, fields []string) types.CodeChunk {
	out := types.CodeChunk{ID: c.ID}
	for _, f := range fields {
		switch f {
		case FieldPath:
			out.RelativePath = c.RelativePath
			out.FileExtension = c.FileExtension
		case FieldContent:
			out.Content = c.Content
		case FieldLines:
			out.StartLine, out.EndLine = c.StartLine, c.EndLine
		case FieldLanguage:
			out.Language = c.Language
		case FieldMetadata:
			out.Metadata = c.Metadata
		}
	}
	return out
}

// rank normalizes, orders and numbers a hit set
func rank(hs HitSet, topK int) []types.SearchResult {
	results := make([]types.SearchResult, 0, len(hs.Hits))
	for _, h := range hs.Hits {
		results = append(results, types.SearchResult{
			ChunkID:      h.Chunk.ID,
			Score:        NormalizeScore(h.Score, hs.Metric, hs.Scale),
			RelativePath: h.Chunk.RelativePath,
			StartLine:    h.Chunk.StartLine,
			EndLine:      h.Chunk.EndLine,
			Content:      h.Chunk.Content,
			Language:     h.Chunk.Language,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}
