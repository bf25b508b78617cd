// Package memory provides an in-process vector store backend. It searches by
// brute-force cosine similarity and has no lexical index, so hybrid search
// through it always uses the dense fallback.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

type collection struct {
	dimension int
	docs      map[string]vectorstore.Document
	order     []string
}

// Store is a map-backed vectorstore.Backend
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	closed      bool
}

// New creates an empty store
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// Name implements vectorstore.Backend
func (s *Store) Name() string { return "memory" }

func (s *Store) get(name string) (*collection, error) {
	if s.closed {
		return nil, vectorstore.ErrVectorStoreUnavailable
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
	}
	return c, nil
}

// CreateCollection implements vectorstore.Backend. Creating an existing
// collection is a no-op.
func (s *Store) CreateCollection(ctx context.Context, spec vectorstore.CollectionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vectorstore.ErrVectorStoreUnavailable
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", vectorstore.ErrDimensionMismatch, spec.Dimension)
	}
	if _, ok := s.collections[spec.Name]; ok {
		return nil
	}
	s.collections[spec.Name] = &collection{
		dimension: spec.Dimension,
		docs:      make(map[string]vectorstore.Document),
	}
	return nil
}

// DropCollection implements vectorstore.Backend
func (s *Store) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vectorstore.ErrVectorStoreUnavailable
	}
	delete(s.collections, name)
	return nil
}

// ListCollections implements vectorstore.Backend
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, vectorstore.ErrVectorStoreUnavailable
	}
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// HasCollection implements vectorstore.Backend
func (s *Store) HasCollection(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, vectorstore.ErrVectorStoreUnavailable
	}
	_, ok := s.collections[name]
	return ok, nil
}

// Insert implements vectorstore.Backend
func (s *Store) Insert(ctx context.Context, name string, docs []vectorstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(name)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if len(d.Vector) != c.dimension {
			return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(d.Vector), c.dimension)
		}
	}
	for _, d := range docs {
		if _, ok := c.docs[d.Chunk.ID]; !ok {
			c.order = append(c.order, d.Chunk.ID)
		}
		vec := make([]float32, len(d.Vector))
		copy(vec, d.Vector)
		c.docs[d.Chunk.ID] = vectorstore.Document{Chunk: d.Chunk, Vector: vec}
	}
	return nil
}

// Delete implements vectorstore.Backend
func (s *Store) Delete(ctx context.Context, name string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(name)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(c.docs, id)
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if _, ok := c.docs[id]; ok {
			kept = append(kept, id)
		}
	}
	c.order = kept
	return nil
}

// Search implements vectorstore.Backend
func (s *Store) Search(ctx context.Context, name string, vector []float32, topK int, filter *vectorstore.Filter) (vectorstore.HitSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return vectorstore.HitSet{}, err
	}
	if len(vector) != c.dimension {
		return vectorstore.HitSet{}, fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), c.dimension)
	}

	hits := make([]vectorstore.Hit, 0, len(c.order))
	for _, id := range c.order {
		d := c.docs[id]
		if !filter.Matches(&d.Chunk) {
			continue
		}
		hits = append(hits, vectorstore.Hit{
			Chunk: d.Chunk,
			Score: vectorstore.CosineSimilarity(vector, d.Vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return vectorstore.HitSet{Hits: hits, Metric: vectorstore.MetricCosineSimilarity}, nil
}

// Query implements vectorstore.Backend
func (s *Store) Query(ctx context.Context, name string, filter vectorstore.Filter, limit int) ([]types.CodeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	var out []types.CodeChunk
	for _, id := range c.order {
		d := c.docs[id]
		if !filter.Matches(&d.Chunk) {
			continue
		}
		out = append(out, d.Chunk)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Count implements vectorstore.Backend
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return 0, err
	}
	return len(c.docs), nil
}

// Close implements vectorstore.Backend. Later calls fail with
// ErrVectorStoreUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
