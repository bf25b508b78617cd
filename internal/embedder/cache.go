package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{
		cache: cache,
	}
}

// Get retrieves a deep copy of an embedding from cache
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}, true
}

// Set stores an embedding in cache with automatic LRU eviction
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// CachedEmbedder serves repeated texts from a Cache and only sends misses to
// the wrapped embedder.
type CachedEmbedder struct {
	Embedder
	cache *Cache
}

// WithCache wraps e with cache. A nil cache returns e unchanged.
func WithCache(e Embedder, cache *Cache) Embedder {
	if cache == nil {
		return e
	}
	return &CachedEmbedder{Embedder: e, cache: cache}
}

func (c *CachedEmbedder) key(text string) string {
	return c.Provider() + "/" + c.Model() + "/" + ComputeHash(text)
}

func (c *CachedEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return single(ctx, c, req)
}

func (c *CachedEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	out := make([]*Embedding, len(req.Texts))
	var missTexts []string
	var missIdx []int
	for i, text := range req.Texts {
		if emb, ok := c.cache.Get(c.key(text)); ok {
			out[i] = emb
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		resp, err := c.Embedder.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: missTexts})
		if err != nil {
			return nil, err
		}
		for j, emb := range resp.Embeddings {
			if j >= len(missIdx) {
				break
			}
			emb.Hash = ComputeHash(missTexts[j])
			c.cache.Set(c.key(missTexts[j]), emb)
			out[missIdx[j]] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: out,
		Provider:   c.Provider(),
		Model:      c.Model(),
	}, nil
}
