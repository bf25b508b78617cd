package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

// Common errors
var (
	// ErrNotIndexed is returned when the root has no collection
	ErrNotIndexed = errors.New("root is not indexed")

	ErrEmptyQuery       = errors.New("query cannot be empty")
	ErrInvalidThreshold = errors.New("score threshold must be within [0, 1]")
)

const (
	DefaultTopK      = 10
	MaxTopK          = 100
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

// Config configures the response cache
type Config struct {
	CacheSize int           // 0 means DefaultCacheSize, negative disables caching
	CacheTTL  time.Duration // 0 means DefaultCacheTTL
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Root  string
	Query string
	// Vector skips query embedding when set. Hybrid search still needs Query.
	Vector         []float32
	TopK           int
	ScoreThreshold float64
	Extensions     []string
	Language       string
	RRFConstant    float64 // k for Reciprocal Rank Fusion (default 60)
	NoCache        bool
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Hybrid       bool
	// Fallback is set when a hybrid request was answered by dense search only
	Fallback bool
	CacheHit bool
	Duration time.Duration
}

// Searcher answers queries against indexed roots
type Searcher struct {
	coord  *embedder.Coordinator
	store  *vectorstore.Adapter
	cache  *expirable.LRU[string, *SearchResponse]
	logger *zap.Logger
}

// New creates a Searcher. Query vectors come from coord so they match the
// indexed ones.
func New(coord *embedder.Coordinator, store *vectorstore.Adapter, cfg Config, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Searcher{coord: coord, store: store, logger: logger}
	if cfg.CacheSize >= 0 {
		size := cfg.CacheSize
		if size == 0 {
			size = DefaultCacheSize
		}
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		s.cache = expirable.NewLRU[string, *SearchResponse](size, nil, ttl)
	}
	return s
}

// Search runs a dense similarity search
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return s.search(ctx, req, false)
}

// HybridSearch runs a dense plus full-text search. When the collection cannot
// fuse natively the results come from dense search and Fallback is set.
func (s *Searcher) HybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return s.search(ctx, req, true)
}

func (s *Searcher) search(ctx context.Context, req SearchRequest, hybrid bool) (*SearchResponse, error) {
	start := time.Now()

	if err := validateRequest(&req, hybrid); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}
	root, err := indexer.CanonicalRoot(req.Root)
	if err != nil {
		return nil, err
	}
	req.Root = root

	useCache := s.cache != nil && !req.NoCache && req.Vector == nil
	var key string
	if useCache {
		key = cacheKey(req, hybrid)
		if cached, ok := s.cache.Get(key); ok {
			resp := copySearchResponse(cached)
			resp.CacheHit = true
			resp.Duration = time.Since(start)
			return resp, nil
		}
	}

	collection := indexer.CollectionName(root)
	has, err := s.store.HasCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, root)
	}

	vector := req.Vector
	if vector == nil {
		vector, err = s.coord.EmbedQuery(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to generate query embedding: %w", err)
		}
	}

	filter := buildFilter(req)
	resp := &SearchResponse{Hybrid: hybrid}
	var results []types.SearchResult
	if hybrid {
		hr, err := s.store.HybridSearch(ctx, collection, vectorstore.HybridRequest{
			Vector:      vector,
			Text:        req.Query,
			RRFConstant: req.RRFConstant,
		}, req.TopK, filter)
		if err != nil {
			return nil, err
		}
		results = hr.Results
		resp.Fallback = hr.Fallback
	} else {
		results, err = s.store.Search(ctx, collection, vector, req.TopK, filter)
		if err != nil {
			return nil, err
		}
	}

	resp.Results = applyThreshold(results, req.ScoreThreshold)
	resp.TotalResults = len(resp.Results)
	resp.Duration = time.Since(start)

	if useCache {
		s.cache.Add(key, copySearchResponse(resp))
	}

	s.logger.Debug("search complete",
		zap.String("root", root),
		zap.Bool("hybrid", hybrid),
		zap.Bool("fallback", resp.Fallback),
		zap.Int("results", resp.TotalResults),
		zap.Duration("duration", resp.Duration))
	return resp, nil
}

// InvalidateRoot drops cached responses for root
func (s *Searcher) InvalidateRoot(root string) {
	if s.cache == nil {
		return
	}
	if canonical, err := indexer.CanonicalRoot(root); err == nil {
		root = canonical
	}
	prefix := root + "\x00"
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Remove(k)
		}
	}
}

// PurgeCache drops every cached response
func (s *Searcher) PurgeCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// validateRequest ensures search request is valid
func validateRequest(req *SearchRequest, hybrid bool) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" && (hybrid || req.Vector == nil) {
		return ErrEmptyQuery
	}
	if req.ScoreThreshold < 0 || req.ScoreThreshold > 1 {
		return ErrInvalidThreshold
	}

	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}

	exts := make([]string, 0, len(req.Extensions))
	for _, ext := range req.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	req.Extensions = exts
	return nil
}

func buildFilter(req SearchRequest) *vectorstore.Filter {
	f := &vectorstore.Filter{Extensions: req.Extensions, Language: req.Language}
	if f.IsEmpty() {
		return nil
	}
	return f
}

// applyThreshold drops results scoring below threshold and renumbers ranks
func applyThreshold(results []types.SearchResult, threshold float64) []types.SearchResult {
	out := make([]types.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// copySearchResponse creates a copy that shares nothing with src
func copySearchResponse(src *SearchResponse) *SearchResponse {
	dst := *src
	dst.Results = append([]types.SearchResult(nil), src.Results...)
	return &dst
}

// cacheKey is the root followed by a hash of everything else in the request
func cacheKey(req SearchRequest, hybrid bool) string {
	var data strings.Builder
	data.WriteString(req.Query)
	fmt.Fprintf(&data, "|%t|%d|%.4f|%.2f|", hybrid, req.TopK, req.ScoreThreshold, req.RRFConstant)
	data.WriteString(strings.Join(req.Extensions, ","))
	data.WriteString("|")
	data.WriteString(req.Language)

	sum := sha256.Sum256([]byte(data.String()))
	return req.Root + "\x00" + hex.EncodeToString(sum[:])
}
