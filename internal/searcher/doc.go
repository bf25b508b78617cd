// Package searcher answers similarity queries against indexed roots.
//
// A query is embedded with the same coordinator used for indexing, searched
// in the root's collection and trimmed to results scoring at least the
// requested threshold. Scores are normalized to [0, 1] by the vector store
// adapter, so one threshold works across backends.
//
//	s := searcher.New(coord, adapter, searcher.Config{}, logger)
//	resp, err := s.HybridSearch(ctx, searcher.SearchRequest{
//	    Root:           "/path/to/project",
//	    Query:          "retry with exponential backoff",
//	    TopK:           10,
//	    ScoreThreshold: 0.2,
//	})
//
// Hybrid search combines dense and full-text ranking when the collection
// supports it. Otherwise it is answered by dense search alone and
// SearchResponse.Fallback is set.
//
// Responses are cached in a TTL-bounded LRU keyed by root and request.
// Register InvalidateRoot with the indexer so a sync or clear evicts stale
// entries:
//
//	idx.OnIndexChanged(s.InvalidateRoot)
package searcher
