// Package vectorstore defines the storage contract for embedded chunks and
// the Adapter that gives callers one behavior over backends of differing
// ability.
//
// Backends implement Backend and may add FullTextProvisioner, HybridSearcher
// and FilteredDeleter. The Adapter detects these per collection, caches the
// result, and falls back when one is missing: hybrid search degrades to the
// dense ranking with HybridResponse.Fallback set, and deleting a file's
// chunks degrades to a query followed by delete by ID.
//
// Scores reaching callers are always normalized into [0, 1] with
// NormalizeScore, whatever metric the backend returned.
package vectorstore
