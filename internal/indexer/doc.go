// Package indexer keeps a vector store collection in step with a source tree.
//
// Each indexed root has one collection, named from a hash of the canonical
// root path, and one manifest recording the fingerprint of every file whose
// chunks were fully committed. A sync walks the tree, hashes every file and
// diffs the result against the manifest:
//
//	idx := indexer.New(splitter, coord, adapter, manifests, indexer.Config{Hybrid: true}, logger)
//	summary, err := idx.Sync(ctx, "/path/to/project")
//	// summary.Added, summary.Modified, summary.Deleted, summary.Unchanged
//
// Only added and modified files are split and embedded. A file is committed
// on its own: its stored chunks are replaced and only then is its
// fingerprint recorded, so a file whose embedding partly failed is retried
// on the next sync. Chunks of deleted files are removed before new work
// starts.
//
// A change of embedding provider, model or dimension, a corrupt manifest, or
// SyncOptions.Force rebuilds the index from scratch.
//
// At most one sync runs per root; a concurrent call fails fast with
// ErrSyncInProgress. When the context deadline expires the files committed
// so far are kept and the summary is marked Partial.
package indexer
