// Package manifest persists the per-root record of which file contents are
// currently indexed. A fingerprint is written only after the file's chunks
// are committed to the vector store, so the manifest never claims more than
// the store holds.
//
// Two stores are provided: FileStore writes one JSON document per root with
// an atomic rename, and SQLStore keeps the same data in SQLite tables next to
// the embedded vector store.
package manifest
