package vectorstore

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/semindex/pkg/types"
)

var (
	// ErrVectorStoreUnavailable is returned when the backend cannot be reached
	// or fails to execute an operation. Callers abort the current run.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	// ErrCollectionNotFound is returned for operations on a missing collection
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDimensionMismatch is returned when a vector does not fit the collection
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrNotSupported is returned by optional capabilities a backend lacks
	ErrNotSupported = errors.New("operation not supported by backend")
)

// Document is a chunk together with its embedding
type Document struct {
	Chunk  types.CodeChunk
	Vector []float32
}

// Filter restricts searches, queries and deletes. Empty fields match everything.
type Filter struct {
	RelativePath string
	Language     string
	Extensions   []string // with leading dot
}

// IsEmpty reports whether the filter matches everything
func (f *Filter) IsEmpty() bool {
	return f == nil || (f.RelativePath == "" && f.Language == "" && len(f.Extensions) == 0)
}

// Matches reports whether chunk passes the filter
func (f *Filter) Matches(chunk *types.CodeChunk) bool {
	if f == nil {
		return true
	}
	if f.RelativePath != "" && chunk.RelativePath != f.RelativePath {
		return false
	}
	if f.Language != "" && chunk.Language != f.Language {
		return false
	}
	if len(f.Extensions) > 0 {
		ok := false
		for _, ext := range f.Extensions {
			if strings.EqualFold(ext, chunk.FileExtension) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// CollectionSpec describes a collection to create
type CollectionSpec struct {
	Name      string
	Dimension int
}

// Hit is one backend result carrying the backend's native score
type Hit struct {
	Chunk types.CodeChunk
	Score float64
}

// HitSet is an ordered list of hits scored with one metric
type HitSet struct {
	Hits   []Hit
	Metric Metric
	// Scale is the best possible score for MetricRRF; ignored otherwise
	Scale float64
}

// HybridRequest pairs a dense vector with a lexical query
type HybridRequest struct {
	Vector []float32
	Text   string
	// RRFConstant is the k in 1/(k+rank); 0 means DefaultRRFConstant
	RRFConstant float64
}

// Backend is the capability every vector store variant provides
type Backend interface {
	// Name identifies the backend variant
	Name() string

	CreateCollection(ctx context.Context, spec CollectionSpec) error
	DropCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	HasCollection(ctx context.Context, name string) (bool, error)

	// Insert stores documents, replacing any with the same chunk ID
	Insert(ctx context.Context, collection string, docs []Document) error
	Delete(ctx context.Context, collection string, ids []string) error

	// Search returns the topK nearest chunks to vector, best first
	Search(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) (HitSet, error)

	// Query returns stored chunks matching filter; limit <= 0 means no limit
	Query(ctx context.Context, collection string, filter Filter, limit int) ([]types.CodeChunk, error)

	Count(ctx context.Context, collection string) (int, error)
	Close() error
}

// FullTextProvisioner is implemented by backends that can add a lexical index
// to an existing collection.
type FullTextProvisioner interface {
	ProvisionFullText(ctx context.Context, collection string) error
	HasFullText(ctx context.Context, collection string) (bool, error)
}

// HybridSearcher is implemented by backends that fuse dense and lexical
// rankings themselves. Callers check HasFullText first; the Adapter does so
// once per collection.
type HybridSearcher interface {
	HybridSearch(ctx context.Context, collection string, req HybridRequest, topK int, filter *Filter) (HitSet, error)
}

// FilteredDeleter is implemented by backends that delete by filter without
// scanning the collection.
type FilteredDeleter interface {
	DeleteByFilter(ctx context.Context, collection string, filter Filter) (int, error)
}
