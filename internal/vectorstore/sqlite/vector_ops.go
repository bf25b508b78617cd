package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/dshills/semindex/internal/vectorstore"
)

const (
	// hybridCandidateFactor widens each ranked list before fusion
	hybridCandidateFactor = 3
	// maxFTSTerms bounds the number of terms in a lexical query
	maxFTSTerms = 32
)

// Search implements vectorstore.Backend
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int, filter *vectorstore.Filter) (vectorstore.HitSet, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return vectorstore.HitSet{}, err
	}
	if len(vector) != dim {
		return vectorstore.HitSet{}, fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), dim)
	}
	if topK <= 0 {
		return vectorstore.HitSet{Metric: vectorstore.MetricCosineSimilarity}, nil
	}

	// Use SQL-side distance when sqlite-vec is available
	if VectorExtensionAvailable {
		return s.searchVectorOptimized(ctx, collection, vector, topK, filter)
	}
	return s.searchVectorFallback(ctx, collection, vector, topK, filter)
}

// searchVectorOptimized uses sqlite-vec; vec_distance_cosine returns a
// distance, lower is better
func (s *Store) searchVectorOptimized(ctx context.Context, collection string, vector []float32, topK int, filter *vectorstore.Filter) (vectorstore.HitSet, error) {
	query := "SELECT " + chunkColumns("c") + ", vec_distance_cosine(c.vector, ?) AS distance FROM chunks c WHERE c.collection = ?"
	args := []interface{}{serializeVector(vector), collection}
	query, args = applyFilter(query, args, filter, "c.")
	query += " ORDER BY distance ASC LIMIT ?"
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return vectorstore.HitSet{}, unavailable("vector search", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]vectorstore.Hit, 0, topK)
	for rows.Next() {
		var distance float64
		c, err := scanChunk(rows, &distance)
		if err != nil {
			return vectorstore.HitSet{}, err
		}
		hits = append(hits, vectorstore.Hit{Chunk: c, Score: distance})
	}
	if err := rows.Err(); err != nil {
		return vectorstore.HitSet{}, unavailable("vector search", err)
	}
	return vectorstore.HitSet{Hits: hits, Metric: vectorstore.MetricCosineDistance}, nil
}

// searchVectorFallback reads candidate vectors and ranks them in Go
func (s *Store) searchVectorFallback(ctx context.Context, collection string, vector []float32, topK int, filter *vectorstore.Filter) (vectorstore.HitSet, error) {
	query := "SELECT " + chunkColumns("c") + ", c.vector FROM chunks c WHERE c.collection = ?"
	query, args := applyFilter(query, []interface{}{collection}, filter, "c.")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return vectorstore.HitSet{}, unavailable("query embeddings", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]vectorstore.Hit, 0, topK)
	for rows.Next() {
		var blob []byte
		c, err := scanChunk(rows, &blob)
		if err != nil {
			return vectorstore.HitSet{}, err
		}
		stored := deserializeVector(blob)
		if len(stored) != len(vector) {
			continue
		}
		hits = append(hits, vectorstore.Hit{Chunk: c, Score: vectorstore.CosineSimilarity(vector, stored)})
	}
	if err := rows.Err(); err != nil {
		return vectorstore.HitSet{}, unavailable("query embeddings", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return vectorstore.HitSet{Hits: hits, Metric: vectorstore.MetricCosineSimilarity}, nil
}

// searchText ranks chunks with FTS5 BM25. bm25() is negative with lower
// meaning better, so scores are negated into MetricLexical.
func (s *Store) searchText(ctx context.Context, collection, text string, limit int, filter *vectorstore.Filter) ([]vectorstore.Hit, error) {
	match := ftsQuery(text)
	if match == "" {
		return nil, nil
	}

	query := "SELECT " + chunkColumns("c") + ", bm25(chunks_fts) AS score" +
		" FROM chunks_fts INNER JOIN chunks c ON c.id = chunks_fts.rowid" +
		" WHERE chunks_fts MATCH ? AND c.collection = ?"
	args := []interface{}{match, collection}
	query, args = applyFilter(query, args, filter, "c.")
	query += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("full-text search", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []vectorstore.Hit
	for rows.Next() {
		var bm25 float64
		c, err := scanChunk(rows, &bm25)
		if err != nil {
			return nil, err
		}
		hits = append(hits, vectorstore.Hit{Chunk: c, Score: -bm25})
	}
	return hits, rows.Err()
}

// HybridSearch implements vectorstore.HybridSearcher by fusing the dense and
// BM25 rankings with RRF.
func (s *Store) HybridSearch(ctx context.Context, collection string, req vectorstore.HybridRequest, topK int, filter *vectorstore.Filter) (vectorstore.HitSet, error) {
	candidates := topK * hybridCandidateFactor
	dense, err := s.Search(ctx, collection, req.Vector, candidates, filter)
	if err != nil {
		return vectorstore.HitSet{}, err
	}
	lexical, err := s.searchText(ctx, collection, req.Text, candidates, filter)
	if err != nil {
		return vectorstore.HitSet{}, err
	}

	fused := vectorstore.FuseRRF(req.RRFConstant, dense.Hits, lexical)
	if len(fused.Hits) > topK {
		fused.Hits = fused.Hits[:topK]
	}
	return fused, nil
}

// ftsQuery turns free text into an FTS5 MATCH expression. Every term is
// quoted so FTS5 operators and punctuation in the input are literal.
func ftsQuery(text string) string {
	terms := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(terms) > maxFTSTerms {
		terms = terms[:maxFTSTerms]
	}
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
