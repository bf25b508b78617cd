// Package qdrant is a vector store backend speaking the Qdrant REST API.
// Qdrant filters payloads natively, so deleting a file's chunks needs no
// scan; it has no lexical ranking here and hybrid search falls back to dense.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

const (
	// DefaultURL is the local Qdrant REST endpoint
	DefaultURL = "http://localhost:6333"
	// DefaultTimeout bounds each HTTP request
	DefaultTimeout = 15 * time.Second

	scrollPageSize = 256
)

// payload keys
const (
	keyChunkID   = "chunk_id"
	keyPath      = "relative_path"
	keyExtension = "file_extension"
	keyExtLower  = "file_extension_lc"
	keyLanguage  = "language"
	keyContent   = "content"
	keyStartLine = "start_line"
	keyEndLine   = "end_line"
	keyMetadata  = "metadata"
)

// Config configures the client
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Store is a minimal REST client to Qdrant
type Store struct {
	url    string
	apiKey string
	client *http.Client
}

var (
	_ vectorstore.Backend         = (*Store)(nil)
	_ vectorstore.FilteredDeleter = (*Store)(nil)
)

// New creates a client. No request is made until the first operation.
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	base := cfg.URL
	if base == "" {
		base = DefaultURL
	}
	return &Store{
		url:    strings.TrimRight(base, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Name implements vectorstore.Backend
func (s *Store) Name() string { return "qdrant" }

// Close implements vectorstore.Backend
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// PointID maps a chunk ID onto the UUID Qdrant requires as point ID
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (s *Store) collectionURL(name string, parts ...string) string {
	u := s.url + "/collections/" + url.PathEscape(name)
	if len(parts) > 0 {
		u += "/" + strings.Join(parts, "/")
	}
	return u
}

// CreateCollection implements vectorstore.Backend
func (s *Store) CreateCollection(ctx context.Context, spec vectorstore.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", vectorstore.ErrDimensionMismatch, spec.Dimension)
	}
	exists, err := s.HasCollection(ctx, spec.Name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     spec.Dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(spec.Name), body, nil); err != nil {
		return err
	}

	// keyword indexes keep path and extension filters cheap
	for _, field := range []string{keyPath, keyExtLower, keyLanguage} {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := s.do(ctx, http.MethodPut, s.collectionURL(spec.Name, "index")+"?wait=true", idx, nil); err != nil {
			return err
		}
	}
	return nil
}

// DropCollection implements vectorstore.Backend
func (s *Store) DropCollection(ctx context.Context, name string) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(name), nil, nil)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return nil
	}
	return err
}

// ListCollections implements vectorstore.Backend
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.url+"/collections", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, len(resp.Result.Collections))
	for i, c := range resp.Result.Collections {
		names[i] = c.Name
	}
	return names, nil
}

// HasCollection implements vectorstore.Backend
func (s *Store) HasCollection(ctx context.Context, name string) (bool, error) {
	err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, nil)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Insert implements vectorstore.Backend
func (s *Store) Insert(ctx context.Context, collection string, docs []vectorstore.Document) error {
	if len(docs) == 0 {
		return nil
	}
	points := make([]map[string]any, len(docs))
	for i, d := range docs {
		points[i] = map[string]any{
			"id":      PointID(d.Chunk.ID),
			"vector":  d.Vector,
			"payload": toPayload(d.Chunk),
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL(collection, "points")+"?wait=true", body, nil)
}

// Delete implements vectorstore.Backend
func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPost, s.collectionURL(collection, "points", "delete")+"?wait=true", body, nil)
}

// DeleteByFilter implements vectorstore.FilteredDeleter
func (s *Store) DeleteByFilter(ctx context.Context, collection string, filter vectorstore.Filter) (int, error) {
	n, err := s.count(ctx, collection, &filter)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	body := map[string]any{"filter": buildFilter(&filter)}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "points", "delete")+"?wait=true", body, nil); err != nil {
		return 0, err
	}
	return n, nil
}

type scoredPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Search implements vectorstore.Backend. Qdrant's Cosine distance reports a
// similarity, higher is better.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int, filter *vectorstore.Filter) (vectorstore.HitSet, error) {
	hs := vectorstore.HitSet{Metric: vectorstore.MetricCosineSimilarity}
	if topK <= 0 {
		return hs, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "points", "search"), req, &resp); err != nil {
		return hs, err
	}
	hs.Hits = make([]vectorstore.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hs.Hits = append(hs.Hits, vectorstore.Hit{Chunk: fromPayload(r.Payload), Score: r.Score})
	}
	return hs, nil
}

// Query implements vectorstore.Backend by scrolling through matching points
func (s *Store) Query(ctx context.Context, collection string, filter vectorstore.Filter, limit int) ([]types.CodeChunk, error) {
	var out []types.CodeChunk
	var offset any
	for {
		page := scrollPageSize
		if limit > 0 && limit-len(out) < page {
			page = limit - len(out)
		}
		req := map[string]any{
			"limit":        page,
			"with_payload": true,
			"with_vector":  false,
		}
		if f := buildFilter(&filter); f != nil {
			req["filter"] = f
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "points", "scroll"), req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, fromPayload(p.Payload))
		}
		offset = resp.Result.NextPageOffset
		if offset == nil || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
	}
}

// Count implements vectorstore.Backend
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	return s.count(ctx, collection, nil)
}

func (s *Store) count(ctx context.Context, collection string, filter *vectorstore.Filter) (int, error) {
	req := map[string]any{"exact": true}
	if f := buildFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "points", "count"), req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// buildFilter converts a Filter into a Qdrant "must" filter
func buildFilter(f *vectorstore.Filter) map[string]any {
	if f.IsEmpty() {
		return nil
	}
	var must []map[string]any
	if f.RelativePath != "" {
		must = append(must, map[string]any{"key": keyPath, "match": map[string]any{"value": f.RelativePath}})
	}
	if f.Language != "" {
		must = append(must, map[string]any{"key": keyLanguage, "match": map[string]any{"value": f.Language}})
	}
	if len(f.Extensions) > 0 {
		exts := make([]string, len(f.Extensions))
		for i, e := range f.Extensions {
			exts[i] = strings.ToLower(e)
		}
		must = append(must, map[string]any{"key": keyExtLower, "match": map[string]any{"any": exts}})
	}
	return map[string]any{"must": must}
}

func toPayload(c types.CodeChunk) map[string]any {
	p := map[string]any{
		keyChunkID:   c.ID,
		keyPath:      c.RelativePath,
		keyExtension: c.FileExtension,
		keyExtLower:  strings.ToLower(c.FileExtension),
		keyLanguage:  c.Language,
		keyContent:   c.Content,
		keyStartLine: c.StartLine,
		keyEndLine:   c.EndLine,
	}
	if len(c.Metadata) > 0 {
		p[keyMetadata] = c.Metadata
	}
	return p
}

func fromPayload(p map[string]any) types.CodeChunk {
	var c types.CodeChunk
	c.ID, _ = p[keyChunkID].(string)
	c.RelativePath, _ = p[keyPath].(string)
	c.FileExtension, _ = p[keyExtension].(string)
	c.Language, _ = p[keyLanguage].(string)
	c.Content, _ = p[keyContent].(string)
	if v, ok := p[keyStartLine].(float64); ok {
		c.StartLine = int(v)
	}
	if v, ok := p[keyEndLine].(float64); ok {
		c.EndLine = int(v)
	}
	if m, ok := p[keyMetadata].(map[string]any); ok {
		c.Metadata = make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				c.Metadata[k] = s
			}
		}
	}
	return c
}

// do sends a JSON request and decodes the response into out when non-nil
func (s *Store) do(ctx context.Context, method, u string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: failed to encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("qdrant: failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s %s: %w", vectorstore.ErrVectorStoreUnavailable, method, u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: qdrant %s %s", vectorstore.ErrCollectionNotFound, method, u)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: qdrant %s %s: %s", vectorstore.ErrVectorStoreUnavailable, method, u, resp.Status)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, u, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant: failed to decode response: %w", err)
		}
	}
	return nil
}
