package embedder

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dshills/semindex/pkg/types"
)

const (
	// DefaultMaxBatchBytes bounds the total text sent in one request
	DefaultMaxBatchBytes = 256 * 1024

	// DefaultConcurrency is the default number of in-flight batch requests
	DefaultConcurrency = 2
)

// CoordinatorConfig configures batching, concurrency and retry
type CoordinatorConfig struct {
	BatchSize         int
	MaxBatchBytes     int
	Concurrency       int
	RequestsPerSecond float64 // 0 disables rate limiting
	Retry             RetryConfig
}

// DefaultCoordinatorConfig returns the default configuration
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		BatchSize:     DefaultBatchSize,
		MaxBatchBytes: DefaultMaxBatchBytes,
		Concurrency:   DefaultConcurrency,
		Retry:         DefaultRetryConfig(),
	}
}

// EmbedResult holds the outcome of embedding a list of chunks.
// Vectors[i] belongs to the i-th input chunk and is nil when it failed.
type EmbedResult struct {
	Vectors        [][]float32
	FailedChunkIDs []string
	Batches        int
	FailedBatches  int
	Cancelled      bool
}

// Embedded returns the number of chunks that received a vector
func (r *EmbedResult) Embedded() int {
	return len(r.Vectors) - len(r.FailedChunkIDs)
}

// Coordinator batches chunks and embeds them with bounded concurrency.
// A batch that keeps failing is reported, never fatal to the others.
type Coordinator struct {
	embedder Embedder
	cfg      CoordinatorConfig
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewCoordinator creates a Coordinator for e
func NewCoordinator(e Embedder, cfg CoordinatorConfig, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxBatchBytes <= 0 {
		cfg.MaxBatchBytes = DefaultMaxBatchBytes
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	c := &Coordinator{embedder: e, cfg: cfg, logger: logger}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Concurrency
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// Embedder returns the underlying embedder
func (c *Coordinator) Embedder() Embedder {
	return c.embedder
}

// batch is a half-open range of input indexes
type batch struct {
	start int
	end   int
}

// plan groups inputs in order so no batch exceeds BatchSize texts or
// MaxBatchBytes bytes. A single oversized text gets a batch of its own.
func (c *Coordinator) plan(texts []string) []batch {
	var batches []batch
	cur := batch{}
	size := 0
	for i, t := range texts {
		n := cur.end - cur.start
		if n > 0 && (n >= c.cfg.BatchSize || size+len(t) > c.cfg.MaxBatchBytes) {
			batches = append(batches, cur)
			cur = batch{start: i, end: i}
			size = 0
		}
		cur.end = i + 1
		size += len(t)
	}
	if cur.end > cur.start {
		batches = append(batches, cur)
	}
	return batches
}

// Embed embeds every chunk. When ctx expires, batches not yet finished are
// reported as failed and Cancelled is set.
func (c *Coordinator) Embed(ctx context.Context, chunks []types.CodeChunk) *EmbedResult {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = Text(&chunks[i])
	}

	batches := c.plan(texts)
	result := &EmbedResult{
		Vectors: make([][]float32, len(chunks)),
		Batches: len(batches),
	}

	var mu sync.Mutex
	failBatch := func(b batch, err error) {
		mu.Lock()
		result.FailedBatches++
		mu.Unlock()
		c.logger.Warn("embedding batch failed",
			zap.Int("start", b.start),
			zap.Int("size", b.end-b.start),
			zap.Error(err))
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)

	for _, b := range batches {
		if ctx.Err() != nil {
			failBatch(b, ctx.Err())
			continue
		}
		g.Go(func() error {
			vectors, err := c.embedBatch(ctx, texts[b.start:b.end])
			if err != nil {
				failBatch(b, err)
				return nil
			}
			copy(result.Vectors[b.start:b.end], vectors)
			return nil
		})
	}
	_ = g.Wait()

	for i, v := range result.Vectors {
		if v == nil {
			result.FailedChunkIDs = append(result.FailedChunkIDs, chunks[i].ID)
		}
	}
	result.Cancelled = ctx.Err() != nil && len(result.FailedChunkIDs) > 0

	return result
}

func (c *Coordinator) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return retryWithBackoff(ctx, c.cfg.Retry, IsRetryable, func() ([][]float32, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := c.embedder.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(texts), len(resp.Embeddings))
		}
		vectors := make([][]float32, len(texts))
		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Vector) == 0 {
				return nil, fmt.Errorf("%w: empty embedding at index %d", ErrProviderFailed, i)
			}
			vectors[i] = emb.Vector
		}
		return vectors, nil
	})
}

// EmbedQuery embeds a single query text with the same retry policy
func (c *Coordinator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	vectors, err := c.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Text returns the text that is embedded for a chunk
func Text(c *types.CodeChunk) string {
	return "File: " + c.RelativePath + "\n" + c.Content
}
