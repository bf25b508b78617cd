// Package embedder generates vector embeddings for code chunks using various providers.
//
// Providers: OpenAI and Jina (OpenAI-compatible HTTP API), Ollama, Gemini, and
// a local feature-hashing provider that needs no network.
//
// # Basic Usage
//
//	emb, err := embedder.New(ctx, embedder.Config{
//	    Provider:  "openai",
//	    APIKey:    key,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{"func ParseFile(path string) error { ... }"},
//	})
//
// # Errors
//
// Providers classify failures instead of retrying them:
//   - ErrProviderRateLimited: HTTP 429
//   - ErrProviderUnavailable: transport errors and 5xx responses
//   - ErrProviderFailed: everything else, not retried
//
// # Coordinator
//
// Coordinator embeds a list of chunks. It groups them into batches bounded by
// count and bytes, runs batches on a bounded worker pool, retries transient
// errors with exponential backoff and optionally rate-limits requests. A
// batch that exhausts its retries is reported in EmbedResult.FailedChunkIDs
// while the other batches continue. Vectors stay aligned with the input.
//
//	coord := embedder.NewCoordinator(emb, embedder.DefaultCoordinatorConfig(), logger)
//	res := coord.Embed(ctx, chunks)
//	for i, v := range res.Vectors {
//	    if v == nil {
//	        continue // chunks[i] failed
//	    }
//	}
package embedder
