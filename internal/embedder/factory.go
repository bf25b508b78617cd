package embedder

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	CacheSize int
	Timeout   time.Duration
}

// New creates an embedder with explicit configuration. A positive CacheSize
// wraps the provider with an embedding cache.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		e, err = NewJinaProvider(cfg)
	case ProviderOpenAI:
		e, err = NewOpenAIProvider(cfg)
	case ProviderOllama:
		e, err = NewOllamaProvider(cfg)
	case ProviderGemini:
		e, err = NewGeminiProvider(ctx, cfg)
	case ProviderLocal, "":
		e, err = NewLocalProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		e = WithCache(e, NewCache(cfg.CacheSize))
	}
	return e, nil
}
