package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/chunker"
	"github.com/dshills/semindex/internal/config"
	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/logging"
	"github.com/dshills/semindex/internal/manifest"
	"github.com/dshills/semindex/internal/parser"
	"github.com/dshills/semindex/internal/searcher"
	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/internal/vectorstore/memory"
	"github.com/dshills/semindex/internal/vectorstore/pgvector"
	"github.com/dshills/semindex/internal/vectorstore/qdrant"
	"github.com/dshills/semindex/internal/vectorstore/sqlite"
)

// app holds every component a command needs. The embedder is shared by the
// indexer and the searcher so query vectors match indexed ones.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder embedder.Embedder
	store    *vectorstore.Adapter
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

func newApp(ctx context.Context) (*app, error) {
	cfg, path, err := config.LoadDefault(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	if path != "" {
		logger.Debug("config loaded", zap.String("config", path))
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	backend, sqlStore, err := openBackend(ctx, cfg.VectorStore)
	if err != nil {
		return err
	}
	a.store = vectorstore.NewAdapter(backend, a.logger)

	var manifests manifest.Store
	switch cfg.Manifest.Backend {
	case config.ManifestSQLite:
		manifests, err = manifest.NewSQLStore(ctx, sqlStore.DB())
	default:
		manifests, err = manifest.NewFileStore(config.ExpandPath(cfg.Manifest.Dir))
	}
	if err != nil {
		return err
	}

	a.embedder, err = embedder.New(ctx, embedder.Config{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		APIKey:    cfg.Embedder.APIKey,
		BaseURL:   cfg.Embedder.BaseURL,
		Dimension: cfg.Embedder.Dimension,
		CacheSize: cfg.Embedder.CacheSize,
		Timeout:   cfg.Embedder.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	retry := embedder.DefaultRetryConfig()
	if cfg.Embedder.MaxRetries > 0 {
		retry.MaxRetries = cfg.Embedder.MaxRetries
	}
	coord := embedder.NewCoordinator(a.embedder, embedder.CoordinatorConfig{
		BatchSize:         cfg.Embedder.BatchSize,
		MaxBatchBytes:     cfg.Embedder.MaxBatchBytes,
		Concurrency:       cfg.Embedder.Concurrency,
		RequestsPerSecond: cfg.Embedder.RequestsPerSecond,
		Retry:             retry,
	}, a.logger)

	opts := chunker.Options{
		ChunkSize:     cfg.Chunker.ChunkSize,
		ChunkOverlap:  cfg.Chunker.ChunkOverlap,
		MinChunkChars: cfg.Chunker.MinChunkChars,
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	splitter := chunker.New(parser.New(), opts, a.logger)

	a.indexer = indexer.New(splitter, coord, a.store, manifests, indexer.Config{
		Workers:        cfg.Indexer.Workers,
		FileBatchSize:  cfg.Indexer.FileBatchSize,
		Extensions:     cfg.Indexer.Extensions,
		IgnorePatterns: cfg.Indexer.IgnorePatterns,
		MaxFileSize:    cfg.Indexer.MaxFileSize,
		Hybrid:         cfg.Indexer.Hybrid,
		Timeout:        cfg.Indexer.Timeout,
	}, a.logger)
	a.searcher = searcher.New(coord, a.store, searcher.Config{
		CacheSize: cfg.Search.CacheSize,
		CacheTTL:  cfg.Search.CacheTTL,
	}, a.logger)
	a.indexer.OnIndexChanged(a.searcher.InvalidateRoot)
	return nil
}

// openBackend returns the configured backend. The SQLite store is also
// returned so the manifest can share its database.
func openBackend(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Backend, *sqlite.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil, nil
	case config.BackendQdrant:
		return qdrant.New(qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  cfg.Qdrant.APIKey,
			Timeout: cfg.Qdrant.Timeout,
		}), nil, nil
	case config.BackendPGVector:
		store, err := pgvector.Open(ctx, cfg.PGVector.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		path := config.ExpandPath(cfg.SQLite.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
}

// Close releases the store and the embedder
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
