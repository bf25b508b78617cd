package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/semindex/internal/chunker"
	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/manifest"
	"github.com/dshills/semindex/internal/parser"
	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

// ErrSyncInProgress is returned when another sync of the same root is running
var ErrSyncInProgress = errors.New("sync already in progress for this root")

// CollectionPrefix starts every collection name
const CollectionPrefix = "code_chunks_"

const defaultFileBatchSize = 32

// Config contains configuration for the indexer
type Config struct {
	Workers        int      // file pool size (default: runtime.NumCPU())
	FileBatchSize  int      // files split and embedded together (default: 32)
	Extensions     []string // indexed extensions; empty means every known extension
	IgnorePatterns []string // added to DefaultIgnorePatterns and the ignore file
	MaxFileSize    int64    // default: DefaultMaxFileSize
	Hybrid         bool     // provision a full-text index on new collections
	Timeout        time.Duration
}

// SyncOptions tunes one run
type SyncOptions struct {
	// Force drops the collection and manifest first and reindexes everything
	Force bool
}

// SyncSummary reports what one run did. Files that failed are counted, not
// returned as an error, so callers can decide whether to retry.
type SyncSummary struct {
	Root       string
	Collection string

	Added     int
	Modified  int
	Deleted   int
	Unchanged int

	ChunksProduced int
	ChunksFailed   int
	FilesFailed    int

	// Partial is set when the deadline expired before every file was done
	Partial bool
	// FullReindex is set when the index was rebuilt from scratch
	FullReindex bool

	Duration time.Duration
	Errors   []string
}

func (s *SyncSummary) addError(path string, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", path, err))
}

// Indexer keeps a vector store collection in step with a source tree
type Indexer struct {
	splitter  *chunker.Splitter
	coord     *embedder.Coordinator
	store     *vectorstore.Adapter
	manifests manifest.Store
	walker    *walker
	cfg       Config
	logger    *zap.Logger

	locks rootLocks

	mu        sync.Mutex
	listeners []func(root string)
}

// New creates a new Indexer instance
func New(splitter *chunker.Splitter, coord *embedder.Coordinator, store *vectorstore.Adapter,
	manifests manifest.Store, cfg Config, logger *zap.Logger) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.FileBatchSize <= 0 {
		cfg.FileBatchSize = defaultFileBatchSize
	}
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = parser.KnownExtensions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		splitter:  splitter,
		coord:     coord,
		store:     store,
		manifests: manifests,
		walker:    newWalker(exts, cfg.IgnorePatterns, cfg.MaxFileSize),
		cfg:       cfg,
		logger:    logger,
	}
}

// OnIndexChanged registers fn to run after a sync or clear changes root
func (idx *Indexer) OnIndexChanged(fn func(root string)) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.listeners = append(idx.listeners, fn)
}

func (idx *Indexer) notify(root string) {
	idx.mu.Lock()
	listeners := append([]func(string){}, idx.listeners...)
	idx.mu.Unlock()
	for _, fn := range listeners {
		fn(root)
	}
}

// CanonicalRoot returns the absolute, cleaned form of root
func CanonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	return filepath.Clean(abs), nil
}

// CollectionName derives the collection for a canonical root
func CollectionName(root string) string {
	sum := sha256.Sum256([]byte(root))
	return CollectionPrefix + hex.EncodeToString(sum[:])[:16]
}

// Sync brings the collection for root up to date with the files on disk
func (idx *Indexer) Sync(ctx context.Context, root string) (*SyncSummary, error) {
	return idx.SyncWithOptions(ctx, root, SyncOptions{})
}

// SyncWithOptions is Sync with per-run options
func (idx *Indexer) SyncWithOptions(ctx context.Context, root string, opts SyncOptions) (*SyncSummary, error) {
	root, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	lock := idx.locks.get(root)
	if !lock.TryAcquire() {
		return nil, ErrSyncInProgress
	}
	defer lock.Release()

	if idx.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, idx.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	run := &syncRun{
		idx:        idx,
		root:       root,
		collection: CollectionName(root),
		summary: &SyncSummary{
			Root:       root,
			Collection: CollectionName(root),
		},
		logger: idx.logger.With(zap.String("root", root)),
	}

	err = run.execute(ctx, opts)
	run.summary.Duration = time.Since(start)
	if run.changed {
		idx.notify(root)
	}
	if err != nil {
		return run.summary, err
	}

	run.logger.Info("sync complete",
		zap.Int("added", run.summary.Added),
		zap.Int("modified", run.summary.Modified),
		zap.Int("deleted", run.summary.Deleted),
		zap.Int("unchanged", run.summary.Unchanged),
		zap.Int("chunks_produced", run.summary.ChunksProduced),
		zap.Int("chunks_failed", run.summary.ChunksFailed),
		zap.Int("files_failed", run.summary.FilesFailed),
		zap.Bool("partial", run.summary.Partial),
		zap.Duration("duration", run.summary.Duration))
	return run.summary, nil
}

// HasIndex reports whether a non-empty manifest exists for root
func (idx *Indexer) HasIndex(ctx context.Context, root string) (bool, error) {
	root, err := CanonicalRoot(root)
	if err != nil {
		return false, err
	}
	m, err := idx.manifests.Load(ctx, root)
	if errors.Is(err, manifest.ErrCorruptManifest) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Len() > 0, nil
}

// ClearIndex drops the manifest and the collection for root
func (idx *Indexer) ClearIndex(ctx context.Context, root string) error {
	root, err := CanonicalRoot(root)
	if err != nil {
		return err
	}
	lock := idx.locks.get(root)
	if !lock.TryAcquire() {
		return ErrSyncInProgress
	}
	defer lock.Release()

	// manifest first: a failure after this point only costs a reindex
	if err := idx.manifests.Delete(ctx, root); err != nil {
		return err
	}
	if err := idx.store.DropCollection(ctx, CollectionName(root)); err != nil {
		return err
	}
	idx.notify(root)
	idx.logger.Info("index cleared", zap.String("root", root))
	return nil
}

// Status describes the stored index for a root
type Status struct {
	Root         string
	Collection   string
	Indexed      bool
	Files        int
	Chunks       int
	Provider     string
	Model        string
	Dimension    int
	UpdatedAt    time.Time
	Capabilities vectorstore.Capabilities
}

// Status reports what is stored for root
func (idx *Indexer) Status(ctx context.Context, root string) (*Status, error) {
	root, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}
	st := &Status{Root: root, Collection: CollectionName(root)}

	m, err := idx.manifests.Load(ctx, root)
	if err != nil && !errors.Is(err, manifest.ErrCorruptManifest) {
		return nil, err
	}
	if m != nil {
		st.Files = m.Len()
		st.Provider, st.Model, st.Dimension = m.Provider, m.Model, m.Dimension
		st.UpdatedAt = m.UpdatedAt
	}

	has, err := idx.store.HasCollection(ctx, st.Collection)
	if err != nil {
		return nil, err
	}
	if has {
		if st.Chunks, err = idx.store.Count(ctx, st.Collection); err != nil {
			return nil, err
		}
		if st.Capabilities, err = idx.store.Capabilities(ctx, st.Collection); err != nil {
			return nil, err
		}
	}
	st.Indexed = st.Files > 0
	return st, nil
}

// syncRun holds the state of one Sync call
type syncRun struct {
	idx        *Indexer
	root       string
	collection string
	summary    *SyncSummary
	manifest   *manifest.Manifest
	logger     *zap.Logger
	changed    bool
}

func (r *syncRun) execute(ctx context.Context, opts SyncOptions) error {
	idx := r.idx
	emb := idx.coord.Embedder()

	m, err := idx.manifests.Load(ctx, r.root)
	switch {
	case errors.Is(err, manifest.ErrCorruptManifest):
		r.logger.Warn("manifest is corrupt, rebuilding index", zap.Error(err))
		m = manifest.New(r.root)
		opts.Force = true
	case err != nil:
		return err
	}

	if !m.SameEmbedding(emb.Provider(), emb.Model(), emb.Dimension()) {
		r.logger.Info("embedding model changed, rebuilding index",
			zap.String("old_model", m.Model),
			zap.String("new_model", emb.Model()))
		opts.Force = true
	}

	if opts.Force {
		if err := idx.store.DropCollection(ctx, r.collection); err != nil {
			return err
		}
		if err := idx.manifests.Delete(ctx, r.root); err != nil {
			return err
		}
		m = manifest.New(r.root)
		r.summary.FullReindex = true
		r.changed = true
	}
	if !opts.Force && m.Len() > 0 {
		has, err := idx.store.HasCollection(ctx, r.collection)
		if err != nil {
			return err
		}
		if !has {
			r.logger.Warn("collection missing, rebuilding index", zap.String("collection", r.collection))
			m = manifest.New(r.root)
			r.summary.FullReindex = true
			r.changed = true
		}
	}
	m.SetEmbedding(emb.Provider(), emb.Model(), emb.Dimension())
	r.manifest = m

	if _, err := idx.store.EnsureCollection(ctx, r.collection, emb.Dimension(), idx.cfg.Hybrid); err != nil {
		if ctx.Err() != nil {
			r.summary.Partial = true
			return nil
		}
		return err
	}

	files, err := idx.walker.walk(ctx, r.root)
	if err != nil {
		if ctx.Err() != nil {
			r.summary.Partial = true
			return nil
		}
		return fmt.Errorf("failed to enumerate files: %w", err)
	}

	current, pending, unreadable := r.fingerprint(ctx, files)
	if ctx.Err() != nil {
		r.summary.Partial = true
		return nil
	}

	diff := m.Diff(current)
	deleted := diff.Deleted[:0]
	for _, p := range diff.Deleted {
		// a file we failed to read is not a deleted file
		if !unreadable[p] {
			deleted = append(deleted, p)
		}
	}
	r.summary.Added = len(diff.Added)
	r.summary.Modified = len(diff.Modified)
	r.summary.Deleted = len(deleted)
	r.summary.Unchanged = len(diff.Unchanged)

	r.logger.Debug("classified files",
		zap.Int("added", len(diff.Added)),
		zap.Int("modified", len(diff.Modified)),
		zap.Int("deleted", len(deleted)),
		zap.Int("unchanged", len(diff.Unchanged)))

	// manifest is saved on every exit path, so committed files stay committed
	defer func() {
		if !r.changed {
			return
		}
		if err := idx.manifests.Save(context.WithoutCancel(ctx), r.manifest); err != nil {
			r.logger.Error("failed to save manifest", zap.Error(err))
		}
	}()
	if len(diff.Added)+len(diff.Modified)+len(deleted) > 0 || r.summary.FullReindex {
		r.changed = true
	}

	if err := r.removeDeleted(ctx, deleted); err != nil {
		return err
	}
	if r.summary.Partial {
		return nil
	}

	work := make([]*sourceFile, 0, len(diff.Added)+len(diff.Modified))
	for _, p := range append(diff.Added, diff.Modified...) {
		work = append(work, pending[p])
	}
	return r.indexFiles(ctx, work)
}

// fingerprint reads and hashes every file on the file pool. Content is kept
// only for files the manifest does not already match.
func (r *syncRun) fingerprint(ctx context.Context, files []sourceFile) (map[string]types.FileFingerprint, map[string]*sourceFile, map[string]bool) {
	var (
		mu         sync.Mutex
		current    = make(map[string]types.FileFingerprint, len(files))
		pending    = make(map[string]*sourceFile)
		unreadable = make(map[string]bool)
	)

	var g errgroup.Group
	g.SetLimit(r.idx.cfg.Workers)
	for i := range files {
		f := &files[i]
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			content, err := os.ReadFile(f.Path)
			if err != nil {
				mu.Lock()
				unreadable[f.RelPath] = true
				r.summary.FilesFailed++
				r.summary.addError(f.RelPath, err)
				mu.Unlock()
				r.logger.Warn("failed to read file", zap.String("path", f.RelPath), zap.Error(err))
				return nil
			}
			fp := types.FileFingerprint{
				RelativePath: f.RelPath,
				ContentHash:  types.HashString(string(content)),
				Size:         int64(len(content)),
			}

			mu.Lock()
			defer mu.Unlock()
			current[f.RelPath] = fp
			if old, ok := r.manifest.Get(f.RelPath); !ok || !old.Matches(fp) {
				f.Content = content
				f.Language = parser.LanguageForPath(f.RelPath)
				pending[f.RelPath] = f
			}
			return nil
		})
	}
	_ = g.Wait()
	return current, pending, unreadable
}

func (r *syncRun) removeDeleted(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if ctx.Err() != nil {
			r.summary.Partial = true
			return nil
		}
		n, err := r.idx.store.DeleteByPath(ctx, r.collection, p)
		if err != nil {
			if ctx.Err() != nil {
				r.summary.Partial = true
				return nil
			}
			return fmt.Errorf("failed to delete chunks for %s: %w", p, err)
		}
		r.manifest.Remove(p)
		r.logger.Debug("removed deleted file", zap.String("path", p), zap.Int("chunks", n))
	}
	return nil
}

// indexFiles splits, embeds and stores files in batches. Each file is
// committed on its own: its chunks replace the stored set and only then is
// its fingerprint recorded.
func (r *syncRun) indexFiles(ctx context.Context, files []*sourceFile) error {
	size := r.idx.cfg.FileBatchSize
	for start := 0; start < len(files); start += size {
		if ctx.Err() != nil {
			r.summary.Partial = true
			return nil
		}
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		if err := r.indexBatch(ctx, files[start:end]); err != nil {
			return err
		}
		if r.summary.Partial {
			return nil
		}
		if err := r.idx.manifests.Save(ctx, r.manifest); err != nil && ctx.Err() == nil {
			return fmt.Errorf("failed to save manifest: %w", err)
		}
	}
	return nil
}

func (r *syncRun) indexBatch(ctx context.Context, files []*sourceFile) error {
	chunks := make([][]types.CodeChunk, len(files))
	splitErrs := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(r.idx.cfg.Workers)
	for i, f := range files {
		g.Go(func() error {
			chunks[i], splitErrs[i] = r.idx.splitter.Split(ctx, f.RelPath, f.Language, f.Content)
			return nil
		})
	}
	_ = g.Wait()

	var all []types.CodeChunk
	for i := range files {
		if splitErrs[i] == nil {
			all = append(all, chunks[i]...)
		}
	}

	var vectors [][]float32
	if len(all) > 0 {
		res := r.idx.coord.Embed(ctx, all)
		vectors = res.Vectors
		if res.Cancelled {
			r.summary.Partial = true
		}
	}

	offset := 0
	for i, f := range files {
		if splitErrs[i] != nil {
			if ctx.Err() != nil {
				r.summary.Partial = true
				continue
			}
			r.summary.FilesFailed++
			r.summary.addError(f.RelPath, splitErrs[i])
			r.logger.Warn("failed to split file", zap.String("path", f.RelPath), zap.Error(splitErrs[i]))
			continue
		}

		fileChunks := chunks[i]
		fileVectors := vectors[offset : offset+len(fileChunks)]
		offset += len(fileChunks)

		docs := make([]vectorstore.Document, 0, len(fileChunks))
		failed := 0
		for j := range fileChunks {
			if fileVectors[j] == nil {
				failed++
				continue
			}
			docs = append(docs, vectorstore.Document{Chunk: fileChunks[j], Vector: fileVectors[j]})
		}
		if failed > 0 {
			// unembedded chunks of a cancelled run are retried next sync
			if r.summary.Partial {
				continue
			}
			r.summary.ChunksFailed += failed
			r.summary.FilesFailed++
			r.summary.addError(f.RelPath, fmt.Errorf("%d of %d chunks failed to embed", failed, len(fileChunks)))
			continue
		}

		if err := r.idx.store.ReplaceFile(ctx, r.collection, f.RelPath, docs); err != nil {
			if ctx.Err() != nil {
				r.summary.Partial = true
				return nil
			}
			if errors.Is(err, vectorstore.ErrVectorStoreUnavailable) {
				return fmt.Errorf("failed to store chunks for %s: %w", f.RelPath, err)
			}
			r.summary.FilesFailed++
			r.summary.addError(f.RelPath, err)
			r.logger.Warn("failed to store file", zap.String("path", f.RelPath), zap.Error(err))
			continue
		}

		r.manifest.Set(types.FileFingerprint{
			RelativePath: f.RelPath,
			ContentHash:  types.HashString(string(f.Content)),
			Size:         int64(len(f.Content)),
		})
		r.summary.ChunksProduced += len(docs)
		f.Content = nil
		r.logger.Debug("indexed file", zap.String("path", f.RelPath), zap.Int("chunks", len(docs)))
	}
	return nil
}
