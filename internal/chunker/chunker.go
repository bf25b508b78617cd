package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/parser"
	"github.com/dshills/semindex/pkg/types"
)

const (
	// DefaultChunkSize is the default maximum chunk body size in bytes
	DefaultChunkSize = 2500

	// DefaultChunkOverlap is the default overlap carried into the next chunk
	DefaultChunkOverlap = 300

	// DefaultMinChunkChars drops chunks with no visible content
	DefaultMinChunkChars = 1
)

// Options configures a Splitter
type Options struct {
	ChunkSize     int
	ChunkOverlap  int
	MinChunkChars int
}

// DefaultOptions returns the default splitting options
func DefaultOptions() Options {
	return Options{
		ChunkSize:     DefaultChunkSize,
		ChunkOverlap:  DefaultChunkOverlap,
		MinChunkChars: DefaultMinChunkChars,
	}
}

// Validate checks the options for consistency
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", o.ChunkSize, o.ChunkOverlap)
	}
	return nil
}

// Splitter splits one file's text into chunks along syntax boundaries.
//
// Chunk bodies never exceed ChunkSize. Each chunk after the first is prefixed
// with the trailing whole lines of the previous chunk, up to ChunkOverlap
// bytes, so emitted content is bounded by ChunkSize+ChunkOverlap.
type Splitter struct {
	parser   *parser.Parser
	fallback *FallbackSplitter
	opts     Options
	logger   *zap.Logger
}

// New creates a Splitter
func New(p *parser.Parser, opts Options, logger *zap.Logger) *Splitter {
	if p == nil {
		p = parser.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	return &Splitter{
		parser:   p,
		fallback: NewFallbackSplitter(),
		opts:     opts,
		logger:   logger,
	}
}

// Options returns the options the splitter was built with
func (s *Splitter) Options() Options {
	return s.opts
}

// Split splits content with the configured sizes
func (s *Splitter) Split(ctx context.Context, relPath, languageID string, content []byte) ([]types.CodeChunk, error) {
	return s.SplitWith(ctx, relPath, languageID, content, s.opts.ChunkSize, s.opts.ChunkOverlap)
}

// SplitWith splits content with explicit sizes. Unsupported languages are
// split with the fallback splitter; any other parse failure is returned.
func (s *Splitter) SplitWith(ctx context.Context, relPath, languageID string, content []byte, maxChunkSize, overlapSize int) ([]types.CodeChunk, error) {
	if len(content) == 0 {
		return nil, nil
	}
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", maxChunkSize)
	}
	if overlapSize < 0 || overlapSize >= maxChunkSize {
		overlapSize = 0
	}

	tree, err := s.parser.Parse(ctx, content, languageID)
	if errors.Is(err, parser.ErrUnsupportedLanguage) {
		s.logger.Debug("no grammar, using fallback splitter",
			zap.String("path", relPath),
			zap.String("language", languageID))
		return s.filter(s.fallback.Split(relPath, languageID, string(content), maxChunkSize, overlapSize)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", relPath, err)
	}

	lines := splitLines(string(content))
	if len(lines) == 0 {
		return nil, nil
	}

	t := tiler{lines: lines, max: maxChunkSize, fallback: s.fallback}
	pieces := t.tile(tree.Root.Children, 0, len(lines)-1, nil)
	bodies := accumulate(pieces, maxChunkSize, overlapSize)

	chunks := make([]types.CodeChunk, 0, len(bodies))
	for i, b := range bodies {
		text := b.text
		start := b.start
		if i > 0 && overlapSize > 0 {
			// a folded tail shrinks the prefix so the chunk stays within max+overlap
			budget := min(overlapSize, maxChunkSize+overlapSize-len(b.text))
			if prefix, from := overlapPrefix(bodies[i-1], b, lines, budget); prefix != "" {
				text = prefix + "\n" + text
				start = from
			}
		}
		chunk := types.NewCodeChunk(relPath, text, start+1, b.end+1, languageID)
		chunk.Metadata = map[string]string{
			types.MetaSplitter: b.splitter(),
			types.MetaNodeType: b.nodeType,
		}
		chunks = append(chunks, chunk)
	}
	return s.filter(chunks), nil
}

// filter drops chunks below the minimum content threshold
func (s *Splitter) filter(chunks []types.CodeChunk) []types.CodeChunk {
	minChars := s.opts.MinChunkChars
	if minChars <= 0 {
		minChars = DefaultMinChunkChars
	}
	out := chunks[:0]
	for _, c := range chunks {
		if len(strings.TrimSpace(c.Content)) < minChars {
			continue
		}
		out = append(out, c)
	}
	return out
}

// splitLines splits text into lines; a trailing newline does not start a new line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
