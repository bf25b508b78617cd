// Package pgvector is a vector store backend on PostgreSQL with the pgvector
// extension. Each collection is its own table with an HNSW cosine index.
// Full text is a generated tsvector column, and hybrid fusion runs in SQL.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

const (
	registryTable = "semindex_collections"
	tablePrefix   = "semindex_"

	// hybridCandidateFactor widens each ranked list before fusion
	hybridCandidateFactor = 3
	maxTSTerms            = 32
)

var collectionName = regexp.MustCompile(`^[A-Za-z0-9_]{1,48}$`)

// Store is a vectorstore.Backend on PostgreSQL
type Store struct {
	db *sql.DB
}

var (
	_ vectorstore.Backend             = (*Store)(nil)
	_ vectorstore.FullTextProvisioner = (*Store)(nil)
	_ vectorstore.HybridSearcher      = (*Store)(nil)
	_ vectorstore.FilteredDeleter     = (*Store)(nil)
)

// Open connects to dsn and prepares the extension and registry table
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vectorstore.ErrVectorStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", vectorstore.ErrVectorStoreUnavailable, err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS ` + registryTable + ` (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			full_text BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return unavailable("migrate", err)
		}
	}
	return nil
}

// Name implements vectorstore.Backend
func (s *Store) Name() string { return "pgvector" }

// Close implements vectorstore.Backend
func (s *Store) Close() error { return s.db.Close() }

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, vectorstore.ErrVectorStoreUnavailable, err)
}

// tableName returns the quoted table for a collection
func tableName(collection string) (string, error) {
	if !collectionName.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return pq.QuoteIdentifier(tablePrefix + collection), nil
}

func (s *Store) dimension(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, "SELECT dimension FROM "+registryTable+" WHERE name = $1", collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, collection)
	}
	if err != nil {
		return 0, unavailable("read collection", err)
	}
	return dim, nil
}

// CreateCollection implements vectorstore.Backend
func (s *Store) CreateCollection(ctx context.Context, spec vectorstore.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", vectorstore.ErrDimensionMismatch, spec.Dimension)
	}
	table, err := tableName(spec.Name)
	if err != nil {
		return err
	}
	dim, err := s.dimension(ctx, spec.Name)
	if err == nil {
		if dim != spec.Dimension {
			return fmt.Errorf("%w: collection %s has dimension %d", vectorstore.ErrDimensionMismatch, spec.Name, dim)
		}
		return nil
	}
	if !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			chunk_id TEXT PRIMARY KEY,
			relative_path TEXT NOT NULL,
			file_extension TEXT,
			language TEXT,
			content TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			metadata JSONB,
			embedding vector(` + strconv.Itoa(spec.Dimension) + `) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(tablePrefix+spec.Name+"_path") +
			` ON ` + table + ` (relative_path)`,
		`CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(tablePrefix+spec.Name+"_hnsw") +
			` ON ` + table + ` USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return unavailable("create collection", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+registryTable+" (name, dimension) VALUES ($1, $2)", spec.Name, spec.Dimension); err != nil {
		return unavailable("register collection", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// DropCollection implements vectorstore.Backend
func (s *Store) DropCollection(ctx context.Context, name string) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return unavailable("drop collection", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+registryTable+" WHERE name = $1", name); err != nil {
		return unavailable("unregister collection", err)
	}
	return nil
}

// ListCollections implements vectorstore.Backend
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM "+registryTable+" ORDER BY name")
	if err != nil {
		return nil, unavailable("list collections", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasCollection implements vectorstore.Backend
func (s *Store) HasCollection(ctx context.Context, name string) (bool, error) {
	_, err := s.dimension(ctx, name)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ProvisionFullText implements vectorstore.FullTextProvisioner
func (s *Store) ProvisionFullText(ctx context.Context, collection string) error {
	table, err := tableName(collection)
	if err != nil {
		return err
	}
	if _, err := s.dimension(ctx, collection); err != nil {
		return err
	}
	stmts := []string{
		`ALTER TABLE ` + table + ` ADD COLUMN IF NOT EXISTS tsv tsvector
			GENERATED ALWAYS AS (to_tsvector('simple', relative_path || ' ' || content)) STORED`,
		`CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(tablePrefix+collection+"_tsv") +
			` ON ` + table + ` USING gin (tsv)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%w: full-text index: %w", vectorstore.ErrNotSupported, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE "+registryTable+" SET full_text = TRUE WHERE name = $1", collection); err != nil {
		return unavailable("mark full-text", err)
	}
	return nil
}

// HasFullText implements vectorstore.FullTextProvisioner
func (s *Store) HasFullText(ctx context.Context, collection string) (bool, error) {
	var ft bool
	err := s.db.QueryRowContext(ctx, "SELECT full_text FROM "+registryTable+" WHERE name = $1", collection).Scan(&ft)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("read collection", err)
	}
	return ft, nil
}

// Insert implements vectorstore.Backend
func (s *Store) Insert(ctx context.Context, collection string, docs []vectorstore.Document) error {
	table, err := tableName(collection)
	if err != nil {
		return err
	}
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if len(d.Vector) != dim {
			return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(d.Vector), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+table+` (chunk_id, relative_path, file_extension, language, content,
		                       start_line, end_line, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chunk_id) DO UPDATE SET
			relative_path = EXCLUDED.relative_path,
			file_extension = EXCLUDED.file_extension,
			language = EXCLUDED.language,
			content = EXCLUDED.content,
			start_line = EXCLUDED.start_line,
			end_line = EXCLUDED.end_line,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return unavailable("prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		c := d.Chunk
		var meta interface{}
		if len(c.Metadata) > 0 {
			b, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
			meta = string(b)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.RelativePath, c.FileExtension, c.Language, c.Content,
			c.StartLine, c.EndLine, meta, pgvector.NewVector(d.Vector)); err != nil {
			return unavailable("insert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// Delete implements vectorstore.Backend
func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := tableName(collection)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE chunk_id = ANY($1)", pq.Array(ids)); err != nil {
		return unavailable("delete chunks", err)
	}
	return nil
}

// DeleteByFilter implements vectorstore.FilteredDeleter
func (s *Store) DeleteByFilter(ctx context.Context, collection string, filter vectorstore.Filter) (int, error) {
	table, err := tableName(collection)
	if err != nil {
		return 0, err
	}
	b := &builder{}
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE TRUE"+b.filter(&filter), b.args...)
	if err != nil {
		return 0, unavailable("delete by filter", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Query implements vectorstore.Backend
func (s *Store) Query(ctx context.Context, collection string, filter vectorstore.Filter, limit int) ([]types.CodeChunk, error) {
	table, err := tableName(collection)
	if err != nil {
		return nil, err
	}
	if _, err := s.dimension(ctx, collection); err != nil {
		return nil, err
	}
	b := &builder{}
	query := "SELECT " + chunkColumns + " FROM " + table + " WHERE TRUE" + b.filter(&filter) + " ORDER BY relative_path, start_line"
	if limit > 0 {
		query += " LIMIT " + b.add(limit)
	}

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, unavailable("query chunks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.CodeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count implements vectorstore.Backend
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	table, err := tableName(collection)
	if err != nil {
		return 0, err
	}
	if _, err := s.dimension(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, unavailable("count chunks", err)
	}
	return n, nil
}

// Search implements vectorstore.Backend. <=> is cosine distance.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int, filter *vectorstore.Filter) (vectorstore.HitSet, error) {
	hs := vectorstore.HitSet{Metric: vectorstore.MetricCosineDistance}
	table, err := tableName(collection)
	if err != nil {
		return hs, err
	}
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return hs, err
	}
	if len(vector) != dim {
		return hs, fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), dim)
	}
	if topK <= 0 {
		return hs, nil
	}

	b := &builder{}
	vec := b.add(pgvector.NewVector(vector))
	query := "SELECT " + chunkColumns + ", embedding <=> " + vec + " AS distance FROM " + table +
		" WHERE TRUE" + b.filter(filter) + " ORDER BY distance LIMIT " + b.add(topK)

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return hs, unavailable("vector search", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var distance float64
		c, err := scanChunk(rows, &distance)
		if err != nil {
			return hs, err
		}
		hs.Hits = append(hs.Hits, vectorstore.Hit{Chunk: c, Score: distance})
	}
	return hs, rows.Err()
}

// HybridSearch implements vectorstore.HybridSearcher. Both rankings and the
// reciprocal rank fusion are computed in one statement.
func (s *Store) HybridSearch(ctx context.Context, collection string, req vectorstore.HybridRequest, topK int, filter *vectorstore.Filter) (vectorstore.HitSet, error) {
	k := req.RRFConstant
	if k <= 0 {
		k = vectorstore.DefaultRRFConstant
	}
	hs := vectorstore.HitSet{Metric: vectorstore.MetricRRF, Scale: 2 / (k + 1)}

	table, err := tableName(collection)
	if err != nil {
		return hs, err
	}
	query, args := hybridQuery(table, req, k, topK, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return hs, unavailable("hybrid search", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var score float64
		c, err := scanChunk(rows, &score)
		if err != nil {
			return hs, err
		}
		hs.Hits = append(hs.Hits, vectorstore.Hit{Chunk: c, Score: score})
	}
	return hs, rows.Err()
}

func hybridQuery(table string, req vectorstore.HybridRequest, k float64, topK int, filter *vectorstore.Filter) (string, []interface{}) {
	b := &builder{}
	vec := b.add(pgvector.NewVector(req.Vector))
	candidates := b.add(topK * hybridCandidateFactor)
	tsq := b.add(tsQuery(req.Text))
	kArg := b.add(k)

	var sb strings.Builder
	sb.WriteString("WITH dense AS (SELECT chunk_id, ROW_NUMBER() OVER (ORDER BY embedding <=> " + vec + ") AS r")
	sb.WriteString(" FROM " + table + " WHERE TRUE" + b.filter(filter))
	sb.WriteString(" ORDER BY embedding <=> " + vec + " LIMIT " + candidates + "),")
	sb.WriteString(" lexical AS (SELECT chunk_id, ROW_NUMBER() OVER (ORDER BY ts_rank_cd(tsv, q) DESC) AS r")
	sb.WriteString(" FROM " + table + ", to_tsquery('simple', " + tsq + ") q")
	sb.WriteString(" WHERE " + tsq + " <> '' AND tsv @@ q" + b.filter(filter))
	sb.WriteString(" ORDER BY ts_rank_cd(tsv, q) DESC LIMIT " + candidates + ")")
	sb.WriteString(" SELECT " + qualified("t") + ",")
	sb.WriteString(" COALESCE(1.0 / (" + kArg + "::float8 + dense.r), 0) + COALESCE(1.0 / (" + kArg + "::float8 + lexical.r), 0) AS score")
	sb.WriteString(" FROM " + table + " t")
	sb.WriteString(" LEFT JOIN dense ON dense.chunk_id = t.chunk_id")
	sb.WriteString(" LEFT JOIN lexical ON lexical.chunk_id = t.chunk_id")
	sb.WriteString(" WHERE dense.chunk_id IS NOT NULL OR lexical.chunk_id IS NOT NULL")
	sb.WriteString(" ORDER BY score DESC LIMIT " + b.add(topK))
	return sb.String(), b.args
}

// tsQuery ORs the words of text into a to_tsquery expression
func tsQuery(text string) string {
	terms := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(terms) > maxTSTerms {
		terms = terms[:maxTSTerms]
	}
	return strings.Join(terms, " | ")
}

const chunkColumns = "chunk_id, relative_path, file_extension, language, content, start_line, end_line, metadata"

func qualified(alias string) string {
	cols := strings.Split(chunkColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row scanner, extra ...interface{}) (types.CodeChunk, error) {
	var c types.CodeChunk
	var ext, lang sql.NullString
	var meta []byte
	dest := append([]interface{}{&c.ID, &c.RelativePath, &ext, &lang, &c.Content, &c.StartLine, &c.EndLine, &meta}, extra...)
	if err := row.Scan(dest...); err != nil {
		return c, fmt.Errorf("failed to scan chunk: %w", err)
	}
	c.FileExtension = ext.String
	c.Language = lang.String
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return c, fmt.Errorf("failed to decode metadata for %s: %w", c.ID, err)
		}
	}
	return c, nil
}

// builder numbers positional parameters
type builder struct {
	args []interface{}
}

func (b *builder) add(v interface{}) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// filter renders " AND ..." conditions; empty for an empty filter
func (b *builder) filter(f *vectorstore.Filter) string {
	if f.IsEmpty() {
		return ""
	}
	var sb strings.Builder
	if f.RelativePath != "" {
		sb.WriteString(" AND relative_path = " + b.add(f.RelativePath))
	}
	if f.Language != "" {
		sb.WriteString(" AND language = " + b.add(f.Language))
	}
	if len(f.Extensions) > 0 {
		exts := make([]string, len(f.Extensions))
		for i, e := range f.Extensions {
			exts[i] = strings.ToLower(e)
		}
		sb.WriteString(" AND lower(file_extension) = ANY(" + b.add(pq.Array(exts)) + ")")
	}
	return sb.String()
}
