package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

// Store is a vectorstore.Backend on a single SQLite file. Collections share
// one chunks table keyed by collection name. It supports full-text
// provisioning, native hybrid fusion and filtered delete.
type Store struct {
	db *sql.DB
}

var (
	_ vectorstore.Backend             = (*Store)(nil)
	_ vectorstore.FullTextProvisioner = (*Store)(nil)
	_ vectorstore.HybridSearcher      = (*Store)(nil)
	_ vectorstore.FilteredDeleter     = (*Store)(nil)
)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open opens or creates the database at dbPath and applies migrations
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", vectorstore.ErrVectorStoreUnavailable, err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to apply migrations: %w", vectorstore.ErrVectorStoreUnavailable, err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Name implements vectorstore.Backend
func (s *Store) Name() string { return "sqlite" }

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, vectorstore.ErrVectorStoreUnavailable, err)
}

// dimension returns the collection's vector dimension
func (s *Store) dimension(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, "SELECT dimension FROM collections WHERE name = ?", collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, collection)
	}
	if err != nil {
		return 0, unavailable("read collection", err)
	}
	return dim, nil
}

// CreateCollection implements vectorstore.Backend. Re-creating an existing
// collection with the same dimension is a no-op.
func (s *Store) CreateCollection(ctx context.Context, spec vectorstore.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", vectorstore.ErrDimensionMismatch, spec.Dimension)
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

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (name, dimension) VALUES (?, ?)",
		spec.Name, spec.Dimension); err != nil {
		return unavailable("create collection", err)
	}
	return nil
}

// DropCollection implements vectorstore.Backend
func (s *Store) DropCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", name); err != nil {
		return unavailable("drop chunks", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return unavailable("drop collection", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// ListCollections implements vectorstore.Backend
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
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
	if _, err := s.dimension(ctx, collection); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fullTextSchema); err != nil {
		return fmt.Errorf("%w: full-text index: %w", vectorstore.ErrNotSupported, err)
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO chunks_fts(chunks_fts) VALUES ('rebuild')"); err != nil {
		return fmt.Errorf("rebuild full-text index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE collections SET full_text = 1 WHERE name = ?", collection); err != nil {
		return unavailable("mark full-text", err)
	}
	return nil
}

// HasFullText implements vectorstore.FullTextProvisioner
func (s *Store) HasFullText(ctx context.Context, collection string) (bool, error) {
	var ft bool
	err := s.db.QueryRowContext(ctx, "SELECT full_text FROM collections WHERE name = ?", collection).Scan(&ft)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("read collection", err)
	}
	return ft, nil
}

// Insert implements vectorstore.Backend. Chunks with an existing ID are
// replaced.
func (s *Store) Insert(ctx context.Context, collection string, docs []vectorstore.Document) error {
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
		INSERT INTO chunks (collection, chunk_id, relative_path, file_extension, language,
		                    content, start_line, end_line, metadata, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, chunk_id) DO UPDATE SET
			relative_path = excluded.relative_path,
			file_extension = excluded.file_extension,
			language = excluded.language,
			content = excluded.content,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			metadata = excluded.metadata,
			vector = excluded.vector
	`)
	if err != nil {
		return unavailable("prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		meta, err := encodeMetadata(d.Chunk.Metadata)
		if err != nil {
			return err
		}
		c := d.Chunk
		if _, err := stmt.ExecContext(ctx, collection, c.ID, c.RelativePath, c.FileExtension, c.Language,
			c.Content, c.StartLine, c.EndLine, meta, serializeVector(d.Vector)); err != nil {
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
	query := "DELETE FROM chunks WHERE collection = ? AND chunk_id IN (" + placeholders(len(ids)) + ")"
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return unavailable("delete chunks", err)
	}
	return nil
}

// DeleteByFilter implements vectorstore.FilteredDeleter
func (s *Store) DeleteByFilter(ctx context.Context, collection string, filter vectorstore.Filter) (int, error) {
	query, args := applyFilter("DELETE FROM chunks WHERE collection = ?", []interface{}{collection}, &filter, "")
	res, err := s.db.ExecContext(ctx, query, args...)
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
	if _, err := s.dimension(ctx, collection); err != nil {
		return nil, err
	}
	query, args := applyFilter("SELECT "+chunkColumns("c")+" FROM chunks c WHERE c.collection = ?",
		[]interface{}{collection}, &filter, "c.")
	query += " ORDER BY c.id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	if _, err := s.dimension(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE collection = ?", collection).Scan(&n); err != nil {
		return 0, unavailable("count chunks", err)
	}
	return n, nil
}

// chunkColumns lists the columns scanChunk reads, qualified by alias
func chunkColumns(alias string) string {
	cols := []string{"chunk_id", "relative_path", "file_extension", "language", "content", "start_line", "end_line", "metadata"}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanChunk reads the chunkColumns, followed by any extra destinations
func scanChunk(row scanner, extra ...interface{}) (types.CodeChunk, error) {
	var c types.CodeChunk
	var ext, lang, meta sql.NullString
	dest := []interface{}{&c.ID, &c.RelativePath, &ext, &lang, &c.Content, &c.StartLine, &c.EndLine, &meta}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return c, fmt.Errorf("failed to scan chunk: %w", err)
	}
	c.FileExtension = ext.String
	c.Language = lang.String
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &c.Metadata); err != nil {
			return c, fmt.Errorf("failed to decode metadata for %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func encodeMetadata(m map[string]string) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

// applyFilter adds WHERE conditions for filter; prefix qualifies column names
func applyFilter(query string, args []interface{}, filter *vectorstore.Filter, prefix string) (string, []interface{}) {
	if filter.IsEmpty() {
		return query, args
	}
	if filter.RelativePath != "" {
		query += " AND " + prefix + "relative_path = ?"
		args = append(args, filter.RelativePath)
	}
	if filter.Language != "" {
		query += " AND " + prefix + "language = ?"
		args = append(args, filter.Language)
	}
	if len(filter.Extensions) > 0 {
		query += " AND lower(" + prefix + "file_extension) IN (" + placeholders(len(filter.Extensions)) + ")"
		for _, ext := range filter.Extensions {
			args = append(args, strings.ToLower(ext))
		}
	}
	return query, args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
