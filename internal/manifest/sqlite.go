package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/semindex/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS manifests (
    root TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    provider TEXT,
    model TEXT,
    dimension INTEGER,
    updated_at INTEGER
);

CREATE TABLE IF NOT EXISTS manifest_files (
    root TEXT NOT NULL,
    relative_path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    PRIMARY KEY (root, relative_path),
    FOREIGN KEY (root) REFERENCES manifests(root) ON DELETE CASCADE
);
`

// SQLStore keeps manifests in SQLite tables, typically the same database
// file as the embedded vector store.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates the manifest tables in db if missing
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create manifest tables: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Load implements Store
func (s *SQLStore) Load(ctx context.Context, root string) (*Manifest, error) {
	m := New(root)
	var provider, model sql.NullString
	var dimension sql.NullInt64
	var updatedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT version, provider, model, dimension, updated_at FROM manifests WHERE root = ?", root,
	).Scan(&m.Version, &provider, &model, &dimension, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m.Provider, m.Model, m.Dimension = provider.String, model.String, int(dimension.Int64)
	if updatedAt.Valid {
		m.UpdatedAt = time.Unix(updatedAt.Int64, 0).UTC()
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT relative_path, content_hash, size_bytes FROM manifest_files WHERE root = ?", root)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var fp types.FileFingerprint
		if err := rows.Scan(&fp.RelativePath, &fp.ContentHash, &fp.Size); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
		}
		m.Set(fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest files: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	return m, nil
}

// Save implements Store. The whole manifest is replaced in one transaction.
func (s *SQLStore) Save(ctx context.Context, m *Manifest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m.Version = FormatVersion
	m.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO manifests (root, version, provider, model, dimension, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(root) DO UPDATE SET
			version = excluded.version,
			provider = excluded.provider,
			model = excluded.model,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`, m.Root, m.Version, m.Provider, m.Model, m.Dimension, m.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM manifest_files WHERE root = ?", m.Root); err != nil {
		return fmt.Errorf("failed to clear manifest files: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO manifest_files (root, relative_path, content_hash, size_bytes) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare manifest insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, path := range m.Paths() {
		fp := m.Files[path]
		if _, err := stmt.ExecContext(ctx, m.Root, fp.RelativePath, fp.ContentHash, fp.Size); err != nil {
			return fmt.Errorf("failed to save fingerprint for %s: %w", path, err)
		}
	}

	return tx.Commit()
}

// Delete implements Store
func (s *SQLStore) Delete(ctx context.Context, root string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM manifest_files WHERE root = ?", root); err != nil {
		return fmt.Errorf("failed to delete manifest files: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM manifests WHERE root = ?", root); err != nil {
		return fmt.Errorf("failed to delete manifest: %w", err)
	}
	return tx.Commit()
}
