package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/semindex/pkg/types"
)

// FileStore keeps one JSON document per root in a directory
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file holding root's manifest
func (s *FileStore) Path(root string) string {
	sum := sha256.Sum256([]byte(root))
	return filepath.Join(s.dir, "manifest_"+hex.EncodeToString(sum[:])[:16]+".json")
}

// Load implements Store
func (s *FileStore) Load(ctx context.Context, root string) (*Manifest, error) {
	data, err := os.ReadFile(s.Path(root))
	if errors.Is(err, fs.ErrNotExist) {
		return New(root), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m := New(root)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	if m.Root != root {
		return nil, fmt.Errorf("%w: manifest belongs to %s", ErrCorruptManifest, m.Root)
	}
	if m.Files == nil {
		m.Files = make(map[string]types.FileFingerprint)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	return m, nil
}

// Save implements Store. The document is written to a temp file and renamed
// into place so a crash never leaves a half-written manifest.
func (s *FileStore) Save(ctx context.Context, m *Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Version = FormatVersion
	m.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(m.Root)); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// Delete implements Store
func (s *FileStore) Delete(ctx context.Context, root string) error {
	err := os.Remove(s.Path(root))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete manifest: %w", err)
	}
	return nil
}
