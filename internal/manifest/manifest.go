package manifest

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dshills/semindex/pkg/types"
)

// FormatVersion is the manifest layout version
const FormatVersion = 1

// ErrCorruptManifest is returned when a persisted manifest cannot be decoded.
// The synchronizer treats it as an empty manifest and reindexes everything.
var ErrCorruptManifest = errors.New("corrupt manifest")

// Manifest maps relative paths to the fingerprint of the content that is
// currently indexed for one root.
type Manifest struct {
	Version   int                              `json:"version"`
	Root      string                           `json:"root"`
	Provider  string                           `json:"provider,omitempty"`
	Model     string                           `json:"model,omitempty"`
	Dimension int                              `json:"dimension,omitempty"`
	UpdatedAt time.Time                        `json:"updated_at"`
	Files     map[string]types.FileFingerprint `json:"files"`
}

// New returns an empty manifest for root
func New(root string) *Manifest {
	return &Manifest{
		Version: FormatVersion,
		Root:    root,
		Files:   make(map[string]types.FileFingerprint),
	}
}

// Len returns the number of tracked files
func (m *Manifest) Len() int {
	return len(m.Files)
}

// Get returns the fingerprint recorded for relPath
func (m *Manifest) Get(relPath string) (types.FileFingerprint, bool) {
	fp, ok := m.Files[relPath]
	return fp, ok
}

// Set records fp, keyed by its relative path
func (m *Manifest) Set(fp types.FileFingerprint) {
	if m.Files == nil {
		m.Files = make(map[string]types.FileFingerprint)
	}
	m.Files[fp.RelativePath] = fp
}

// Remove forgets relPath
func (m *Manifest) Remove(relPath string) {
	delete(m.Files, relPath)
}

// Paths returns the tracked paths in sorted order
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// SetEmbedding records the embedding model the index was built with
func (m *Manifest) SetEmbedding(provider, model string, dimension int) {
	m.Provider, m.Model, m.Dimension = provider, model, dimension
}

// SameEmbedding reports whether the manifest was built with this model. An
// empty manifest matches anything.
func (m *Manifest) SameEmbedding(provider, model string, dimension int) bool {
	if m.Provider == "" && m.Model == "" && m.Dimension == 0 {
		return true
	}
	return m.Provider == provider && m.Model == model && m.Dimension == dimension
}

// Clone returns a deep copy
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Files = make(map[string]types.FileFingerprint, len(m.Files))
	for k, v := range m.Files {
		c.Files[k] = v
	}
	return &c
}

// Diff classifies files against the manifest. All lists are sorted.
type Diff struct {
	Added     []string
	Modified  []string
	Unchanged []string
	Deleted   []string
}

// Changed reports whether any file needs work
func (d *Diff) Changed() bool {
	return len(d.Added)+len(d.Modified)+len(d.Deleted) > 0
}

// Diff compares the current fingerprints of the tree with the manifest
func (m *Manifest) Diff(current map[string]types.FileFingerprint) Diff {
	var d Diff
	for path, fp := range current {
		old, ok := m.Files[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case old.Matches(fp):
			d.Unchanged = append(d.Unchanged, path)
		default:
			d.Modified = append(d.Modified, path)
		}
	}
	for path := range m.Files {
		if _, ok := current[path]; !ok {
			d.Deleted = append(d.Deleted, path)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Unchanged)
	sort.Strings(d.Deleted)
	return d
}

// Validate checks the decoded manifest for impossible entries
func (m *Manifest) Validate() error {
	if m.Version > FormatVersion {
		return errors.New("manifest written by a newer version")
	}
	for path, fp := range m.Files {
		if path == "" || fp.RelativePath != path || fp.ContentHash == "" || fp.Size < 0 {
			return errors.New("invalid fingerprint for " + path)
		}
	}
	return nil
}

// Store persists one manifest per root
type Store interface {
	// Load returns the manifest for root, or an empty one if none exists.
	// Undecodable data yields ErrCorruptManifest.
	Load(ctx context.Context, root string) (*Manifest, error)
	Save(ctx context.Context, m *Manifest) error
	Delete(ctx context.Context, root string) error
}
