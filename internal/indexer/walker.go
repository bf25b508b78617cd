package indexer

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IgnoreFile is read from the root of an indexed tree. One pattern per line,
// '#' starts a comment.
const IgnoreFile = ".semindexignore"

// DefaultMaxFileSize is the largest file considered (1 MB)
const DefaultMaxFileSize = 1 << 20

// DefaultIgnorePatterns are always applied
var DefaultIgnorePatterns = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"__pycache__",
	".idea",
	".vscode",
	"dist",
	"build",
	"target",
}

// sourceFile is a discovered file. Content is loaded only for files that
// need splitting.
type sourceFile struct {
	Path     string // absolute
	RelPath  string // slash-separated
	Language string
	Size     int64
	Content  []byte
}

// walker enumerates the files of one root
type walker struct {
	extensions  map[string]bool // empty means every extension
	ignores     []string
	maxFileSize int64
}

func newWalker(extensions, ignores []string, maxFileSize int64) *walker {
	w := &walker{
		extensions:  make(map[string]bool, len(extensions)),
		ignores:     append(append([]string{}, DefaultIgnorePatterns...), ignores...),
		maxFileSize: maxFileSize,
	}
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.extensions[ext] = true
	}
	if w.maxFileSize <= 0 {
		w.maxFileSize = DefaultMaxFileSize
	}
	return w
}

// walk returns the files under root in path order. Symlinks, hidden
// directories, ignored paths, empty and oversized files are skipped.
func (w *walker) walk(ctx context.Context, root string) ([]sourceFile, error) {
	ignores := append(append([]string{}, w.ignores...), loadIgnorePatterns(root)...)

	var files []sourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // skip unreadable entries, keep walking
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(name, ".") || matchesIgnore(name, rel, ignores) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if matchesIgnore(name, rel, ignores) {
			return nil
		}
		if len(w.extensions) > 0 && !w.extensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() == 0 || info.Size() > w.maxFileSize {
			return nil
		}

		files = append(files, sourceFile{Path: path, RelPath: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return files, err
		}
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// loadIgnorePatterns reads the ignore file from root, if present
func loadIgnorePatterns(root string) []string {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(line, "/"))
	}
	return patterns
}

// matchesIgnore checks a name or relative path against the patterns. A
// pattern matches an exact name, a path prefix on a segment boundary, or as
// a glob against either.
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		if name == p || relPath == p {
			return true
		}
		if strings.HasPrefix(relPath, p+"/") {
			return true
		}
		if matched, _ := filepath.Match(p, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}
