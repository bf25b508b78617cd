//go:build sqlite_vec
// +build sqlite_vec

package sqlite

// This file is compiled when building with CGO and the sqlite_vec tag.
// It registers the sqlite-vec extension so cosine distance is computed
// inside SQLite.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// Without the fts5 tag the lexical index cannot be provisioned and hybrid
// search falls back to dense ranking.
//
// Driver used: github.com/mattn/go-sqlite3

import (
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
