package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoStore is returned when the manifest names no record source.
var ErrNoStore = errors.New("no store paths configured")

// SourceKind is the backend a store path resolves to.
type SourceKind string

const (
	SourceDir     SourceKind = "dir"
	SourcePackage SourceKind = "package"
	SourceSQLite  SourceKind = "sqlite"
)

// ResolvedSource is one store path after glob expansion.
type ResolvedSource struct {
	Pattern string     // entry from [store] paths
	Path    string     // absolute filesystem path
	Kind    SourceKind // backend chosen by store.Open
}

// ResolveSources expands the configured store paths relative to the
// manifest directory. Patterns that match nothing are an error, as are
// duplicate matches. Results keep configuration order; matches within one
// pattern are sorted.
func (m *Manifest) ResolveSources() ([]ResolvedSource, error) {
	if m.Store.Backend == BackendSQLite {
		if m.Store.SQLite == "" {
			return nil, fmt.Errorf("%w: backend %q needs [store] sqlite", ErrNoStore, BackendSQLite)
		}
		p, err := filepath.Abs(m.Path(m.Store.SQLite))
		if err != nil {
			return nil, err
		}
		return []ResolvedSource{{Pattern: m.Store.SQLite, Path: p, Kind: SourceSQLite}}, nil
	}
	if len(m.Store.Paths) == 0 {
		return nil, ErrNoStore
	}

	seen := make(map[string]string)
	var out []ResolvedSource
	for _, pattern := range m.Store.Paths {
		matches, err := filepath.Glob(m.Path(pattern))
		if err != nil {
			return nil, fmt.Errorf("store path %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("store path %q: %w", pattern, os.ErrNotExist)
		}
		sort.Strings(matches)
		for _, match := range matches {
			abs, err := filepath.Abs(match)
			if err != nil {
				return nil, err
			}
			if prev, dup := seen[abs]; dup {
				return nil, fmt.Errorf("store path %s matched by both %q and %q", abs, prev, pattern)
			}
			seen[abs] = pattern
			kind, err := sourceKind(abs)
			if err != nil {
				return nil, err
			}
			out = append(out, ResolvedSource{Pattern: pattern, Path: abs, Kind: kind})
		}
	}
	return out, nil
}

func sourceKind(path string) (SourceKind, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return SourceDir, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return SourceSQLite, nil
	}
	return SourcePackage, nil
}

// Paths returns just the resolved filesystem paths.
func Paths(sources []ResolvedSource) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Path
	}
	return out
}
