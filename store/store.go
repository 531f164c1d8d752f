// Package store provides the byte sources the tag reader resolves records
// through: an in-memory map, single-file packages with a CBOR index, a
// SQLite database, and an LRU cache that wraps any of them.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chazu/tagview/tag"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tagview.store")

func notFound(h tag.TagHash) error {
	return fmt.Errorf("%w: %s", tag.ErrTagNotFound, h)
}

func unresolved(h uint64) error {
	return fmt.Errorf("%w: %s", tag.ErrHash64Unresolved, tag.Hash64(h))
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", tag.ErrIO, op, err)
}

func sortEntries(entries []tag.EntryMeta) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Hash < entries[j].Hash })
}

func sortHash64(entries []tag.Hash64Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Hash64 < entries[j].Hash64 })
}

// Open picks a backend from the path: a directory of loose records, a
// SQLite database (.db, .sqlite), or a package file.
func Open(path string) (tag.Enumerable, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path)
	}
	return OpenPackage(path)
}

// OpenAll opens each path and unions the results. A single path is returned
// as is.
func OpenAll(paths ...string) (tag.Enumerable, error) {
	if len(paths) == 1 {
		return Open(paths[0])
	}
	u := NewSet()
	for _, p := range paths {
		s, err := Open(p)
		if err != nil {
			u.Close()
			return nil, err
		}
		u.Add(s)
	}
	return u, nil
}

// Close releases a store's resources if it holds any.
func Close(s tag.Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
