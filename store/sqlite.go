package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/tagview/tag"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	hash         INTEGER NOT NULL PRIMARY KEY,
	reference    INTEGER NOT NULL DEFAULT 0,
	size         INTEGER NOT NULL,
	file_type    INTEGER NOT NULL DEFAULT 0,
	file_subtype INTEGER NOT NULL DEFAULT 0,
	data         BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS hash64 (
	hash64 INTEGER NOT NULL PRIMARY KEY,
	hash32 INTEGER NOT NULL
);`

// SQLite is a store backed by a SQLite database. The hash64 table is
// loaded into memory when the store is opened and after each Import.
type SQLite struct {
	db   *sqlx.DB
	path string

	mu     sync.RWMutex
	hash64 map[uint64]tag.TagHash
}

// hash64 keys are stored as signed integers; SQLite has no unsigned type.
type hash64Row struct {
	Hash64 int64  `db:"hash64"`
	Hash32 uint32 `db:"hash32"`
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	s := &SQLite{db: db, path: path}
	if err := s.loadHash64(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("opened sqlite store %s", path)
	return s, nil
}

func (s *SQLite) loadHash64() error {
	var rows []hash64Row
	if err := s.db.Select(&rows, `SELECT hash64, hash32 FROM hash64`); err != nil {
		return fmt.Errorf("loading hash64 table: %w", err)
	}
	m := make(map[uint64]tag.TagHash, len(rows))
	for _, r := range rows {
		m[uint64(r.Hash64)] = tag.TagHash(r.Hash32)
	}
	s.mu.Lock()
	s.hash64 = m
	s.mu.Unlock()
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Bytes(h tag.TagHash) ([]byte, error) {
	var data []byte
	if err := s.db.Get(&data, `SELECT data FROM entries WHERE hash = ?`, uint32(h)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(h)
		}
		return nil, ioErr(fmt.Sprintf("reading %s", h), err)
	}
	return data, nil
}

func (s *SQLite) Bytes64(h uint64) ([]byte, error) {
	h32, ok := s.ResolveHash64(h)
	if !ok {
		return nil, unresolved(h)
	}
	return s.Bytes(h32)
}

func (s *SQLite) ResolveHash64(h uint64) (tag.TagHash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h32, ok := s.hash64[h]
	return h32, ok
}

func (s *SQLite) EntryMeta(h tag.TagHash) (tag.EntryMeta, bool) {
	var meta tag.EntryMeta
	err := s.db.Get(&meta, `SELECT hash, reference, size, file_type, file_subtype
		FROM entries WHERE hash = ?`, uint32(h))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Warningf("metadata for %s: %s", h, err)
		}
		return tag.EntryMeta{}, false
	}
	return meta, true
}

// Entries lists every record, ordered by hash.
func (s *SQLite) Entries() []tag.EntryMeta {
	var out []tag.EntryMeta
	if err := s.db.Select(&out, `SELECT hash, reference, size, file_type, file_subtype
		FROM entries ORDER BY hash`); err != nil {
		log.Warningf("listing entries: %s", err)
		return nil
	}
	return out
}

func (s *SQLite) Hash64Table() []tag.Hash64Entry {
	s.mu.RLock()
	out := make([]tag.Hash64Entry, 0, len(s.hash64))
	for h64, h32 := range s.hash64 {
		out = append(out, tag.Hash64Entry{Hash64: h64, Hash32: h32})
	}
	s.mu.RUnlock()
	sortHash64(out)
	return out
}

// Put inserts or replaces one record.
func (s *SQLite) Put(meta tag.EntryMeta, data []byte) error {
	meta.Size = uint32(len(data))
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO entries
		(hash, reference, size, file_type, file_subtype, data) VALUES (?, ?, ?, ?, ?, ?)`,
		uint32(meta.Hash), meta.Reference, meta.Size, meta.FileType, meta.FileSubtype, data)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", meta.Hash, err)
	}
	return nil
}

// Import copies every record and hash64 row of src in one transaction and
// returns the number of records copied.
func (s *SQLite) Import(ctx context.Context, src tag.Enumerable) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	n := 0
	for _, meta := range src.Entries() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		data, err := src.Bytes(meta.Hash)
		if err != nil {
			return n, fmt.Errorf("reading %s: %w", meta.Hash, err)
		}
		if data == nil {
			data = []byte{}
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO entries
			(hash, reference, size, file_type, file_subtype, data) VALUES (?, ?, ?, ?, ?, ?)`,
			uint32(meta.Hash), meta.Reference, uint32(len(data)), meta.FileType, meta.FileSubtype, data); err != nil {
			return n, fmt.Errorf("inserting %s: %w", meta.Hash, err)
		}
		n++
	}
	for _, e := range src.Hash64Table() {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO hash64 (hash64, hash32) VALUES (?, ?)`,
			int64(e.Hash64), uint32(e.Hash32)); err != nil {
			return n, fmt.Errorf("inserting hash64 %s: %w", tag.Hash64(e.Hash64), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("committing import: %w", err)
	}
	log.Infof("imported %d records into %s", n, s.path)
	return n, s.loadHash64()
}
