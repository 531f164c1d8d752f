package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"fortio.org/safecast"
	"github.com/chazu/tagview/tag"
	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Package file format
// ---------------------------------------------------------------------------
//
//	0x00  magic "TVPK"
//	0x04  u16 version
//	0x06  u16 package id
//	0x08  u64 index offset
//	0x10  u64 index length
//	0x18  8 reserved bytes
//	0x20  record blobs
//	....  CBOR index
//
// The header is always little-endian; record contents are opaque.

const (
	packageMagic      = "TVPK"
	packageVersion    = 1
	packageHeaderSize = 32
)

var (
	ErrBadMagic   = errors.New("not a tagview package")
	ErrBadVersion = errors.New("unsupported package version")
	ErrWrongPkg   = errors.New("hash belongs to a different package")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type packageIndex struct {
	PkgID   uint16            `cbor:"1,keyasint"`
	Entries []indexEntry      `cbor:"2,keyasint"`
	Hash64  []tag.Hash64Entry `cbor:"3,keyasint"`
}

type indexEntry struct {
	Meta   tag.EntryMeta `cbor:"1,keyasint"`
	Offset uint64        `cbor:"2,keyasint"`
}

// ---------------------------------------------------------------------------
// Package: read side
// ---------------------------------------------------------------------------

// Package is a store over one package file. Records are read with ReadAt,
// so a Package is safe for concurrent use.
type Package struct {
	path   string
	r      io.ReaderAt
	closer io.Closer
	pkgID  uint16
	index  map[tag.TagHash]indexEntry
	hash64 map[uint64]tag.TagHash
}

// OpenPackage opens a package file and loads its index.
func OpenPackage(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening package: %w", err)
	}
	p, err := NewPackage(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.path = path
	p.closer = f
	log.Debugf("opened package %s: pkg %04x, %d entries", path, p.pkgID, len(p.index))
	return p, nil
}

// NewPackage reads the header and index from r.
func NewPackage(r io.ReaderAt) (*Package, error) {
	var hdr [packageHeaderSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if string(hdr[0:4]) != packageMagic {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != packageVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	pkgID := binary.LittleEndian.Uint16(hdr[6:])
	off, err := safecast.Conv[int64](binary.LittleEndian.Uint64(hdr[8:]))
	if err != nil {
		return nil, fmt.Errorf("index offset: %w", err)
	}
	n, err := safecast.Conv[int](binary.LittleEndian.Uint64(hdr[16:]))
	if err != nil {
		return nil, fmt.Errorf("index length: %w", err)
	}

	raw := make([]byte, n)
	if _, err := r.ReadAt(raw, off); err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	var idx packageIndex
	if err := cbor.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	if idx.PkgID != pkgID {
		return nil, fmt.Errorf("index names package %04x, header %04x", idx.PkgID, pkgID)
	}

	p := &Package{
		r:      r,
		pkgID:  pkgID,
		index:  make(map[tag.TagHash]indexEntry, len(idx.Entries)),
		hash64: make(map[uint64]tag.TagHash, len(idx.Hash64)),
	}
	for _, e := range idx.Entries {
		p.index[e.Meta.Hash] = e
	}
	for _, e := range idx.Hash64 {
		p.hash64[e.Hash64] = e.Hash32
	}
	return p, nil
}

// PkgID returns the package id from the header.
func (p *Package) PkgID() uint16 { return p.pkgID }

// Path returns the file the package was opened from, if any.
func (p *Package) Path() string { return p.path }

// Close closes the underlying file.
func (p *Package) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

func (p *Package) Bytes(h tag.TagHash) ([]byte, error) {
	e, ok := p.index[h]
	if !ok {
		return nil, notFound(h)
	}
	off, err := safecast.Conv[int64](e.Offset)
	if err != nil {
		return nil, ioErr("record offset", err)
	}
	buf := make([]byte, e.Meta.Size)
	if _, err := p.r.ReadAt(buf, off); err != nil {
		return nil, ioErr(fmt.Sprintf("reading %s", h), err)
	}
	return buf, nil
}

func (p *Package) Bytes64(h uint64) ([]byte, error) {
	h32, ok := p.ResolveHash64(h)
	if !ok {
		return nil, unresolved(h)
	}
	return p.Bytes(h32)
}

func (p *Package) ResolveHash64(h uint64) (tag.TagHash, bool) {
	h32, ok := p.hash64[h]
	return h32, ok
}

func (p *Package) EntryMeta(h tag.TagHash) (tag.EntryMeta, bool) {
	e, ok := p.index[h]
	return e.Meta, ok
}

// Entries lists the package's records, ordered by hash.
func (p *Package) Entries() []tag.EntryMeta {
	out := make([]tag.EntryMeta, 0, len(p.index))
	for _, e := range p.index {
		out = append(out, e.Meta)
	}
	sortEntries(out)
	return out
}

// Hash64Table lists the package's hash64 rows.
func (p *Package) Hash64Table() []tag.Hash64Entry {
	out := make([]tag.Hash64Entry, 0, len(p.hash64))
	for h64, h32 := range p.hash64 {
		out = append(out, tag.Hash64Entry{Hash64: h64, Hash32: h32})
	}
	sortHash64(out)
	return out
}

// ---------------------------------------------------------------------------
// PackageWriter: build side
// ---------------------------------------------------------------------------

// PackageWriter accumulates records for one package id and writes them as a
// package file.
type PackageWriter struct {
	pkgID   uint16
	records map[tag.TagHash]pendingRecord
	hash64  map[uint64]tag.TagHash
}

type pendingRecord struct {
	meta tag.EntryMeta
	data []byte
}

// NewPackageWriter creates a writer for package pkgID.
func NewPackageWriter(pkgID uint16) *PackageWriter {
	return &PackageWriter{
		pkgID:   pkgID,
		records: make(map[tag.TagHash]pendingRecord),
		hash64:  make(map[uint64]tag.TagHash),
	}
}

// Add queues a record. meta.Hash must belong to the writer's package;
// meta.Size is set from data.
func (w *PackageWriter) Add(meta tag.EntryMeta, data []byte) error {
	if !meta.Hash.IsSome() || meta.Hash.PkgID() != w.pkgID {
		return fmt.Errorf("%w: %s is not in package %04x", ErrWrongPkg, meta.Hash, w.pkgID)
	}
	size, err := safecast.Conv[uint32](len(data))
	if err != nil {
		return fmt.Errorf("record %s: %w", meta.Hash, err)
	}
	meta.Size = size
	w.records[meta.Hash] = pendingRecord{meta: meta, data: data}
	return nil
}

// AddHash64 queues a hash64 table row.
func (w *PackageWriter) AddHash64(h64 uint64, h tag.TagHash) {
	w.hash64[h64] = h
}

// AddStore queues every record of src that belongs to the writer's package.
func (w *PackageWriter) AddStore(src tag.Enumerable) error {
	for _, meta := range src.Entries() {
		if meta.Hash.PkgID() != w.pkgID {
			continue
		}
		data, err := src.Bytes(meta.Hash)
		if err != nil {
			return err
		}
		if err := w.Add(meta, data); err != nil {
			return err
		}
	}
	for _, e := range src.Hash64Table() {
		if e.Hash32.PkgID() == w.pkgID {
			w.AddHash64(e.Hash64, e.Hash32)
		}
	}
	return nil
}

// Len returns the number of queued records.
func (w *PackageWriter) Len() int { return len(w.records) }

// WriteTo writes the package. Records are laid out in hash order.
func (w *PackageWriter) WriteTo(out io.Writer) (int64, error) {
	hashes := make([]tag.TagHash, 0, len(w.records))
	for h := range w.records {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	idx := packageIndex{PkgID: w.pkgID}
	var body bytes.Buffer
	for _, h := range hashes {
		rec := w.records[h]
		idx.Entries = append(idx.Entries, indexEntry{
			Meta:   rec.meta,
			Offset: uint64(packageHeaderSize + body.Len()),
		})
		body.Write(rec.data)
	}
	for h64, h32 := range w.hash64 {
		idx.Hash64 = append(idx.Hash64, tag.Hash64Entry{Hash64: h64, Hash32: h32})
	}
	sortHash64(idx.Hash64)

	raw, err := cborEncMode.Marshal(idx)
	if err != nil {
		return 0, fmt.Errorf("encoding index: %w", err)
	}

	var hdr [packageHeaderSize]byte
	copy(hdr[:], packageMagic)
	binary.LittleEndian.PutUint16(hdr[4:], packageVersion)
	binary.LittleEndian.PutUint16(hdr[6:], w.pkgID)
	binary.LittleEndian.PutUint64(hdr[8:], uint64(packageHeaderSize+body.Len()))
	binary.LittleEndian.PutUint64(hdr[16:], uint64(len(raw)))

	var total int64
	for _, chunk := range [][]byte{hdr[:], body.Bytes(), raw} {
		n, err := out.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteFile writes the package to path.
func (w *PackageWriter) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating package: %w", err)
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing package: %w", err)
	}
	return f.Close()
}
