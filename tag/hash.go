package tag

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
)

// ---------------------------------------------------------------------------
// TagHash: 32-bit record identifier
// ---------------------------------------------------------------------------

// TagHash identifies a record by package id and entry index.
type TagHash uint32

// TagHashNone is the canonical "absent" hash. Zero is also treated as absent.
const TagHashNone TagHash = math.MaxUint32

const (
	tagHashBase     = 0x80800000
	tagHashEntryMax = 0x1fff
)

// NewTagHash builds the hash for entry index entry inside package pkg.
func NewTagHash(pkg, entry uint16) TagHash {
	return TagHash(tagHashBase + uint32(pkg)<<13 + uint32(entry)&tagHashEntryMax)
}

// IsSome reports whether h refers to a record.
func (h TagHash) IsSome() bool {
	return h != 0 && h != TagHashNone
}

// IsNone is the inverse of IsSome.
func (h TagHash) IsNone() bool {
	return !h.IsSome()
}

// PkgID returns the package id encoded in h.
func (h TagHash) PkgID() uint16 {
	return uint16((uint32(h) - tagHashBase) >> 13)
}

// EntryIndex returns the entry index encoded in h.
func (h TagHash) EntryIndex() uint16 {
	return uint16(uint32(h) & tagHashEntryMax)
}

// String prints the hash the way it appears in a hex dump of the package.
func (h TagHash) String() string {
	return fmt.Sprintf("%08X", bits.ReverseBytes32(uint32(h)))
}

// GoString shows the package/entry split.
func (h TagHash) GoString() string {
	if h.IsNone() {
		return "TagHash(NONE)"
	}
	return fmt.Sprintf("TagHash(%s, pkg=%04x, entry=%d)", h, h.PkgID(), h.EntryIndex())
}

// ParseTagHash accepts either the dump form ("5EA8A380") or the raw value
// prefixed with 0x ("0x80A3A85E").
func ParseTagHash(s string) (TagHash, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return TagHashNone, fmt.Errorf("invalid tag hash %q: %w", s, err)
		}
		return TagHash(v), nil
	}
	if len(s) != 8 {
		return TagHashNone, fmt.Errorf("invalid tag hash %q: want 8 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return TagHashNone, fmt.Errorf("invalid tag hash %q: %w", s, err)
	}
	return TagHash(bits.ReverseBytes32(uint32(v))), nil
}

// ---------------------------------------------------------------------------
// Hash64
// ---------------------------------------------------------------------------

// Hash64 is a 64-bit record identifier, resolved through the hash64 table.
type Hash64 uint64

// IsSome reports whether h refers to a record.
func (h Hash64) IsSome() bool {
	return h != 0 && h != math.MaxUint64
}

func (h Hash64) String() string {
	return fmt.Sprintf("%016X", bits.ReverseBytes64(uint64(h)))
}

// ---------------------------------------------------------------------------
// WideHash: 32-bit or 64-bit reference
// ---------------------------------------------------------------------------

// WideHash is the 16-byte on-disk reference that holds either a TagHash or
// a Hash64. IsHash32 selects the active variant.
type WideHash struct {
	Hash32   TagHash
	IsHash32 uint32
	Hash64   Hash64
}

// WideHashSize is the on-disk width of a WideHash.
const WideHashSize = 16

// Wide32 wraps a TagHash.
func Wide32(h TagHash) WideHash {
	return WideHash{Hash32: h, IsHash32: 1, Hash64: math.MaxUint64}
}

// Wide64 wraps a Hash64.
func Wide64(h Hash64) WideHash {
	return WideHash{Hash32: TagHashNone, IsHash32: 0, Hash64: h}
}

// Is32 reports whether the 32-bit variant is active.
func (w WideHash) Is32() bool {
	return w.IsHash32 != 0
}

// IsSome follows the sentinel rule of the active variant.
func (w WideHash) IsSome() bool {
	if w.Is32() {
		return w.Hash32.IsSome()
	}
	return w.Hash64.IsSome()
}

// Key returns a value that is unique across both variants, suitable for maps.
func (w WideHash) Key() uint64 {
	if w.Is32() {
		return uint64(w.Hash32)
	}
	return uint64(w.Hash64)
}

// Resolve maps w to a TagHash, consulting the store's hash64 table for the
// 64-bit variant.
func (w WideHash) Resolve(s Store) (TagHash, bool) {
	if w.Is32() {
		return w.Hash32, true
	}
	return s.ResolveHash64(uint64(w.Hash64))
}

func (w WideHash) String() string {
	if w.Is32() {
		return w.Hash32.String()
	}
	return w.Hash64.String()
}
