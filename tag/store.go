package tag

// Store is the content-addressed byte source the reader resolves references
// through. Implementations must be safe for concurrent use.
//
// Errors returned by Bytes and Bytes64 should wrap ErrTagNotFound for a
// missing record and ErrIO for anything else.
type Store interface {
	Bytes(h TagHash) ([]byte, error)
	Bytes64(h uint64) ([]byte, error)
	ResolveHash64(h uint64) (TagHash, bool)
	EntryMeta(h TagHash) (EntryMeta, bool)
}

// EntryMeta describes a record without reading it.
type EntryMeta struct {
	Hash        TagHash `cbor:"1,keyasint" db:"hash"`
	Reference   uint32  `cbor:"2,keyasint" db:"reference"`
	Size        uint32  `cbor:"3,keyasint" db:"size"`
	FileType    uint8   `cbor:"4,keyasint" db:"file_type"`
	FileSubtype uint8   `cbor:"5,keyasint" db:"file_subtype"`
}

// Hash64Entry is one row of the hash64 table.
type Hash64Entry struct {
	Hash64 uint64  `cbor:"1,keyasint" db:"hash64"`
	Hash32 TagHash `cbor:"2,keyasint" db:"hash32"`
}

// Enumerable is implemented by stores that can list their contents.
type Enumerable interface {
	Store
	Entries() []EntryMeta
	Hash64Table() []Hash64Entry
}
