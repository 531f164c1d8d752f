package tag

import (
	"encoding/binary"
	"math"

	"fortio.org/safecast"
)

// ---------------------------------------------------------------------------
// Cursor: bounds-checked reads over one record
// ---------------------------------------------------------------------------

// Cursor reads scalars from a record at an explicit position. It carries the
// record's endianness so every nested read uses the same byte order.
type Cursor struct {
	data   []byte
	pos    int
	endian Endian
	order  binary.ByteOrder
}

// NewCursor creates a cursor at the start of data.
func NewCursor(data []byte, endian Endian) *Cursor {
	return &Cursor{data: data, endian: endian, order: endian.ByteOrder()}
}

// Endian returns the byte order of the record.
func (c *Cursor) Endian() Endian { return c.endian }

// Pos returns the current read position.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the total record length.
func (c *Cursor) Len() int { return len(c.data) }

// Remaining returns the number of bytes after the read position.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Data returns the underlying record bytes.
func (c *Cursor) Data() []byte { return c.data }

// Seek moves the read position to an absolute offset. Seeking to the very
// end is allowed; reading from there is not.
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return readErr(ErrEndOfData, c, "seek to 0x%X outside record of %d bytes", pos, len(c.data))
	}
	c.pos = pos
	return nil
}

// SeekRel moves to base+delta, where delta is a signed wire offset.
func (c *Cursor) SeekRel(base int, delta int64) error {
	target, err := addOffset(base, delta)
	if err != nil {
		return readErr(ErrEndOfData, c, "offset %d from 0x%X: %v", delta, base, err)
	}
	return c.Seek(target)
}

// Skip advances the read position by n bytes.
func (c *Cursor) Skip(n int) error {
	return c.Seek(c.pos + n)
}

func (c *Cursor) need(n int) error {
	if n < 0 || c.pos+n > len(c.data) {
		return readErr(ErrEndOfData, c, "need %d bytes, have %d", n, c.Remaining())
	}
	return nil
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// U8 reads an unsigned byte.
func (c *Cursor) U8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

// U16 reads an unsigned 16-bit integer.
func (c *Cursor) U16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := c.order.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// U32 reads an unsigned 32-bit integer.
func (c *Cursor) U32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := c.order.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

// U64 reads an unsigned 64-bit integer.
func (c *Cursor) U64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := c.order.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

// I64 reads a signed 64-bit integer.
func (c *Cursor) I64() (int64, error) {
	v, err := c.U64()
	return int64(v), err
}

// F32 reads an IEEE-754 single.
func (c *Cursor) F32() (float32, error) {
	v, err := c.U32()
	return math.Float32frombits(v), err
}

// F64 reads an IEEE-754 double.
func (c *Cursor) F64() (float64, error) {
	v, err := c.U64()
	return math.Float64frombits(v), err
}

// TagHash reads a 32-bit tag hash.
func (c *Cursor) TagHash() (TagHash, error) {
	v, err := c.U32()
	return TagHash(v), err
}

// WideHash reads the 16-byte wide reference.
func (c *Cursor) WideHash() (WideHash, error) {
	var w WideHash
	h32, err := c.U32()
	if err != nil {
		return w, err
	}
	is32, err := c.U32()
	if err != nil {
		return w, err
	}
	h64, err := c.U64()
	if err != nil {
		return w, err
	}
	return WideHash{Hash32: TagHash(h32), IsHash32: is32, Hash64: Hash64(h64)}, nil
}

// Sub returns a cursor over the same record starting at pos.
func (c *Cursor) Sub(pos int) (*Cursor, error) {
	sub := &Cursor{data: c.data, endian: c.endian, order: c.order}
	if err := sub.Seek(pos); err != nil {
		return nil, err
	}
	return sub, nil
}

// addOffset computes base+delta without overflowing int.
func addOffset(base int, delta int64) (int, error) {
	d, err := safecast.Conv[int](delta)
	if err != nil {
		return 0, err
	}
	if (d > 0 && base > math.MaxInt-d) || (d < 0 && base < math.MinInt-d) {
		return 0, safecast.ErrOutOfRange
	}
	return base + d, nil
}
