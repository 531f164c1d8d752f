package tag

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Read error kinds
// ---------------------------------------------------------------------------

var (
	ErrEndOfData           = errors.New("unexpected end of record data")
	ErrTagNotFound         = errors.New("tag not found")
	ErrHash64Unresolved    = errors.New("64-bit hash not present in hash64 table")
	ErrStructSizeMismatch  = errors.New("struct size mismatch")
	ErrInvalidDiscriminant = errors.New("invalid resource discriminant")
	ErrIO                  = errors.New("tag store i/o failure")
	ErrDepthExceeded       = errors.New("pointer nesting limit exceeded")
	ErrBadMarker           = errors.New("marker value mismatch")
	ErrNotPointer          = errors.New("decode target must be a non-nil pointer")
	ErrUnsupportedType     = errors.New("type has no binary layout")
)

// ReadError describes a failed read. Kind is one of the Err* sentinels above;
// Err carries the underlying cause when there is one.
type ReadError struct {
	Kind   error
	Type   string
	Field  string
	Offset int64
	Hash   TagHash
	Err    error
}

func (e *ReadError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Type != "" {
		b.WriteString(" reading ")
		b.WriteString(e.Type)
		if e.Field != "" {
			b.WriteByte('.')
			b.WriteString(e.Field)
		}
	}
	fmt.Fprintf(&b, " at 0x%X", e.Offset)
	if e.Hash.IsSome() {
		fmt.Fprintf(&b, " in tag %s", e.Hash)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *ReadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// readErr builds a ReadError at the cursor's position.
func readErr(kind error, c *Cursor, format string, args ...any) *ReadError {
	e := &ReadError{Kind: kind}
	if c != nil {
		e.Offset = int64(c.Pos())
	}
	if format != "" {
		e.Err = fmt.Errorf(format, args...)
	}
	return e
}

// annotate fills in type and field names on the innermost ReadError, leaving
// an existing annotation untouched.
func annotate(err error, typ, field string, hash TagHash) error {
	var re *ReadError
	if !errors.As(err, &re) {
		return &ReadError{Kind: ErrIO, Type: typ, Field: field, Hash: hash, Err: err}
	}
	if re.Type == "" {
		re.Type = typ
		re.Field = field
	}
	if re.Hash.IsNone() {
		re.Hash = hash
	}
	return err
}

// KindOf returns the sentinel kind of err, or nil if err is not a read error.
func KindOf(err error) error {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind
	}
	for _, k := range []error{ErrEndOfData, ErrTagNotFound, ErrHash64Unresolved, ErrStructSizeMismatch,
		ErrInvalidDiscriminant, ErrIO, ErrDepthExceeded, ErrBadMarker} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
