package dump

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown dump format")

// Format selects an encoding.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatCBOR    Format = "cbor"
	FormatMsgpack Format = "msgpack"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatCBOR, FormatMsgpack}
}

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Binary reports whether the format produces non-text output.
func (f Format) Binary() bool {
	return f == FormatCBOR || f == FormatMsgpack
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dump: cbor enc mode: %v", err))
	}
	cborEncMode = em
}

// Encode writes n to w in format f.
func Encode(w io.Writer, f Format, n *Node) error {
	switch f {
	case FormatText:
		return WriteText(w, n)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(n)
	case FormatCBOR:
		return cborEncMode.NewEncoder(w).Encode(n)
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(n)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Value builds a tree for v and encodes it.
func Value(w io.Writer, f Format, v any, opts Options) error {
	return Encode(w, f, NewBuilder(opts).Build(v))
}

// ---------------------------------------------------------------------------
// Text
// ---------------------------------------------------------------------------

// WriteText writes n as an indented outline.
func WriteText(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	writeText(bw, 0, "", n)
	return bw.Flush()
}

// Text returns n as an indented outline.
func Text(n *Node) string {
	var sb strings.Builder
	_ = WriteText(&sb, n)
	return sb.String()
}

func writeText(w *bufio.Writer, indent int, label string, n *Node) {
	w.WriteString(strings.Repeat("  ", indent))
	if label != "" {
		w.WriteString(label)
		w.WriteString(": ")
	}
	w.WriteString(summary(n))
	w.WriteString("\n")

	for _, f := range n.Fields {
		writeText(w, indent+1, f.Name, f.Node)
	}
	for i, e := range n.Elements {
		l := fmt.Sprintf("[%d]", i)
		if n.Kind == KindRef {
			l = "*"
		}
		writeText(w, indent+1, l, e)
	}
	if n.Truncated && n.Kind == KindList {
		fmt.Fprintf(w, "%s  ... %d more\n", strings.Repeat("  ", indent), n.Len-len(n.Elements))
	}
}

func summary(n *Node) string {
	switch n.Kind {
	case KindNil:
		return "nil"
	case KindVector:
		parts := make([]string, 0, 16)
		if vs, ok := n.Value.([]any); ok {
			for _, v := range vs {
				if f, ok := v.(float64); ok {
					parts = append(parts, fmt.Sprintf("%g", f))
				} else {
					parts = append(parts, fmt.Sprint(v))
				}
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindBytes:
		s := fmt.Sprintf("<%d bytes> %s", n.Len, n.Value)
		if n.Truncated {
			s += "..."
		}
		return s
	case KindList, KindMap:
		return fmt.Sprintf("%s (%d)", n.Type, n.Len)
	case KindStruct:
		return n.Type
	case KindRef:
		return "-> " + fmt.Sprint(n.Value)
	case KindOpaque:
		if n.Truncated {
			return n.Type + " ..."
		}
		return n.Type
	case KindFloat:
		if f, ok := n.Value.(float64); ok {
			return fmt.Sprintf("%g", f)
		}
	}
	return fmt.Sprint(n.Value)
}
